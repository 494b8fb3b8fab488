package models

import "errors"

// Common errors
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomExists          = errors.New("room code already in use")
	ErrRoomLocked          = errors.New("room is locked to new joins")
	ErrVersionConflict     = errors.New("room document changed concurrently")
	ErrUnauthorized        = errors.New("wrong or missing room password")
	ErrNotHost             = errors.New("only the room host can perform this action")
	ErrParticipantNotFound = errors.New("participant not found in room")
	ErrInvalidName         = errors.New("invalid participant name")
	ErrInvalidVote         = errors.New("vote value not in the room's scale")
	ErrInvalidScale        = errors.New("unknown scale type")
	ErrRoundInProgress     = errors.New("scale can only change while votes are revealed")
)
