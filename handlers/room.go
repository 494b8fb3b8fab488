package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pointdeck/pointdeck/analytics"
	"github.com/pointdeck/pointdeck/models"
	"github.com/pointdeck/pointdeck/session"
	"github.com/pointdeck/pointdeck/store"
)

// Package-level WebSocket upgrader
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// standardResponse sends a consistent JSON response
func standardResponse(c *gin.Context, code int, status string, data interface{}, err string) {
	response := gin.H{"status": status}

	if data != nil {
		response["data"] = data
	}

	if err != "" {
		response["error"] = err
	}

	c.JSON(code, response)
}

// errorStatus maps session errors onto HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, models.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrParticipantNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNotHost), errors.Is(err, models.ErrRoomLocked):
		return http.StatusForbidden
	case errors.Is(err, models.ErrRoomExists), errors.Is(err, models.ErrVersionConflict), errors.Is(err, models.ErrRoundInProgress):
		return http.StatusConflict
	case errors.Is(err, models.ErrInvalidName), errors.Is(err, models.ErrInvalidVote), errors.Is(err, models.ErrInvalidScale):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	standardResponse(c, errorStatus(err), "error", nil, err.Error())
}

// RoomHandler handles all room-related requests
type RoomHandler struct {
	sessions  *session.Manager
	store     *store.Store
	analytics *analytics.Store
}

// NewRoomHandler creates a new RoomHandler
func NewRoomHandler(sessions *session.Manager, st *store.Store, an *analytics.Store) *RoomHandler {
	return &RoomHandler{
		sessions:  sessions,
		store:     st,
		analytics: an,
	}
}

// CreateRoom handles room creation requests
func (h *RoomHandler) CreateRoom(c *gin.Context) {
	var req struct {
		ScaleType       models.ScaleType `json:"scaleType"`
		Password        string           `json:"password"`
		AutoReveal      bool             `json:"autoReveal"`
		AnonymousVoting bool             `json:"anonymousVoting"`
		ShowTooltips    bool             `json:"showTooltips"`
		ConfettiEnabled bool             `json:"confettiEnabled"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, creatorToken, err := h.sessions.CreateRoom(session.CreateSettings{
		ScaleType: req.ScaleType,
		Password:  req.Password,
		Settings: models.Settings{
			AutoReveal:      req.AutoReveal,
			AnonymousVoting: req.AnonymousVoting,
			ShowTooltips:    req.ShowTooltips,
			ConfettiEnabled: req.ConfettiEnabled,
		},
	})
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusCreated, "created", gin.H{
		"roomCode":     room.Code,
		"creatorToken": creatorToken,
		"room":         room,
	}, "")
}

// JoinRoom handles requests to join a room
func (h *RoomHandler) JoinRoom(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID     string `json:"clientID"`
		Name         string `json:"name" binding:"required"`
		Password     string `json:"password"`
		CreatorToken string `json:"creatorToken"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, models.ErrInvalidName.Error())
		return
	}

	// First visit from this browser; mint an identity for it
	if req.ClientID == "" {
		req.ClientID = uuid.New().String()
	}

	room, err := h.sessions.JoinRoom(code, req.ClientID, req.Name, req.Password, req.CreatorToken)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "joined", gin.H{
		"clientID": req.ClientID,
		"room":     room,
	}, "")
}

// LeaveRoom handles requests to leave a room
func (h *RoomHandler) LeaveRoom(c *gin.Context) {
	code := c.Param("code")
	clientID := c.Query("clientID")

	if clientID == "" {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid client ID")
		return
	}

	if err := h.sessions.LeaveRoom(code, clientID); err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "left", nil, "")
}

// GetRoom handles requests to get room information
func (h *RoomHandler) GetRoom(c *gin.Context) {
	code := c.Param("code")
	clientID := c.Query("clientID")

	if clientID == "" {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid client ID")
		return
	}

	room, err := h.sessions.Snapshot(code, clientID)
	if err != nil {
		fail(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

// SubmitVote handles vote submission requests
func (h *RoomHandler) SubmitVote(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
		Value    string `json:"value" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.CastVote(code, req.ClientID, req.Value)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "vote_submitted", gin.H{"room": room}, "")
}

// RevealVotes handles requests to reveal all votes
func (h *RoomHandler) RevealVotes(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.RevealVotes(code, req.ClientID)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "votes_revealed", gin.H{"room": room}, "")
}

// ResetRound handles requests to start a fresh round
func (h *RoomHandler) ResetRound(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.ResetRound(code, req.ClientID)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "round_reset", gin.H{"room": room}, "")
}

// ToggleRole flips the caller between voter and spectator
func (h *RoomHandler) ToggleRole(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.ToggleRole(code, req.ClientID)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "role_changed", gin.H{"room": room}, "")
}

// KickParticipant removes another participant from the room
func (h *RoomHandler) KickParticipant(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
		TargetID string `json:"targetID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.KickParticipant(code, req.ClientID, req.TargetID)
	if err != nil {
		fail(c, err)
		return
	}
	if room == nil {
		// Self-kick by the last participant removed the room
		standardResponse(c, http.StatusOK, "left", nil, "")
		return
	}

	standardResponse(c, http.StatusOK, "participant_kicked", gin.H{"room": room}, "")
}

// ChangeScale switches the room's deck
func (h *RoomHandler) ChangeScale(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID  string           `json:"clientID" binding:"required"`
		ScaleType models.ScaleType `json:"scaleType" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.ChangeScale(code, req.ClientID, req.ScaleType)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "scale_changed", gin.H{"room": room}, "")
}

// SetTicket names the item under estimation
func (h *RoomHandler) SetTicket(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
		Ticket   string `json:"ticket"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.SetTicket(code, req.ClientID, req.Ticket)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "ticket_set", gin.H{"room": room}, "")
}

// QueueTicket appends a pending ticket
func (h *RoomHandler) QueueTicket(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
		Ticket   string `json:"ticket" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.QueueTicket(code, req.ClientID, req.Ticket)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "ticket_queued", gin.H{"room": room}, "")
}

// UpdateSettings applies configuration flag changes
func (h *RoomHandler) UpdateSettings(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID        string `json:"clientID" binding:"required"`
		AutoReveal      *bool  `json:"autoReveal"`
		AnonymousVoting *bool  `json:"anonymousVoting"`
		ShowTooltips    *bool  `json:"showTooltips"`
		ConfettiEnabled *bool  `json:"confettiEnabled"`
		IsLocked        *bool  `json:"isLocked"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.UpdateSettings(code, req.ClientID, session.SettingsUpdate{
		AutoReveal:      req.AutoReveal,
		AnonymousVoting: req.AnonymousVoting,
		ShowTooltips:    req.ShowTooltips,
		ConfettiEnabled: req.ConfettiEnabled,
		IsLocked:        req.IsLocked,
	})
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "settings_updated", gin.H{"room": room}, "")
}

// StartTimer begins the room countdown
func (h *RoomHandler) StartTimer(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
		Duration int    `json:"duration" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.StartTimer(code, req.ClientID, req.Duration)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "timer_started", gin.H{"room": room}, "")
}

// StopTimer halts the room countdown
func (h *RoomHandler) StopTimer(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	room, err := h.sessions.StopTimer(code, req.ClientID)
	if err != nil {
		fail(c, err)
		return
	}

	standardResponse(c, http.StatusOK, "timer_stopped", gin.H{"room": room}, "")
}

// Heartbeat refreshes the caller's activity stamp. Strictly
// best-effort: a failed refresh never surfaces to the client.
func (h *RoomHandler) Heartbeat(c *gin.Context) {
	code := c.Param("code")
	var req struct {
		ClientID string `json:"clientID" binding:"required"`
	}

	if err := c.BindJSON(&req); err != nil {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid request format")
		return
	}

	_ = h.sessions.Heartbeat(code, req.ClientID)

	standardResponse(c, http.StatusOK, "ok", nil, "")
}

// Stats reports live room counts and the persisted usage counters
func (h *RoomHandler) Stats(c *gin.Context) {
	stats := gin.H{
		"activeRooms": h.store.Count(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	}

	if h.analytics != nil {
		counters, err := h.analytics.Counters()
		if err == nil {
			stats["counters"] = counters
		}
	}

	c.JSON(http.StatusOK, stats)
}

// StreamEvents handles WebSocket connections for real-time updates
func (h *RoomHandler) StreamEvents(c *gin.Context) {
	code := c.Param("code")
	clientID := c.Query("clientID")

	if clientID == "" {
		standardResponse(c, http.StatusBadRequest, "error", nil, "Invalid client ID")
		return
	}

	room, err := h.sessions.Snapshot(code, clientID)
	if err != nil {
		fail(c, err)
		return
	}

	events, err := h.store.Subscribe(code)
	if err != nil {
		fail(c, err)
		return
	}

	conn, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.store.Unsubscribe(code, events)
		standardResponse(c, http.StatusInternalServerError, "error", nil, "Could not upgrade to WebSocket")
		return
	}
	defer conn.Close()
	defer h.store.Unsubscribe(code, events)

	// Send initial room state
	initialEvent := models.Event{
		Type:    models.EventTypeInitialState,
		Payload: room,
	}
	if err := conn.WriteJSON(initialEvent); err != nil {
		return
	}

	// Setup ping ticker for keep-alive
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	done := make(chan struct{})
	go h.readUntilClose(conn, code, clientID, done)

	for {
		select {
		case event, ok := <-events:
			if !ok {
				// Room deleted; channel closed by the store
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

// readUntilClose drains the client connection; a dropped socket counts
// as leaving the room.
func (h *RoomHandler) readUntilClose(conn *websocket.Conn, code, clientID string, done chan struct{}) {
	defer close(done)

	for {
		_, _, err := conn.ReadMessage()
		if err != nil {
			h.sessions.LeaveRoom(code, clientID)
			return
		}
	}
}
