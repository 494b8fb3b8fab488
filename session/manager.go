// Package session implements the room lifecycle: participants, votes,
// reveal and reset transitions, host bookkeeping, and the auto-reveal
// trigger. Every mutation reads a snapshot, edits a copy, and commits
// through the store's compare-and-swap, retrying on conflict, so racing
// clients cannot lose each other's updates.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	mrand "math/rand"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pointdeck/pointdeck/analytics"
	"github.com/pointdeck/pointdeck/consensus"
	"github.com/pointdeck/pointdeck/models"
	"github.com/pointdeck/pointdeck/store"
)

const (
	casRetries       = 5
	codeLength       = 6
	creatorTokenTTL  = 10 * time.Minute
	defaultAutoDelay = 500 * time.Millisecond
)

// Room codes avoid easily-confused characters (0/O, 1/I/L)
const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// errNoChange tells the update loop the mutation decided not to write
var errNoChange = errors.New("no change")

// Manager owns the state machine for all rooms in the store
type Manager struct {
	store     *store.Store
	analytics *analytics.Store
	watcher   *Watcher

	mu            sync.Mutex
	creatorTokens map[string]creatorClaim
}

type creatorClaim struct {
	roomCode string
	expires  time.Time
}

// NewManager creates a manager with the default auto-reveal debounce
func NewManager(st *store.Store, an *analytics.Store) *Manager {
	return newManager(st, an, defaultAutoDelay)
}

func newManager(st *store.Store, an *analytics.Store, autoDelay time.Duration) *Manager {
	m := &Manager{
		store:         st,
		analytics:     an,
		creatorTokens: make(map[string]creatorClaim),
	}
	m.watcher = NewWatcher(autoDelay, m.systemReveal)
	return m
}

// update runs one mutation through the read / copy / compare-and-swap
// cycle. A mutation returning errNoChange commits nothing and is not an
// error. The committed (or current, for no-ops) room is returned.
func (m *Manager) update(code string, mutate func(*models.Room) error) (*models.Room, error) {
	for i := 0; i < casRetries; i++ {
		snap, err := m.store.Get(code)
		if err != nil {
			return nil, err
		}

		if err := mutate(snap.Room); err != nil {
			if errors.Is(err, errNoChange) {
				return snap.Room, nil
			}
			return nil, err
		}

		err = m.store.CompareAndSwap(code, snap.Version, snap.Room)
		if err == nil {
			m.watcher.Observe(snap.Room)
			return snap.Room, nil
		}
		if !errors.Is(err, models.ErrVersionConflict) {
			return nil, err
		}
	}
	return nil, models.ErrVersionConflict
}

// CreateSettings carries the initial configuration for a new room
type CreateSettings struct {
	ScaleType models.ScaleType
	Settings  models.Settings
	Password  string
}

// CreateRoom writes a new empty room document and returns it along with
// a short-lived creator token that lets the creating client join a
// password-protected room without re-supplying the password.
func (m *Manager) CreateRoom(settings CreateSettings) (*models.Room, string, error) {
	scale := settings.ScaleType
	if scale == "" {
		scale = models.ScaleFibonacci
	}
	if !models.ValidScale(scale) {
		return nil, "", models.ErrInvalidScale
	}

	var passwordHash string
	if settings.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(settings.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, "", err
		}
		passwordHash = string(hash)
	}

	var room *models.Room
	for {
		room = &models.Room{
			Code:         generateCode(),
			Participants: make(map[string]*models.Participant),
			Votes:        make(map[string]models.Vote),
			TicketQueue:  make([]string, 0),
			ScaleType:    scale,
			Settings:     settings.Settings,
			PasswordHash: passwordHash,
			HasPassword:  passwordHash != "",
			Round:        1,
			RoundHistory: make([]models.RoundRecord, 0),
			CreatedAt:    time.Now(),
		}
		err := m.store.Create(room)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrRoomExists) {
			return nil, "", err
		}
		// Code collision; roll a new one
	}

	token, err := generateToken()
	if err != nil {
		return nil, "", err
	}
	m.mu.Lock()
	m.creatorTokens[token] = creatorClaim{roomCode: room.Code, expires: time.Now().Add(creatorTokenTTL)}
	m.mu.Unlock()

	m.analytics.Bump(analytics.CounterRoomsCreated)
	return room, token, nil
}

// JoinRoom inserts a participant into a room. The first participant
// ever inserted becomes host; everyone after joins as a plain voter.
func (m *Manager) JoinRoom(code, clientID, name, password, creatorToken string) (*models.Room, error) {
	if name == "" || clientID == "" {
		return nil, models.ErrInvalidName
	}

	joined := false
	room, err := m.update(code, func(r *models.Room) error {
		joined = false
		if p, ok := r.Participants[clientID]; ok {
			// Rejoin of a known client; refresh activity only
			p.LastActivity = time.Now()
			return nil
		}
		if r.IsLocked {
			return models.ErrRoomLocked
		}
		if r.HasPassword && !m.creatorTokenValid(creatorToken, code) {
			if bcrypt.CompareHashAndPassword([]byte(r.PasswordHash), []byte(password)) != nil {
				return models.ErrUnauthorized
			}
		}

		now := time.Now()
		r.Participants[clientID] = &models.Participant{
			Name:         name,
			IsHost:       len(r.Participants) == 0,
			Role:         models.RoleVoter,
			JoinedAt:     now,
			LastActivity: now,
		}
		joined = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if joined {
		m.consumeCreatorToken(creatorToken)
		m.analytics.Bump(analytics.CounterParticipants)
	}
	return room, nil
}

// CastVote records a vote for the current round. Casting while votes
// are revealed, or as a spectator, is a silent no-op. The first vote of
// a round locks the room against late joins.
func (m *Manager) CastVote(code, clientID, value string) (*models.Room, error) {
	cast := false
	room, err := m.update(code, func(r *models.Room) error {
		cast = false
		p, ok := r.Participants[clientID]
		if !ok {
			return models.ErrParticipantNotFound
		}
		if r.VotesRevealed || p.Role == models.RoleSpectator {
			return errNoChange
		}
		if !models.ValidVote(r.ScaleType, value) {
			return models.ErrInvalidVote
		}

		r.Votes[clientID] = models.Vote{Value: value}
		r.IsLocked = true
		p.LastActivity = time.Now()
		cast = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cast {
		m.analytics.Bump(analytics.CounterVotesCast)
	}
	return room, nil
}

// RevealVotes exposes all cast values. Host only; revealing an already
// revealed round is a no-op.
func (m *Manager) RevealVotes(code, callerID string) (*models.Room, error) {
	room, _, err := m.reveal(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		return nil
	})
	return room, err
}

// systemReveal is the auto-reveal entry point. It bypasses the host
// check but re-validates against the fresh document: the observed round
// must still be current and every voter must still have a vote, since
// the snapshot that armed the trigger may be stale by the time the
// debounce elapses. Reports whether a reveal was committed.
func (m *Manager) systemReveal(code string, round int) bool {
	_, revealed, _ := m.reveal(code, func(r *models.Room) error {
		if r.Round != round || !ShouldAutoReveal(r) {
			return errNoChange
		}
		return nil
	})
	return revealed
}

func (m *Manager) reveal(code string, authorize func(*models.Room) error) (*models.Room, bool, error) {
	var record models.RoundRecord
	revealed := false
	room, err := m.update(code, func(r *models.Room) error {
		revealed = false
		if err := authorize(r); err != nil {
			return err
		}
		if r.VotesRevealed {
			return errNoChange
		}

		r.VotesRevealed = true
		record = summarizeRound(r)
		r.RoundHistory = append(r.RoundHistory, record)
		revealed = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if revealed {
		m.analytics.Bump(analytics.CounterRoundsCompleted)
		m.analytics.ArchiveRoundAsync(code, record)
	}
	return room, revealed, nil
}

// summarizeRound builds the history record for the round being revealed
func summarizeRound(r *models.Room) models.RoundRecord {
	votes := make(map[string]models.Vote, len(r.Votes))
	values := make([]string, 0, len(r.Votes))
	for id, v := range r.Votes {
		votes[id] = v
		values = append(values, v.Value)
	}

	result := consensus.Calculate(values)
	return models.RoundRecord{
		Ticket:           r.CurrentTicket,
		Votes:            votes,
		Average:          result.Average,
		ConsensusPercent: result.Percent,
		Outcome:          string(result.Band),
		CompletedAt:      time.Now(),
	}
}

// ResetRound starts a fresh round: votes and ticket cleared, room
// unrevealed and unlocked. The next queued ticket, if any, becomes
// current. Host only.
func (m *Manager) ResetRound(code, callerID string) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}

		startNewRound(r)
		return nil
	})
}

func startNewRound(r *models.Room) {
	r.Votes = make(map[string]models.Vote)
	r.VotesRevealed = false
	r.IsLocked = false
	r.CurrentTicket = ""
	r.Timer = nil
	r.Round++

	if len(r.TicketQueue) > 0 {
		r.CurrentTicket = r.TicketQueue[0]
		r.TicketQueue = r.TicketQueue[1:]
	}
}

// ToggleRole flips a participant between voter and spectator. Becoming
// a spectator discards any vote already cast.
func (m *Manager) ToggleRole(code, clientID string) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		p, ok := r.Participants[clientID]
		if !ok {
			return models.ErrParticipantNotFound
		}

		if p.Role == models.RoleVoter {
			p.Role = models.RoleSpectator
			delete(r.Votes, clientID)
		} else {
			p.Role = models.RoleVoter
		}
		p.LastActivity = time.Now()
		return nil
	})
}

// KickParticipant removes another participant and their vote. Host
// only; kicking yourself is the same as leaving. The returned room is
// nil when the self-kick emptied and deleted the room.
func (m *Manager) KickParticipant(code, callerID, targetID string) (*models.Room, error) {
	if callerID == targetID {
		if err := m.LeaveRoom(code, callerID); err != nil {
			return nil, err
		}
		snap, err := m.store.Get(code)
		if errors.Is(err, models.ErrRoomNotFound) {
			// Caller was the last participant; the room is gone
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return snap.Room, nil
	}

	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		if _, ok := r.Participants[targetID]; !ok {
			return models.ErrParticipantNotFound
		}

		delete(r.Participants, targetID)
		delete(r.Votes, targetID)
		return nil
	})
}

// LeaveRoom removes the caller from the room. A departing host hands
// the role to a randomly chosen remaining participant; the last
// participant out deletes the room entirely.
func (m *Manager) LeaveRoom(code, clientID string) error {
	for i := 0; i < casRetries; i++ {
		snap, err := m.store.Get(code)
		if err != nil {
			return err
		}

		r := snap.Room
		p, ok := r.Participants[clientID]
		if !ok {
			return models.ErrParticipantNotFound
		}
		wasHost := p.IsHost

		delete(r.Participants, clientID)
		delete(r.Votes, clientID)

		if len(r.Participants) == 0 {
			err = m.store.CompareAndDelete(code, snap.Version)
			if err == nil {
				m.watcher.Forget(code)
				m.analytics.Bump(analytics.CounterRoomsClosed)
				return nil
			}
		} else {
			if wasHost {
				remaining := make([]string, 0, len(r.Participants))
				for id := range r.Participants {
					remaining = append(remaining, id)
				}
				r.Participants[remaining[mrand.Intn(len(remaining))]].IsHost = true
			}
			err = m.store.CompareAndSwap(code, snap.Version, r)
			if err == nil {
				m.watcher.Observe(r)
				return nil
			}
		}

		if !errors.Is(err, models.ErrVersionConflict) {
			return err
		}
	}
	return models.ErrVersionConflict
}

// ChangeScale switches the room to a different deck. Only allowed while
// votes are revealed; the switch starts a fresh round under the new
// scale so old votes never mix with new card values.
func (m *Manager) ChangeScale(code, callerID string, scale models.ScaleType) (*models.Room, error) {
	if !models.ValidScale(scale) {
		return nil, models.ErrInvalidScale
	}

	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		if !r.VotesRevealed {
			return models.ErrRoundInProgress
		}

		r.ScaleType = scale
		startNewRound(r)
		return nil
	})
}

// SetTicket names the item under estimation. Host only.
func (m *Manager) SetTicket(code, callerID, ticket string) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		r.CurrentTicket = ticket
		return nil
	})
}

// QueueTicket appends a pending ticket description. Host only.
func (m *Manager) QueueTicket(code, callerID, ticket string) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		r.TicketQueue = append(r.TicketQueue, ticket)
		return nil
	})
}

// SettingsUpdate carries partial flag changes; nil fields are untouched
type SettingsUpdate struct {
	AutoReveal      *bool
	AnonymousVoting *bool
	ShowTooltips    *bool
	ConfettiEnabled *bool
	IsLocked        *bool
}

// UpdateSettings applies configuration flag changes. Host only.
func (m *Manager) UpdateSettings(code, callerID string, upd SettingsUpdate) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}

		if upd.AutoReveal != nil {
			r.Settings.AutoReveal = *upd.AutoReveal
		}
		if upd.AnonymousVoting != nil {
			r.Settings.AnonymousVoting = *upd.AnonymousVoting
		}
		if upd.ShowTooltips != nil {
			r.Settings.ShowTooltips = *upd.ShowTooltips
		}
		if upd.ConfettiEnabled != nil {
			r.Settings.ConfettiEnabled = *upd.ConfettiEnabled
		}
		if upd.IsLocked != nil {
			r.IsLocked = *upd.IsLocked
		}
		return nil
	})
}

// StartTimer begins the room countdown. Host only.
func (m *Manager) StartTimer(code, callerID string, seconds int) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		r.Timer = &models.Timer{
			StartTime: time.Now(),
			Duration:  seconds,
			IsRunning: true,
		}
		return nil
	})
}

// StopTimer halts the room countdown. Host only.
func (m *Manager) StopTimer(code, callerID string) (*models.Room, error) {
	return m.update(code, func(r *models.Room) error {
		if r.HostID() != callerID {
			return models.ErrNotHost
		}
		if r.Timer == nil {
			return errNoChange
		}
		r.Timer.IsRunning = false
		return nil
	})
}

// CleanupEmptyRooms reaps abandoned rooms along with their auto-reveal
// trigger state.
func (m *Manager) CleanupEmptyRooms() int {
	codes := m.store.CleanupEmptyRooms()
	for _, code := range codes {
		m.watcher.Forget(code)
	}
	return len(codes)
}

// Heartbeat refreshes a participant's last-activity stamp. Callers
// treat failures as non-fatal.
func (m *Manager) Heartbeat(code, clientID string) error {
	_, err := m.update(code, func(r *models.Room) error {
		p, ok := r.Participants[clientID]
		if !ok {
			return models.ErrParticipantNotFound
		}
		p.LastActivity = time.Now()
		return nil
	})
	return err
}

// Snapshot returns the current room state for a member of the room.
func (m *Manager) Snapshot(code, clientID string) (*models.Room, error) {
	snap, err := m.store.Get(code)
	if err != nil {
		return nil, err
	}
	if _, ok := snap.Room.Participants[clientID]; !ok {
		return nil, models.ErrParticipantNotFound
	}
	return snap.Room, nil
}

func (m *Manager) creatorTokenValid(token, code string) bool {
	if token == "" {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	claim, ok := m.creatorTokens[token]
	if !ok {
		return false
	}
	if time.Now().After(claim.expires) {
		delete(m.creatorTokens, token)
		return false
	}
	return claim.roomCode == code
}

func (m *Manager) consumeCreatorToken(token string) {
	if token == "" {
		return
	}
	m.mu.Lock()
	delete(m.creatorTokens, token)
	m.mu.Unlock()
}

func generateCode() string {
	code := make([]byte, codeLength)
	for i := range code {
		code[i] = codeAlphabet[mrand.Intn(len(codeAlphabet))]
	}
	return string(code)
}

func generateToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
