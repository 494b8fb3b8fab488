package models

import (
	"time"
)

// Role determines whether a participant takes part in voting
type Role string

// Participant roles
const (
	RoleVoter     Role = "voter"
	RoleSpectator Role = "spectator"
)

// Participant represents one client inside a room
type Participant struct {
	Name         string    `json:"name"`
	IsHost       bool      `json:"isHost"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
	LastActivity time.Time `json:"lastActivity"`
}

// Vote holds a single cast value from the room's scale deck
type Vote struct {
	Value string `json:"value"`
}

// Timer is the optional countdown sub-record of a room
type Timer struct {
	StartTime time.Time `json:"startTime"`
	Duration  int       `json:"duration"` // seconds
	IsRunning bool      `json:"isRunning"`
}

// RoundRecord captures a completed round for the history log
type RoundRecord struct {
	Ticket           string          `json:"ticket"`
	Votes            map[string]Vote `json:"votes"`
	Average          *float64        `json:"average,omitempty"`
	ConsensusPercent *int            `json:"consensusPercent,omitempty"`
	Outcome          string          `json:"outcome"`
	CompletedAt      time.Time       `json:"completedAt"`
}

// Settings are the independent boolean configuration flags of a room
type Settings struct {
	AutoReveal      bool `json:"autoReveal"`
	AnonymousVoting bool `json:"anonymousVoting"`
	ShowTooltips    bool `json:"showTooltips"`
	ConfettiEnabled bool `json:"confettiEnabled"`
}

// Room represents one shared estimation session. It is a plain value
// document; all concurrency control lives in the store.
type Room struct {
	Code          string                  `json:"roomCode"`
	Participants  map[string]*Participant `json:"participants"`
	Votes         map[string]Vote         `json:"votes"`
	VotesRevealed bool                    `json:"votesRevealed"`
	CurrentTicket string                  `json:"currentTicket"`
	TicketQueue   []string                `json:"ticketQueue"`
	ScaleType     ScaleType               `json:"scaleType"`
	Settings      Settings                `json:"settings"`
	PasswordHash  string                  `json:"-"`
	HasPassword   bool                    `json:"hasPassword"`
	IsLocked      bool                    `json:"isLocked"`
	Timer         *Timer                  `json:"timer,omitempty"`
	Round         int                     `json:"round"`
	RoundHistory  []RoundRecord           `json:"roundHistory"`
	CreatedAt     time.Time               `json:"createdAt"`
}

// Clone returns a deep copy of the room so callers can mutate a snapshot
// without racing readers of the stored document.
func (r *Room) Clone() *Room {
	c := *r

	c.Participants = make(map[string]*Participant, len(r.Participants))
	for id, p := range r.Participants {
		pc := *p
		c.Participants[id] = &pc
	}

	c.Votes = make(map[string]Vote, len(r.Votes))
	for id, v := range r.Votes {
		c.Votes[id] = v
	}

	c.TicketQueue = append([]string(nil), r.TicketQueue...)

	c.RoundHistory = make([]RoundRecord, len(r.RoundHistory))
	for i, rec := range r.RoundHistory {
		votes := make(map[string]Vote, len(rec.Votes))
		for id, v := range rec.Votes {
			votes[id] = v
		}
		rec.Votes = votes
		c.RoundHistory[i] = rec
	}

	if r.Timer != nil {
		t := *r.Timer
		c.Timer = &t
	}

	return &c
}

// HostID returns the client id of the current host, or "" if the room
// has no participants.
func (r *Room) HostID() string {
	for id, p := range r.Participants {
		if p.IsHost {
			return id
		}
	}
	return ""
}

// VoterIDs returns the ids of all non-spectator participants.
func (r *Room) VoterIDs() []string {
	ids := make([]string, 0, len(r.Participants))
	for id, p := range r.Participants {
		if p.Role == RoleVoter {
			ids = append(ids, id)
		}
	}
	return ids
}

// AllVotersVoted reports whether every non-spectator participant has a
// vote entry. False when the room has no voters at all.
func (r *Room) AllVotersVoted() bool {
	voters := r.VoterIDs()
	if len(voters) == 0 {
		return false
	}
	for _, id := range voters {
		if _, ok := r.Votes[id]; !ok {
			return false
		}
	}
	return true
}

// Event represents a message pushed to room subscribers
type Event struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}
