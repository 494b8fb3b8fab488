package store

import (
	"sync"

	"github.com/pointdeck/pointdeck/models"
)

// Snapshot is one observed version of a room document. Mutating its Room
// never affects the stored copy.
type Snapshot struct {
	Version int
	Room    *models.Room
}

// Store is an in-process document store for rooms, keyed by room code.
// Writers follow a read / mutate-copy / compare-and-swap cycle so racing
// multi-field updates surface as ErrVersionConflict instead of lost
// updates.
type Store struct {
	mu    sync.RWMutex
	rooms map[string]*entry
}

type entry struct {
	version     int
	room        *models.Room
	subscribers map[chan models.Event]bool
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		rooms: make(map[string]*entry),
	}
}

// Create inserts a new room document. Fails with ErrRoomExists if the
// code is already taken, making code uniqueness an atomic check.
func (s *Store) Create(room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[room.Code]; exists {
		return models.ErrRoomExists
	}

	s.rooms[room.Code] = &entry{
		version:     1,
		room:        room.Clone(),
		subscribers: make(map[chan models.Event]bool),
	}
	return nil
}

// Get returns the current snapshot of a room. The returned room is a
// deep copy the caller may freely mutate before a CompareAndSwap.
func (s *Store) Get(code string) (Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, exists := s.rooms[code]
	if !exists {
		return Snapshot{}, models.ErrRoomNotFound
	}
	return Snapshot{Version: e.version, Room: e.room.Clone()}, nil
}

// CompareAndSwap replaces the room document if and only if version still
// matches the stored version. Subscribers are notified of the new
// snapshot on success.
func (s *Store) CompareAndSwap(code string, version int, room *models.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[code]
	if !exists {
		return models.ErrRoomNotFound
	}
	if e.version != version {
		return models.ErrVersionConflict
	}

	e.version++
	e.room = room.Clone()

	e.notify(models.Event{
		Type:    models.EventTypeSnapshot,
		Payload: e.room,
	})
	return nil
}

// Delete removes a room document, telling subscribers the room closed
// and releasing their channels.
func (s *Store) Delete(code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(code)
}

// CompareAndDelete removes the room only if version still matches the
// stored version, so a deletion decided on a stale snapshot (say, "last
// participant left") cannot erase a concurrent join.
func (s *Store) CompareAndDelete(code string, version int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[code]
	if !exists {
		return models.ErrRoomNotFound
	}
	if e.version != version {
		return models.ErrVersionConflict
	}
	return s.deleteLocked(code)
}

func (s *Store) deleteLocked(code string) error {
	e, exists := s.rooms[code]
	if !exists {
		return models.ErrRoomNotFound
	}

	e.notify(models.Event{
		Type:    models.EventTypeRoomClosed,
		Payload: map[string]string{"roomCode": code},
	})
	for ch := range e.subscribers {
		close(ch)
	}

	delete(s.rooms, code)
	return nil
}

// Subscribe registers a new client to receive snapshot events for one room
func (s *Store) Subscribe(code string) (chan models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[code]
	if !exists {
		return nil, models.ErrRoomNotFound
	}

	ch := make(chan models.Event, 16)
	e.subscribers[ch] = true
	return ch, nil
}

// Unsubscribe removes a client from receiving events
func (s *Store) Unsubscribe(code string, ch chan models.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, exists := s.rooms[code]
	if !exists {
		return
	}
	if _, ok := e.subscribers[ch]; ok {
		delete(e.subscribers, ch)
		close(ch)
	}
}

// Count returns the number of live room documents
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms)
}

// CleanupEmptyRooms removes rooms that have no participants and
// returns their codes so callers can drop any per-room state of their
// own. Normally the last leaver deletes the room; this is the periodic
// safety net for clients that vanished without leaving.
func (s *Store) CleanupEmptyRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reaped []string
	for code, e := range s.rooms {
		if len(e.room.Participants) != 0 {
			continue
		}
		for ch := range e.subscribers {
			close(ch)
		}
		delete(s.rooms, code)
		reaped = append(reaped, code)
	}
	return reaped
}

// notify sends an event to all subscribers of one entry. Callers must
// hold the store lock.
func (e *entry) notify(event models.Event) {
	for ch := range e.subscribers {
		select {
		case ch <- event:
			// Event sent successfully
		default:
			// Subscriber is not draining; drop rather than block the store
		}
	}
}
