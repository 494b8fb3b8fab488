package store

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/pointdeck/pointdeck/models"
)

func testRoom(code string) *models.Room {
	return &models.Room{
		Code:         code,
		Participants: make(map[string]*models.Participant),
		Votes:        make(map[string]models.Vote),
		ScaleType:    models.ScaleFibonacci,
		Round:        1,
		CreatedAt:    time.Now(),
	}
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	s := NewStore()

	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := s.Create(testRoom("ABC123")); !errors.Is(err, models.ErrRoomExists) {
		t.Errorf("expected ErrRoomExists, got %v", err)
	}
}

func TestGetReturnsIsolatedCopy(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snap, err := s.Get("ABC123")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	snap.Room.Participants["rogue"] = &models.Participant{Name: "rogue"}

	again, err := s.Get("ABC123")
	if err != nil {
		t.Fatalf("second get failed: %v", err)
	}
	if len(again.Room.Participants) != 0 {
		t.Error("mutating a snapshot leaked into the stored document")
	}
}

func TestCompareAndSwapRejectsStaleVersion(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snap, _ := s.Get("ABC123")
	if err := s.CompareAndSwap("ABC123", snap.Version, snap.Room); err != nil {
		t.Fatalf("first swap failed: %v", err)
	}

	// Same version again is now stale
	if err := s.CompareAndSwap("ABC123", snap.Version, snap.Room); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("expected ErrVersionConflict, got %v", err)
	}
}

func TestCompareAndDelete(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	snap, _ := s.Get("ABC123")
	if err := s.CompareAndSwap("ABC123", snap.Version, snap.Room); err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	if err := s.CompareAndDelete("ABC123", snap.Version); !errors.Is(err, models.ErrVersionConflict) {
		t.Errorf("stale delete: expected ErrVersionConflict, got %v", err)
	}

	current, _ := s.Get("ABC123")
	if err := s.CompareAndDelete("ABC123", current.Version); err != nil {
		t.Fatalf("current delete failed: %v", err)
	}
	if _, err := s.Get("ABC123"); !errors.Is(err, models.ErrRoomNotFound) {
		t.Errorf("expected ErrRoomNotFound after delete, got %v", err)
	}
}

func TestSubscribeReceivesSnapshots(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	events, err := s.Subscribe("ABC123")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	snap, _ := s.Get("ABC123")
	snap.Room.CurrentTicket = "PROJ-1"
	if err := s.CompareAndSwap("ABC123", snap.Version, snap.Room); err != nil {
		t.Fatalf("swap failed: %v", err)
	}

	select {
	case event := <-events:
		if event.Type != models.EventTypeSnapshot {
			t.Errorf("event type = %q, want %q", event.Type, models.EventTypeSnapshot)
		}
		room, ok := event.Payload.(*models.Room)
		if !ok {
			t.Fatalf("payload is %T, want *models.Room", event.Payload)
		}
		if room.CurrentTicket != "PROJ-1" {
			t.Errorf("ticket = %q, want PROJ-1", room.CurrentTicket)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot event received")
	}
}

func TestDeleteClosesSubscribers(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	events, err := s.Subscribe("ABC123")
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	if err := s.Delete("ABC123"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	// First a room_closed event, then channel close
	select {
	case event := <-events:
		if event.Type != models.EventTypeRoomClosed {
			t.Errorf("event type = %q, want %q", event.Type, models.EventTypeRoomClosed)
		}
	case <-time.After(time.Second):
		t.Fatal("no room_closed event received")
	}

	select {
	case _, ok := <-events:
		if ok {
			t.Error("expected channel close after room_closed")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after delete")
	}
}

func TestConcurrentWritersLoseNoUpdates(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("ABC123")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("client-%d", i)
			for {
				snap, err := s.Get("ABC123")
				if err != nil {
					t.Errorf("get failed: %v", err)
					return
				}
				snap.Room.Participants[id] = &models.Participant{Name: id}
				err = s.CompareAndSwap("ABC123", snap.Version, snap.Room)
				if err == nil {
					return
				}
				if !errors.Is(err, models.ErrVersionConflict) {
					t.Errorf("swap failed: %v", err)
					return
				}
			}
		}(i)
	}
	wg.Wait()

	snap, _ := s.Get("ABC123")
	if len(snap.Room.Participants) != 50 {
		t.Errorf("expected 50 participants, got %d", len(snap.Room.Participants))
	}
}

func TestCleanupEmptyRooms(t *testing.T) {
	s := NewStore()
	if err := s.Create(testRoom("EMPTY1")); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	occupied := testRoom("BUSY42")
	occupied.Participants["c1"] = &models.Participant{Name: "alice", IsHost: true}
	if err := s.Create(occupied); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reaped := s.CleanupEmptyRooms()
	if len(reaped) != 1 || reaped[0] != "EMPTY1" {
		t.Errorf("reaped = %v, want [EMPTY1]", reaped)
	}
	if _, err := s.Get("EMPTY1"); !errors.Is(err, models.ErrRoomNotFound) {
		t.Error("empty room should have been removed")
	}
	if _, err := s.Get("BUSY42"); err != nil {
		t.Error("occupied room should have survived cleanup")
	}
}
