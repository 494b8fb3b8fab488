package session

import (
	"sync"
	"time"

	"github.com/pointdeck/pointdeck/models"
)

// ShouldAutoReveal is the pure predicate behind automatic reveals: the
// flag is on, the round is still hidden, and every voter has a vote.
func ShouldAutoReveal(r *models.Room) bool {
	return r.Settings.AutoReveal && !r.VotesRevealed && r.AllVotersVoted()
}

// Watcher turns the predicate into a debounced one-shot trigger. Each
// observed snapshot either arms, re-confirms, or cancels a single
// pending timer per room; a round sequence number recorded at fire time
// keeps the trigger to at most once per round no matter how timer
// cancellation races with new snapshots.
type Watcher struct {
	delay  time.Duration
	reveal func(code string, round int) bool

	mu      sync.Mutex
	pending map[string]*pendingReveal
	fired   map[string]int
}

type pendingReveal struct {
	round int
	timer *time.Timer
}

// NewWatcher creates a watcher that calls reveal after the debounce
// delay once a room satisfies the predicate. The callback reports
// whether it actually committed a reveal; only then is the round marked
// as fired, so a trigger rejected against the fresh document leaves the
// round free to auto-reveal later.
func NewWatcher(delay time.Duration, reveal func(code string, round int) bool) *Watcher {
	return &Watcher{
		delay:   delay,
		reveal:  reveal,
		pending: make(map[string]*pendingReveal),
		fired:   make(map[string]int),
	}
}

// Observe re-evaluates the predicate against a fresh snapshot.
func (w *Watcher) Observe(r *models.Room) {
	w.mu.Lock()
	defer w.mu.Unlock()

	code := r.Code

	if !ShouldAutoReveal(r) {
		if p, ok := w.pending[code]; ok {
			p.timer.Stop()
			delete(w.pending, code)
		}
		return
	}

	if w.fired[code] == r.Round {
		return
	}
	if p, ok := w.pending[code]; ok && p.round == r.Round {
		return
	}
	if p, ok := w.pending[code]; ok {
		p.timer.Stop()
	}

	round := r.Round
	w.pending[code] = &pendingReveal{
		round: round,
		timer: time.AfterFunc(w.delay, func() {
			w.fire(code, round)
		}),
	}
}

func (w *Watcher) fire(code string, round int) {
	w.mu.Lock()
	p, ok := w.pending[code]
	if !ok || p.round != round {
		// A later snapshot cancelled or re-armed this trigger while the
		// timer callback was already underway
		w.mu.Unlock()
		return
	}
	delete(w.pending, code)
	if w.fired[code] == round {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	if w.reveal(code, round) {
		w.mu.Lock()
		w.fired[code] = round
		w.mu.Unlock()
	}
}

// Forget drops all watcher state for a deleted room.
func (w *Watcher) Forget(code string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if p, ok := w.pending[code]; ok {
		p.timer.Stop()
		delete(w.pending, code)
	}
	delete(w.fired, code)
}
