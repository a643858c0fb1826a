package risk

import (
	"sync"
	"time"

	"github.com/joffchandler/Sentinel-flight-ops/internal/ids"
)

type evaluation struct {
	id      string
	started time.Time
}

// Tracker remembers the current evaluation of each scope, usually a
// principal. Starting a new evaluation supersedes the previous one.
type Tracker struct {
	mu      sync.Mutex
	current map[string]evaluation
	now     func() time.Time
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		current: make(map[string]evaluation),
		now:     time.Now,
	}
}

// Begin starts a new evaluation for scope and returns its id.
func (t *Tracker) Begin(scope string) string {
	now := t.now()
	id := ids.NewAt(now)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.current[scope] = evaluation{id: id, started: now}
	return id
}

// IsCurrent returns true if id is still the newest evaluation of scope.
func (t *Tracker) IsCurrent(scope, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.current[scope]
	return ok && cur.id == id
}

// Claim atomically ends the evaluation if it is still current. Only a
// successful claim may publish a decision.
func (t *Tracker) Claim(scope, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	cur, ok := t.current[scope]
	if !ok || cur.id != id {
		return false
	}
	delete(t.current, scope)
	return true
}

// Abandon drops the evaluation if it is still current.
func (t *Tracker) Abandon(scope, id string) {
	t.Claim(scope, id)
}

// Prune drops evaluations started before maxAge ago and returns how many
// were removed.
func (t *Tracker) Prune(maxAge time.Duration) int {
	cutoff := t.now().Add(-maxAge)

	t.mu.Lock()
	defer t.mu.Unlock()

	removed := 0
	for scope, ev := range t.current {
		if ev.started.Before(cutoff) {
			delete(t.current, scope)
			removed++
		}
	}
	return removed
}

// Len returns the number of evaluations in flight.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.current)
}
