package client

import (
	"sync"
	"time"
)

// QuotaSnapshot is the server-provided view of today's usage, delivered with
// the initial page-load payload. LastRequestDate is a UTC civil date in
// 2006-01-02 form; when it lags behind today the server's counters are from
// a prior day and usage is treated as zero.
type QuotaSnapshot struct {
	PromptUsedToday int
	RenderUsedToday int
	PromptLimit     int
	RenderLimit     int
	LastRequestDate string
}

// QuotaCounter selects which daily counter a submission consumes.
type QuotaCounter string

const (
	CounterPrompt QuotaCounter = "prompt"
	CounterRender QuotaCounter = "render"
)

// QuotaTracker maintains the optimistic client-side usage counters. Counts
// only grow within a session; the server corrects them by supplying a fresh
// snapshot on the next full load. The values are advisory, never
// authoritative.
type QuotaTracker struct {
	mu   sync.Mutex
	snap QuotaSnapshot
}

// NewQuotaTracker seeds the tracker from a server snapshot.
func NewQuotaTracker(snapshot QuotaSnapshot) *QuotaTracker {
	return &QuotaTracker{snap: snapshot}
}

// IncrementPrompt records one accepted prompt generation.
func (t *QuotaTracker) IncrementPrompt() {
	t.mu.Lock()
	t.snap.PromptUsedToday++
	t.mu.Unlock()
}

// IncrementRender records one accepted render submission.
func (t *QuotaTracker) IncrementRender() {
	t.mu.Lock()
	t.snap.RenderUsedToday++
	t.mu.Unlock()
}

// Increment bumps the chosen counter.
func (t *QuotaTracker) Increment(counter QuotaCounter) {
	switch counter {
	case CounterPrompt:
		t.IncrementPrompt()
	case CounterRender:
		t.IncrementRender()
	}
}

// Snapshot returns a copy of the current counters.
func (t *QuotaTracker) Snapshot() QuotaSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Reset replaces the whole state from a fresh server snapshot. There is no
// client-initiated partial reset.
func (t *QuotaTracker) Reset(snapshot QuotaSnapshot) {
	t.mu.Lock()
	t.snap = snapshot
	t.mu.Unlock()
}

// Exhausted reports whether the chosen counter has reached its limit for the
// given day. Counters recorded on a prior day do not gate: the client
// permits submission until the server corrects the snapshot.
func (s QuotaSnapshot) Exhausted(counter QuotaCounter, today string) bool {
	if s.LastRequestDate != today {
		return false
	}
	switch counter {
	case CounterPrompt:
		return s.PromptUsedToday >= s.PromptLimit
	case CounterRender:
		return s.RenderUsedToday >= s.RenderLimit
	default:
		return false
	}
}

// CivilDate formats a timestamp as the UTC civil date used for quota gating.
func CivilDate(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
