// Package health tracks the three-state health of something that is fed
// success/failure events classified by internal/classify — an agent's
// provider connection, an MCP server connection, or any other fallible
// external collaborator.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/nextlevelbuilder/agentworker/internal/classify"
)

type Status string

const (
	StatusHealthy     Status = "healthy"
	StatusDegraded    Status = "degraded"
	StatusUnavailable Status = "unavailable"
)

// DefaultThreshold is T in the state table: T-1 consecutive transient
// failures force a transition straight to unavailable.
const DefaultThreshold = 5

// LastError snapshots the most recent failure classification.
type LastError struct {
	Class   classify.Class
	Message string
	At      time.Time
}

// State is an immutable snapshot of a Tracker, safe to hand to callers.
type State struct {
	Status              Status
	ConsecutiveFailures int
	LastError           *LastError
	LastSuccess         *time.Time
	TotalFailures       int64
	TotalSuccesses      int64
}

// Tracker is the mutable three-state machine described in the daemon's
// health-tracking design. One Tracker is owned per health-observed
// resource (per agent, per MCP server connection, ...).
type Tracker struct {
	mu sync.Mutex

	threshold int
	label     string

	status         Status
	cf             int
	lastErr        *LastError
	lastSuccess    *time.Time
	totalFailures  int64
	totalSuccesses int64
}

// New constructs a Tracker starting healthy, with threshold T (0 uses
// DefaultThreshold) and a label used only for log attribution.
func New(label string, threshold int) *Tracker {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Tracker{
		threshold: threshold,
		label:     label,
		status:    StatusHealthy,
	}
}

// Success records a success: resets the consecutive-failure counter and,
// from any status, transitions back to healthy.
func (t *Tracker) Success() {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.status
	t.status = StatusHealthy
	t.cf = 0
	now := time.Now()
	t.lastSuccess = &now
	t.totalSuccesses++

	t.logTransition(from, t.status)
}

// Failure records a classified failure and applies the transition table
// in the component design: transient failures escalate to unavailable once
// the consecutive count reaches threshold-1; auth/resource failures go
// straight to unavailable; unknown failures degrade without forcing
// unavailable.
func (t *Tracker) Failure(ce *classify.ClassifiedError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	from := t.status
	t.cf++
	t.totalFailures++
	t.lastErr = &LastError{Class: ce.Class, Message: ce.Message, At: time.Now()}

	switch ce.Class {
	case classify.ClassAuth, classify.ClassResource:
		t.status = StatusUnavailable
	case classify.ClassTransient:
		if t.cf >= t.threshold-1 {
			t.status = StatusUnavailable
		} else if from != StatusUnavailable {
			t.status = StatusDegraded
		}
	default: // unknown
		if from != StatusUnavailable {
			t.status = StatusDegraded
		}
	}

	t.logTransition(from, t.status)
}

// logTransition must be called with t.mu held.
func (t *Tracker) logTransition(from, to Status) {
	if from == to {
		return
	}
	slog.Info("health.transition", "label", t.label, "from", from, "to", to, "consecutive_failures", t.cf)
}

// Snapshot returns the current state.
func (t *Tracker) Snapshot() State {
	t.mu.Lock()
	defer t.mu.Unlock()

	return State{
		Status:              t.status,
		ConsecutiveFailures: t.cf,
		LastError:           t.lastErr,
		LastSuccess:         t.lastSuccess,
		TotalFailures:       t.totalFailures,
		TotalSuccesses:      t.totalSuccesses,
	}
}
