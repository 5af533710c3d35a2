package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the server-side session status.
type Status string

const (
	StatusRunning  Status = "running"
	StatusPaused   Status = "paused"
	StatusFinished Status = "finished"
)

func (s Status) Validate() error {
	switch s {
	case StatusRunning, StatusPaused, StatusFinished:
		return nil
	default:
		return fmt.Errorf("unsupported session status %q", string(s))
	}
}

// LocalStatus is the client view of the session. NoSession has no server
// counterpart.
type LocalStatus string

const (
	LocalNoSession LocalStatus = "no_session"
	LocalRunning   LocalStatus = "running"
	LocalPaused    LocalStatus = "paused"
	LocalFinished  LocalStatus = "finished"
)

// Session mirrors the remote focus session payload. ExpectedEndUTC is set by
// the server and is nil while paused.
type Session struct {
	ID                     string     `json:"session_id"`
	PromiseID              string     `json:"promise_id"`
	Status                 Status     `json:"status"`
	PlannedDurationMinutes int        `json:"planned_duration_minutes"`
	ExpectedEndUTC         *time.Time `json:"expected_end_utc"`
	RemainingSeconds       *int       `json:"remaining_seconds,omitempty"`
}

func (s Session) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("session id is required")
	}
	if err := s.Status.Validate(); err != nil {
		return err
	}
	if s.PlannedDurationMinutes <= 0 {
		return fmt.Errorf("planned duration must be positive, got %d", s.PlannedDurationMinutes)
	}
	if s.Status == StatusRunning && s.ExpectedEndUTC == nil {
		return fmt.Errorf("running session %s has no expected end", s.ID)
	}
	return nil
}

func (s Session) PlannedSeconds() int {
	return s.PlannedDurationMinutes * 60
}

// RemainingAt computes the whole seconds left until the deadline, rounded up
// so the countdown reaches zero only once the deadline has passed.
func (s Session) RemainingAt(now time.Time) int {
	if s.ExpectedEndUTC == nil {
		return 0
	}
	left := s.ExpectedEndUTC.Sub(now)
	if left <= 0 {
		return 0
	}
	secs := int(left / time.Second)
	if left%time.Second != 0 {
		secs++
	}
	return secs
}

// Clone returns a deep copy so callers never share pointers with the
// controller's state.
func (s Session) Clone() Session {
	out := s
	if s.ExpectedEndUTC != nil {
		end := *s.ExpectedEndUTC
		out.ExpectedEndUTC = &end
	}
	if s.RemainingSeconds != nil {
		rem := *s.RemainingSeconds
		out.RemainingSeconds = &rem
	}
	return out
}

// ProgressFraction is 1 - remaining/planned clamped to [0,1].
func ProgressFraction(remainingSeconds, plannedSeconds int) float64 {
	if plannedSeconds <= 0 {
		return 0
	}
	f := 1 - float64(remainingSeconds)/float64(plannedSeconds)
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

// Snapshot is an immutable view of the controller state.
type Snapshot struct {
	Session          *Session
	Status           LocalStatus
	RemainingSeconds int
	ProgressFraction float64
}

func (s Snapshot) HasSession() bool { return s.Session != nil }
