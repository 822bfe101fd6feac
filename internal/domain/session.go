package domain

import (
	"time"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusAbandoned  Status = "abandoned"
	StatusCompleted  Status = "completed"
)

// stage orders statuses for forward-only transitions.
// submitted and abandoned share a stage: neither can become the other.
func (s Status) stage() int {
	switch s {
	case StatusInProgress:
		return 0
	case StatusSubmitted, StatusAbandoned:
		return 1
	case StatusCompleted:
		return 2
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.stage() >= 0
}

// CanTransitionTo reports whether moving from s to next is a forward move.
func (s Status) CanTransitionTo(next Status) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	return next.stage() > s.stage()
}

// Active reports whether the participant may still be editing.
func (s Status) Active() bool {
	return s == StatusInProgress
}

// Session is one participant's attempt at one problem.
type Session struct {
	ID                   string     `json:"id"`
	ProblemID            string     `json:"problem_id"`
	UserID               string     `json:"user_id"`
	Status               Status     `json:"status"`
	StartedAt            time.Time  `json:"started_at"`
	SubmittedAt          *time.Time `json:"submitted_at"`
	LastActivityAt       time.Time  `json:"last_activity_at"`
	PointsEarned         int        `json:"points_earned"`
	HintPenalty          int        `json:"hint_penalty"`
	TotalHintsUsed       int        `json:"total_hints_used"`
	AIPairProgrammerUsed bool       `json:"ai_pair_programmer_used"`
	StarterCode          string     `json:"starter_code,omitempty"`
}

// NetScore is the earned score minus accumulated hint penalties, floored at zero.
func (s *Session) NetScore() int {
	net := s.PointsEarned - s.HintPenalty
	if net < 0 {
		return 0
	}
	return net
}
