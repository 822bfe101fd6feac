package domain

import (
	"errors"
	"fmt"
	"time"
)

// HintLevel is an ordinal for hint specificity. Higher levels cost more.
type HintLevel int

const (
	HintNudge HintLevel = iota
	HintGuidance
	HintPattern
	HintStructure
)

// MaxHintLevel is the most specific hint available.
const MaxHintLevel = HintStructure

// penaltySchedule maps hint level to points charged.
var penaltySchedule = [...]int{
	HintNudge:     0,
	HintGuidance:  5,
	HintPattern:   10,
	HintStructure: 20,
}

// ErrInvalidHintLevel is returned for a level outside the schedule.
var ErrInvalidHintLevel = errors.New("invalid hint level")

// HintPenalty returns the points charged for a hint at level.
func HintPenalty(level int) (int, error) {
	if level < int(HintNudge) || level > int(MaxHintLevel) {
		return 0, fmt.Errorf("%w: %d", ErrInvalidHintLevel, level)
	}
	return penaltySchedule[level], nil
}

// String returns the level name used in prompts and logs.
func (l HintLevel) String() string {
	switch l {
	case HintNudge:
		return "nudge"
	case HintGuidance:
		return "guidance"
	case HintPattern:
		return "pattern"
	case HintStructure:
		return "structure"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// HintSource marks where hint text came from.
type HintSource string

const (
	HintSourceAI       HintSource = "ai"
	HintSourceFallback HintSource = "fallback"
)

// Hint is a generated hint and the penalty it carries.
type Hint struct {
	SessionID   string     `json:"session_id"`
	ProblemID   string     `json:"problem_id"`
	UserID      string     `json:"user_id"`
	Level       HintLevel  `json:"hint_level"`
	Content     string     `json:"content"`
	CodeSnippet string     `json:"code_snippet,omitempty"`
	Penalty     int        `json:"penalty"`
	Source      HintSource `json:"source"`
	CreatedAt   time.Time  `json:"created_at"`
}
