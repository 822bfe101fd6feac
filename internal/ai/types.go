// Package ai talks to the mentor service that generates hints, grades
// submissions and proposes pair-programming steps.
package ai

import (
	"time"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// HintRequest asks for a hint at a requested level.
type HintRequest struct {
	Problem          domain.Problem `json:"problem"`
	Code             string         `json:"code"`
	Level            int            `json:"hint_level"`
	PreviousAttempts int            `json:"previous_attempts"`
	SessionID        string         `json:"session_id"`
	UserID           string         `json:"user_id"`
}

// HintResponse is the mentor's answer to a HintRequest.
type HintResponse struct {
	Hint        string `json:"hint"`
	CodeSnippet string `json:"code_snippet,omitempty"`
	Explanation string `json:"explanation,omitempty"`
}

// EvaluationRequest submits code for grading.
type EvaluationRequest struct {
	Problem   domain.Problem `json:"problem"`
	Code      string         `json:"code"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
}

// PairRequest asks for the next step while pair programming.
type PairRequest struct {
	Problem   domain.Problem `json:"problem"`
	Code      string         `json:"code"`
	Prompt    string         `json:"prompt,omitempty"`
	SessionID string         `json:"session_id"`
	UserID    string         `json:"user_id"`
}

// PairSuggestion is one streamed pair-programming step.
type PairSuggestion struct {
	Suggestion  string `json:"suggestion"`
	Explanation string `json:"explanation,omitempty"`
	CodeSnippet string `json:"code_snippet,omitempty"`
	Language    string `json:"language,omitempty"`
}

// Config holds mentor client and service settings.
type Config struct {
	Address          string
	ConnectTimeout   time.Duration
	RequestTimeout   time.Duration
	KeepaliveTime    time.Duration
	KeepaliveTimeout time.Duration

	// RetryDelays is the backoff between attempts on rate-limit errors.
	RetryDelays []time.Duration
	CacheTTL    time.Duration
	CacheSize   int
}

// DefaultConfig returns default mentor configuration.
func DefaultConfig() Config {
	return Config{
		Address:          "localhost:50051",
		ConnectTimeout:   5 * time.Second,
		RequestTimeout:   30 * time.Second,
		KeepaliveTime:    2 * time.Minute,
		KeepaliveTimeout: 10 * time.Second,
		RetryDelays:      []time.Duration{time.Second, 2 * time.Second, 4 * time.Second},
		CacheTTL:         90 * time.Second,
		CacheSize:        300,
	}
}
