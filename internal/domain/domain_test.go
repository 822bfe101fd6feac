package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStatusCanTransitionTo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusInProgress, StatusSubmitted, true},
		{StatusInProgress, StatusAbandoned, true},
		{StatusInProgress, StatusCompleted, true},
		{StatusSubmitted, StatusCompleted, true},
		{StatusAbandoned, StatusCompleted, true},
		{StatusSubmitted, StatusAbandoned, false},
		{StatusAbandoned, StatusSubmitted, false},
		{StatusSubmitted, StatusInProgress, false},
		{StatusCompleted, StatusSubmitted, false},
		{StatusCompleted, StatusCompleted, false},
		{StatusInProgress, Status("paused"), false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransitionTo(tt.to); got != tt.want {
			t.Errorf("%s -> %s: got %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestHintPenaltySchedule(t *testing.T) {
	t.Parallel()

	want := map[int]int{0: 0, 1: 5, 2: 10, 3: 20}
	for level, penalty := range want {
		got, err := HintPenalty(level)
		if err != nil {
			t.Fatalf("level %d: unexpected error %v", level, err)
		}
		if got != penalty {
			t.Errorf("level %d: got %d, want %d", level, got, penalty)
		}
	}

	for _, level := range []int{-1, 4, 99} {
		if _, err := HintPenalty(level); !errors.Is(err, ErrInvalidHintLevel) {
			t.Errorf("level %d: expected ErrInvalidHintLevel, got %v", level, err)
		}
	}
}

func TestDecodePayload(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		typ     EventType
		raw     string
		wantErr error
	}{
		{"code change", EventCodeChange, `{"code":"const a = 1"}`, nil},
		{"empty buffer is valid", EventCodeChange, `{"code":""}`, nil},
		{"code change missing buffer", EventCodeChange, `{"language":"jsx"}`, ErrMalformedPayload},
		{"cursor", EventCursorMove, `{"position":{"line":3,"column":7}}`, nil},
		{"cursor zero line", EventCursorMove, `{"position":{"line":0,"column":1}}`, ErrMalformedPayload},
		{"hint level out of range", EventHintRequest, `{"level":9}`, ErrMalformedPayload},
		{"resume with no payload", EventResume, ``, nil},
		{"test run inconsistent", EventTestRun, `{"passed":3,"total":2}`, ErrMalformedPayload},
		{"not json", EventRunCode, `{"output":`, ErrMalformedPayload},
		{"unknown tag", EventType("keystroke"), `{}`, ErrUnknownEventType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p, err := DecodePayload(tt.typ, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if p.EventType() != tt.typ {
				t.Fatalf("payload tag %s, want %s", p.EventType(), tt.typ)
			}
		})
	}
}

func TestEvaluationNormalize(t *testing.T) {
	t.Parallel()

	e := Evaluation{
		Categories: []CategoryScore{
			{Name: CategoryArchitecture, Score: 18},
			{Name: CategoryPatterns, Score: 25},
			{Name: CategoryCodeQuality, Score: -3},
		},
	}
	e.Normalize(false)

	if e.OverallScore != 38 {
		t.Fatalf("overall = %d, want 38", e.OverallScore)
	}
	if e.Categories[1].Score != CategoryMax {
		t.Fatalf("category clamp = %d, want %d", e.Categories[1].Score, CategoryMax)
	}
	if e.RequirementsMet == nil || e.RequirementsUnmet == nil {
		t.Fatal("requirement lists should be non-nil after normalize")
	}

	over := Evaluation{OverallScore: 140}
	over.Normalize(true)
	if over.OverallScore != MaxScore {
		t.Fatalf("overall clamp = %d, want %d", over.OverallScore, MaxScore)
	}
}
