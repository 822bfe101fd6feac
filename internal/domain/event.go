package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType tags an event and determines the shape of its payload.
type EventType string

const (
	EventCodeChange      EventType = "code_change"
	EventCursorMove      EventType = "cursor_move"
	EventSelectionChange EventType = "selection_change"
	EventPause           EventType = "pause"
	EventResume          EventType = "resume"
	EventRunCode         EventType = "run_code"
	EventHintRequest     EventType = "hint_request"
	EventAIPairRequest   EventType = "ai_pair_request"
	EventTestRun         EventType = "test_run"
)

// EventTypes lists every known event type in a stable order.
var EventTypes = []EventType{
	EventCodeChange,
	EventCursorMove,
	EventSelectionChange,
	EventPause,
	EventResume,
	EventRunCode,
	EventHintRequest,
	EventAIPairRequest,
	EventTestRun,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	for _, known := range EventTypes {
		if t == known {
			return true
		}
	}
	return false
}

var (
	// ErrUnknownEventType is returned when decoding a payload for an unrecognised tag.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrMalformedPayload is returned when a payload does not match its tag.
	ErrMalformedPayload = errors.New("malformed event payload")
)

// Event is a single timestamped record of activity within a session.
// TimestampMS is elapsed milliseconds since the session started.
type Event struct {
	ID          string          `json:"id"`
	Seq         int64           `json:"seq"`
	SessionID   string          `json:"session_id"`
	UserID      string          `json:"user_id,omitempty"`
	Type        EventType       `json:"event_type"`
	TimestampMS int64           `json:"timestamp_ms"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Decode returns the typed payload for the event.
func (e *Event) Decode() (Payload, error) {
	return DecodePayload(e.Type, e.Payload)
}

// Position is a 1-based line/column location in the editor.
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Payload is the closed set of event payloads. The concrete type is fixed by
// the event type tag.
type Payload interface {
	EventType() EventType
	validate() error
}

// CodeChange carries the full editor buffer after an edit.
type CodeChange struct {
	Code     string    `json:"code"`
	Language string    `json:"language,omitempty"`
	Cursor   *Position `json:"cursor,omitempty"`
}

// CursorMove records a caret movement.
type CursorMove struct {
	Position Position `json:"position"`
}

// SelectionChange records a selection range; the caret sits at End.
type SelectionChange struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Pause marks the editor losing focus or the participant going idle.
type Pause struct {
	Reason string `json:"reason,omitempty"`
}

// Resume marks the participant returning.
type Resume struct{}

// RunCode records an execution of the participant's code.
type RunCode struct {
	Code       string `json:"code,omitempty"`
	Output     string `json:"output,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

// HintRequest records a hint being requested and charged.
type HintRequest struct {
	Level   int    `json:"level"`
	Code    string `json:"code,omitempty"`
	Penalty int    `json:"penalty"`
	Source  string `json:"source,omitempty"`
}

// AIPairRequest records a pair-programmer request.
type AIPairRequest struct {
	Prompt string `json:"prompt,omitempty"`
	Code   string `json:"code,omitempty"`
}

// TestRun records the outcome of running the problem's test cases.
type TestRun struct {
	Code    string       `json:"code,omitempty"`
	Passed  int          `json:"passed"`
	Total   int          `json:"total"`
	Results []TestResult `json:"results,omitempty"`
}

// TestResult is the outcome of a single test case.
type TestResult struct {
	Name     string `json:"name,omitempty"`
	Passed   bool   `json:"passed"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
	Error    string `json:"error,omitempty"`
	TimeMS   int64  `json:"time_ms"`
}

func (CodeChange) EventType() EventType      { return EventCodeChange }
func (CursorMove) EventType() EventType      { return EventCursorMove }
func (SelectionChange) EventType() EventType { return EventSelectionChange }
func (Pause) EventType() EventType           { return EventPause }
func (Resume) EventType() EventType          { return EventResume }
func (RunCode) EventType() EventType         { return EventRunCode }
func (HintRequest) EventType() EventType     { return EventHintRequest }
func (AIPairRequest) EventType() EventType   { return EventAIPairRequest }
func (TestRun) EventType() EventType         { return EventTestRun }

func (CodeChange) validate() error { return nil }

func (p CursorMove) validate() error {
	return p.Position.validate()
}

func (p SelectionChange) validate() error {
	if err := p.Start.validate(); err != nil {
		return err
	}
	return p.End.validate()
}

func (Pause) validate() error   { return nil }
func (Resume) validate() error  { return nil }
func (RunCode) validate() error { return nil }

func (p HintRequest) validate() error {
	if _, err := HintPenalty(p.Level); err != nil {
		return err
	}
	return nil
}

func (AIPairRequest) validate() error { return nil }

func (p TestRun) validate() error {
	if p.Passed < 0 || p.Total < 0 || p.Passed > p.Total {
		return fmt.Errorf("passed %d of %d", p.Passed, p.Total)
	}
	return nil
}

func (p Position) validate() error {
	if p.Line < 1 || p.Column < 1 {
		return fmt.Errorf("position %d:%d out of range", p.Line, p.Column)
	}
	return nil
}

// codeChangeWire distinguishes a missing buffer from an empty one.
type codeChangeWire struct {
	Code     *string   `json:"code"`
	Language string    `json:"language,omitempty"`
	Cursor   *Position `json:"cursor,omitempty"`
}

// DecodePayload decodes raw into the payload type selected by t.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}

	var (
		p   Payload
		err error
	)
	switch t {
	case EventCodeChange:
		var w codeChangeWire
		if err = json.Unmarshal(raw, &w); err == nil {
			if w.Code == nil {
				return nil, fmt.Errorf("%w: code_change without code", ErrMalformedPayload)
			}
			p = CodeChange{Code: *w.Code, Language: w.Language, Cursor: w.Cursor}
		}
	case EventCursorMove:
		p, err = decodeInto[CursorMove](raw)
	case EventSelectionChange:
		p, err = decodeInto[SelectionChange](raw)
	case EventPause:
		p, err = decodeInto[Pause](raw)
	case EventResume:
		p, err = decodeInto[Resume](raw)
	case EventRunCode:
		p, err = decodeInto[RunCode](raw)
	case EventHintRequest:
		p, err = decodeInto[HintRequest](raw)
	case EventAIPairRequest:
		p, err = decodeInto[AIPairRequest](raw)
	case EventTestRun:
		p, err = decodeInto[TestRun](raw)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownEventType, t)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, t, err)
	}
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, t, err)
	}
	return p, nil
}

func decodeInto[T Payload](raw json.RawMessage) (Payload, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// EncodePayload validates p and returns its JSON form.
func EncodePayload(p Payload) (json.RawMessage, error) {
	if err := p.validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedPayload, p.EventType(), err)
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", p.EventType(), err)
	}
	return b, nil
}
