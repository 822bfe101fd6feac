// Package playback reconstructs editor state from a session's event log.
//
// Reconstruction is a left fold over events in store order: code_change
// replaces the whole buffer, cursor and selection events move the caret, and
// run, test, hint, pair, pause and resume events become timeline markers.
// Events that cannot be decoded are skipped so one bad row never makes a
// session unreplayable.
package playback

import (
	"fmt"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// Selection is an editor selection range.
type Selection struct {
	Start domain.Position `json:"start"`
	End   domain.Position `json:"end"`
}

// RunOutput is the most recent run or test result shown next to the editor.
type RunOutput struct {
	AtMS   int64  `json:"at_ms"`
	IsTest bool   `json:"is_test"`
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
	Passed int    `json:"passed,omitempty"`
	Total  int    `json:"total,omitempty"`
}

// State is the reconstructed editor at a point in the timeline. It is a value:
// copies never share mutable data.
type State struct {
	PositionMS   int64           `json:"position_ms"`
	LastEventMS  int64           `json:"last_event_ms"`
	Code         string          `json:"code"`
	Language     string          `json:"language,omitempty"`
	Cursor       domain.Position `json:"cursor"`
	HasCursor    bool            `json:"has_cursor"`
	Selection    Selection       `json:"selection"`
	HasSelection bool            `json:"has_selection"`
	LastRun      *RunOutput      `json:"last_run,omitempty"`
	Paused       bool            `json:"paused"`
	Applied      int             `json:"applied"`
	Skipped      int             `json:"skipped"`
	Markers      int             `json:"markers"`
	NoActivity   bool            `json:"no_activity"`
}

// Marker is a point of interest on the scrubber.
type Marker struct {
	EventID string           `json:"event_id"`
	Type    domain.EventType `json:"type"`
	AtMS    int64            `json:"at_ms"`
	Label   string           `json:"label"`
}

func initialState(starterCode string, noActivity bool) State {
	return State{Code: starterCode, NoActivity: noActivity}
}

// apply folds one event into s. It returns the marker the event produced,
// if any, and false when the event was skipped.
func apply(s *State, ev *domain.Event) (*Marker, bool) {
	payload, err := ev.Decode()
	if err != nil {
		s.Skipped++
		return nil, false
	}

	var marker *Marker
	mark := func(label string) {
		marker = &Marker{EventID: ev.ID, Type: ev.Type, AtMS: ev.TimestampMS, Label: label}
	}

	switch p := payload.(type) {
	case domain.CodeChange:
		s.Code = p.Code
		if p.Language != "" {
			s.Language = p.Language
		}
		if p.Cursor != nil {
			s.Cursor = *p.Cursor
			s.HasCursor = true
		}
		s.HasSelection = false
	case domain.CursorMove:
		s.Cursor = p.Position
		s.HasCursor = true
		s.HasSelection = false
	case domain.SelectionChange:
		s.Selection = Selection{Start: p.Start, End: p.End}
		s.HasSelection = true
		s.Cursor = p.End
		s.HasCursor = true
	case domain.Pause:
		s.Paused = true
		mark("paused")
	case domain.Resume:
		s.Paused = false
		mark("resumed")
	case domain.RunCode:
		s.LastRun = &RunOutput{AtMS: ev.TimestampMS, Output: p.Output, Error: p.Error}
		if p.Error != "" {
			mark("run failed")
		} else {
			mark("run")
		}
	case domain.TestRun:
		s.LastRun = &RunOutput{AtMS: ev.TimestampMS, IsTest: true, Passed: p.Passed, Total: p.Total}
		mark(fmt.Sprintf("tests %d/%d", p.Passed, p.Total))
	case domain.HintRequest:
		mark(fmt.Sprintf("hint (%s)", domain.HintLevel(p.Level)))
	case domain.AIPairRequest:
		mark("pair programmer")
	default:
		s.Skipped++
		return nil, false
	}

	s.Applied++
	s.LastEventMS = ev.TimestampMS
	if marker != nil {
		s.Markers++
	}
	return marker, true
}
