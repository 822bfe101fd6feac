// Package analytics summarises a session's activity from its event log.
package analytics

import (
	"context"
	"fmt"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/store"
	"github.com/montanaflynn/stats"
)

// Cadence describes the gaps between consecutive code edits.
type Cadence struct {
	Edits        int     `json:"edits"`
	MeanGapMS    float64 `json:"mean_gap_ms"`
	MedianGapMS  float64 `json:"median_gap_ms"`
	P90GapMS     float64 `json:"p90_gap_ms"`
	StdDevGapMS  float64 `json:"stddev_gap_ms"`
	LongestGapMS float64 `json:"longest_gap_ms"`
}

// Summary is the per-session analytics view.
type Summary struct {
	SessionID   string                   `json:"session_id"`
	Counts      map[domain.EventType]int `json:"counts"`
	TotalEvents int                      `json:"total_events"`
	DurationMS  int64                    `json:"duration_ms"`
	Cadence     Cadence                  `json:"cadence"`
}

// Service computes summaries from the event store.
type Service struct {
	events store.EventStore
}

// NewService creates an analytics service.
func NewService(events store.EventStore) *Service {
	return &Service{events: events}
}

// Summarize counts each event type without loading payloads, then loads only
// code_change events to measure editing cadence.
func (s *Service) Summarize(ctx context.Context, sessionID string) (*Summary, error) {
	sum := &Summary{SessionID: sessionID, Counts: make(map[domain.EventType]int, len(domain.EventTypes))}
	for _, t := range domain.EventTypes {
		n, err := s.events.CountBySessionAndType(ctx, sessionID, t)
		if err != nil {
			return nil, fmt.Errorf("count %s events: %w", t, err)
		}
		sum.Counts[t] = n
		sum.TotalEvents += n
	}

	edits, err := s.events.ListBySessionAndType(ctx, sessionID, domain.EventCodeChange)
	if err != nil {
		return nil, fmt.Errorf("list code changes: %w", err)
	}
	cadence, err := EditCadence(edits)
	if err != nil {
		return nil, err
	}
	sum.Cadence = cadence

	if sum.TotalEvents > 0 {
		all, err := s.events.ListBySession(ctx, sessionID)
		if err != nil {
			return nil, fmt.Errorf("list events: %w", err)
		}
		for _, ev := range all {
			if ev.TimestampMS > sum.DurationMS {
				sum.DurationMS = ev.TimestampMS
			}
		}
	}
	return sum, nil
}

// EditCadence computes gap statistics over ordered code_change events.
func EditCadence(edits []domain.Event) (Cadence, error) {
	c := Cadence{Edits: len(edits)}
	if len(edits) < 2 {
		return c, nil
	}

	gaps := make(stats.Float64Data, 0, len(edits)-1)
	for i := 1; i < len(edits); i++ {
		gap := edits[i].TimestampMS - edits[i-1].TimestampMS
		if gap < 0 {
			gap = 0
		}
		gaps = append(gaps, float64(gap))
	}

	var err error
	if c.MeanGapMS, err = stats.Mean(gaps); err != nil {
		return c, fmt.Errorf("mean gap: %w", err)
	}
	if c.MedianGapMS, err = stats.Median(gaps); err != nil {
		return c, fmt.Errorf("median gap: %w", err)
	}
	if c.P90GapMS, err = stats.Percentile(gaps, 90); err != nil {
		return c, fmt.Errorf("p90 gap: %w", err)
	}
	if c.StdDevGapMS, err = stats.StandardDeviation(gaps); err != nil {
		return c, fmt.Errorf("stddev gap: %w", err)
	}
	if c.LongestGapMS, err = stats.Max(gaps); err != nil {
		return c, fmt.Errorf("max gap: %w", err)
	}
	return c, nil
}
