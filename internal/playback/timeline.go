package playback

import (
	"iter"
	"sort"

	"github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"
)

// checkpointEvery is the number of events between cached snapshots.
const checkpointEvery = 64

// Frame is the state right after one event was applied.
type Frame struct {
	Index  int          `json:"index"`
	Event  domain.Event `json:"event"`
	State  State        `json:"state"`
	Marker *Marker      `json:"marker,omitempty"`
}

// Timeline is a seekable view over one session's events. It is immutable
// after New and safe for concurrent use.
type Timeline struct {
	events      []domain.Event
	starter     string
	ordered     bool
	duration    int64
	markers     []Marker
	checkpoints []State // checkpoints[k] is the state after k*checkpointEvery events
}

// New builds a timeline. events must be in store order; they are not re-sorted.
func New(events []domain.Event, starterCode string) *Timeline {
	tl := &Timeline{
		events:  events,
		starter: starterCode,
		ordered: true,
		markers: []Marker{},
	}

	s := initialState(starterCode, len(events) == 0)
	tl.checkpoints = append(tl.checkpoints, s)
	for i := range events {
		if i > 0 && events[i].TimestampMS < events[i-1].TimestampMS {
			tl.ordered = false
		}
		if events[i].TimestampMS > tl.duration {
			tl.duration = events[i].TimestampMS
		}
		if m, _ := apply(&s, &events[i]); m != nil {
			tl.markers = append(tl.markers, *m)
		}
		if (i+1)%checkpointEvery == 0 {
			tl.checkpoints = append(tl.checkpoints, s)
		}
	}
	return tl
}

// Len returns the number of events, including ones that will be skipped.
func (tl *Timeline) Len() int {
	return len(tl.events)
}

// Duration returns the largest event timestamp.
func (tl *Timeline) Duration() int64 {
	return tl.duration
}

// Markers returns scrubber markers in timeline order.
func (tl *Timeline) Markers() []Marker {
	out := make([]Marker, len(tl.markers))
	copy(out, tl.markers)
	return out
}

// Seek returns the state at offset t. The result always equals
// Fold(events, starter, t); ordered timelines start from the nearest cached
// checkpoint instead of the beginning.
func (tl *Timeline) Seek(t int64) State {
	if t < 0 {
		t = 0
	}
	if !tl.ordered {
		return Fold(tl.events, tl.starter, t)
	}

	n := sort.Search(len(tl.events), func(i int) bool {
		return tl.events[i].TimestampMS > t
	})
	k := n / checkpointEvery
	s := tl.checkpoints[k]
	for i := k * checkpointEvery; i < n; i++ {
		apply(&s, &tl.events[i])
	}
	s.PositionMS = t
	return s
}

// Final returns the state after every event.
func (tl *Timeline) Final() State {
	return tl.Seek(tl.duration)
}

// Frames yields one frame per applicable event, in order. Each iteration
// starts again from the starter code, so the sequence can be replayed.
func (tl *Timeline) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		s := initialState(tl.starter, len(tl.events) == 0)
		for i := range tl.events {
			m, ok := apply(&s, &tl.events[i])
			if !ok {
				continue
			}
			s.PositionMS = tl.events[i].TimestampMS
			if !yield(Frame{Index: i, Event: tl.events[i], State: s, Marker: m}) {
				return
			}
		}
	}
}
