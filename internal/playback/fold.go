package playback

import "github.com/KrishnaPrakhya/AuraCode-sub000/internal/domain"

// Fold reconstructs the state at offset t by applying, in slice order, every
// event whose timestamp is at most t. It is a pure function of its inputs.
func Fold(events []domain.Event, starterCode string, t int64) State {
	if t < 0 {
		t = 0
	}
	s := initialState(starterCode, len(events) == 0)
	for i := range events {
		if events[i].TimestampMS > t {
			continue
		}
		apply(&s, &events[i])
	}
	s.PositionMS = t
	return s
}
