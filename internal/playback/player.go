package playback

import (
	"context"
	"errors"
	"math"
	"time"
)

// ErrInvalidSpeed is returned for a speed that is negative, not finite, or
// positive but below MinSpeed.
var ErrInvalidSpeed = errors.New("invalid playback speed")

// MinSpeed is the slowest paced playback accepted.
const MinSpeed = 0.01

// DefaultMaxGap caps the recorded pause replayed between two frames.
const DefaultMaxGap = 3 * time.Second

// Player paces a timeline's frames in real time.
type Player struct {
	MaxGap time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewPlayer returns a player that compresses gaps longer than maxGap.
func NewPlayer(maxGap time.Duration) *Player {
	if maxGap <= 0 {
		maxGap = DefaultMaxGap
	}
	return &Player{MaxGap: maxGap, sleep: sleepContext}
}

// ValidateSpeed checks a speed multiplier. Zero means no pacing.
func ValidateSpeed(speed float64) error {
	if math.IsNaN(speed) || math.IsInf(speed, 0) || speed < 0 || (speed > 0 && speed < MinSpeed) {
		return ErrInvalidSpeed
	}
	return nil
}

// scaledGap divides gap by speed, saturating instead of overflowing.
func scaledGap(gap time.Duration, speed float64) time.Duration {
	d := float64(gap) / speed
	if d >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// Play emits the state at fromMS, then every later frame, waiting the
// recorded gap divided by speed between frames. It stops at the end of the
// timeline, when ctx is done, or when emit returns an error.
func (p *Player) Play(ctx context.Context, tl *Timeline, speed float64, fromMS int64, emit func(Frame) error) error {
	if err := ValidateSpeed(speed); err != nil {
		return err
	}
	if fromMS < 0 {
		fromMS = 0
	}

	if err := emit(Frame{Index: -1, State: tl.Seek(fromMS)}); err != nil {
		return err
	}

	prev := fromMS
	for frame := range tl.Frames() {
		ts := frame.Event.TimestampMS
		if ts <= fromMS {
			continue
		}

		if speed > 0 {
			gap := time.Duration(ts-prev) * time.Millisecond
			if gap > p.MaxGap {
				gap = p.MaxGap
			}
			if err := p.sleep(ctx, scaledGap(gap, speed)); err != nil {
				return err
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}

		if err := emit(frame); err != nil {
			return err
		}
		prev = ts
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
