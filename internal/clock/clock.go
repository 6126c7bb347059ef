// Package clock holds the playback clock: the engine's notion of "now",
// advanced only from replayed event timestamps.
package clock

import (
	"errors"
	"fmt"
	"time"
)

var ErrRegression = errors.New("playback clock cannot move backwards")

// Playback is a single virtual-time register. It is not safe for concurrent
// use; one run owns one clock.
type Playback struct {
	now time.Time
}

// NewPlayback starts the clock at start. A zero start is allowed and means
// the first event sets the time.
func NewPlayback(start time.Time) *Playback {
	return &Playback{now: start}
}

func (c *Playback) Now() time.Time {
	return c.now
}

// Set advances the clock to t. Equal timestamps are fine, earlier ones are not.
func (c *Playback) Set(t time.Time) error {
	if t.Before(c.now) {
		return fmt.Errorf("set %s while at %s: %w", t.Format(time.RFC3339Nano), c.now.Format(time.RFC3339Nano), ErrRegression)
	}
	c.now = t
	return nil
}
