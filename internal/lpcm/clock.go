package lpcm

import "time"

// NoTimestamp marks a buffer that carries no upstream presentation
// timestamp. Regions without one are stamped from the decoder's running
// clock instead.
const NoTimestamp = time.Duration(-1)

// clock is the running presentation time for one decoder instance. An
// explicit upstream timestamp always wins and resets the clock past the
// stamped region; unstamped regions are assigned the current clock value
// and advance it. Upstream may legitimately move the clock backward.
type clock struct {
	running time.Duration
}

// stamp assigns a timestamp and duration to a region of frames at the
// given sample rate, updating the running clock.
func (c *clock) stamp(explicit time.Duration, frames, rate int) (ts, dur time.Duration) {
	dur = time.Duration(frames) * time.Second / time.Duration(rate)

	if explicit != NoTimestamp {
		c.running = explicit + dur
		return explicit, dur
	}

	ts = c.running
	c.running += dur
	return ts, dur
}

func (c *clock) reset() {
	c.running = 0
}
