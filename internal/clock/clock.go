// Package clock tracks elapsed playback time from monotonic wall time plus
// pause and seek accounting, independent of any particular decoder.
package clock

import (
	"sync"
	"time"
)

// Clock accumulates elapsed playback time. All methods are safe for
// concurrent use; the UI thread calls Tick roughly 10 times a second while
// the engine's control path calls the mutating methods around seeks and
// pauses.
type Clock struct {
	mu sync.Mutex

	start     time.Time
	pauseAt   time.Time
	paused    bool
	stopped   bool

	totalPauseSeconds     float64
	seekAccumulatedSeconds float64
	seekElapsedSeconds     float64

	elapsedSeconds float64
	pauseSeconds   float64
}

// New returns a Clock reset and ready to tick.
func New() *Clock {
	c := &Clock{}
	c.Reset()
	return c
}

// Reset zeros elapsed time, pause totals, and seek-elapsed, and stamps a new
// start instant. Called on every new song.
func (c *Clock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = time.Now()
	c.pauseAt = time.Time{}
	c.paused = false
	c.stopped = false
	c.totalPauseSeconds = 0
	c.seekAccumulatedSeconds = 0
	c.seekElapsedSeconds = 0
	c.elapsedSeconds = 0
	c.pauseSeconds = 0
}

// Stop marks the clock stopped; Tick becomes a no-op until Reset.
func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}

// SetPaused records a pause/resume transition. On resume, the caller is
// responsible for folding PauseSeconds into the running total (the engine
// does this as part of toggling pause, since the exact add happens at the
// call site).
func (c *Clock) SetPaused(paused bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if paused == c.paused {
		return
	}
	c.paused = paused
	if paused {
		c.pauseAt = time.Now()
		c.pauseSeconds = 0
	}
}

// Paused reports the current pause state.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// FoldPause adds the accumulated pause duration into the running total and
// clears it: total_pause_seconds += pause_seconds.
func (c *Clock) FoldPause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.totalPauseSeconds += c.pauseSeconds
	c.pauseSeconds = 0
}

// AccumulateSeek adds a signed delta to the seek accumulator; used by
// Engine.Seek(delta) ahead of a committed frame seek.
func (c *Clock) AccumulateSeek(delta time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seekAccumulatedSeconds += delta.Seconds()
}

// Tick advances the clock. If stopped, it is a no-op. If paused, it updates
// the live pause duration. Otherwise it recomputes elapsed = (now-start) +
// seek_elapsed + seek_accumulated - total_pause, clamped to [0, duration].
func (c *Clock) Tick(duration time.Duration) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return time.Duration(c.elapsedSeconds * float64(time.Second))
	}
	if c.paused {
		c.pauseSeconds = time.Since(c.pauseAt).Seconds()
		return time.Duration(c.elapsedSeconds * float64(time.Second))
	}

	raw := time.Since(c.start).Seconds()
	elapsed := raw + c.seekElapsedSeconds + c.seekAccumulatedSeconds - c.totalPauseSeconds
	elapsed = clamp(elapsed, 0, duration.Seconds())
	c.elapsedSeconds = elapsed
	return time.Duration(elapsed * float64(time.Second))
}

// Elapsed returns the last value computed by Tick without recomputing it.
func (c *Clock) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return time.Duration(c.elapsedSeconds * float64(time.Second))
}

// FlushSeek folds the seek accumulator into seek_elapsed, recomputes elapsed,
// and derives a seek percentage against duration. It is called at
// decoder-safe points, never from the real-time callback. canSeek must be
// false for raw-AAC streams, in which case FlushSeek returns false without
// touching any state.
func (c *Clock) FlushSeek(duration time.Duration, canSeek bool) (percent float32, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !canSeek {
		return 0, false
	}

	raw := time.Since(c.start).Seconds()
	c.seekElapsedSeconds += c.seekAccumulatedSeconds
	c.seekAccumulatedSeconds = 0
	elapsed := raw + c.seekElapsedSeconds - c.totalPauseSeconds
	elapsed = clamp(elapsed, 0, duration.Seconds())
	c.elapsedSeconds = elapsed

	if duration <= 0 {
		return 0, true
	}
	p := float32(elapsed / duration.Seconds() * 100)
	if p < 0 {
		p = 0
	}
	if p > 100 {
		p = 100
	}
	return p, true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
