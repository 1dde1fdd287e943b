package visualizer

import "sync/atomic"

// BufferCapacity is the maximum number of mono float32 samples the ring
// holds (32 768).
const BufferCapacity = 32768

// AnalysisBuffer is a single-producer/single-consumer ring fed from the
// real-time audio callback and drained asynchronously by the visualizer.
// The producer (audio callback) must never block; WriteFrames is lock-light
// and only ever appends, sliding out the oldest hop samples once a full
// window is held.
// The consumer (UI/FFT thread) polls Ready and calls Drain.
type AnalysisBuffer struct {
	buf       []float32
	writeHead int
	ready     atomic.Bool

	window int
	hop    int
}

// NewAnalysisBuffer creates a buffer sized for the given analysis window.
// window must be <= BufferCapacity.
func NewAnalysisBuffer(window, hop int) *AnalysisBuffer {
	if window > BufferCapacity {
		window = BufferCapacity
	}
	return &AnalysisBuffer{
		buf:    make([]float32, 0, window),
		window: window,
		hop:    hop,
	}
}

// Reconfigure changes the window/hop, e.g. when sample rate changes across a
// device reinit.
func (a *AnalysisBuffer) Reconfigure(window, hop int) {
	if window > BufferCapacity {
		window = BufferCapacity
	}
	a.buf = a.buf[:0]
	a.writeHead = 0
	a.window = window
	a.hop = hop
	a.ready.Store(false)
}

// WriteFrames mixes interleaved PCM frames down to mono and appends them.
// channels must be >= 1. Called once per audio-callback invocation.
func (a *AnalysisBuffer) WriteFrames(interleaved []int16, channels int) {
	if channels < 1 {
		channels = 1
	}
	frames := len(interleaved) / channels
	for i := 0; i < frames; i++ {
		var sum int32
		base := i * channels
		for c := 0; c < channels; c++ {
			sum += int32(interleaved[base+c])
		}
		mono := float32(sum) / float32(channels) / 32768.0
		a.appendSample(mono)
	}
}

func (a *AnalysisBuffer) appendSample(s float32) {
	if a.writeHead >= a.window {
		// Slide the window forward by hop, discarding the oldest hop
		// samples (75% overlap when hop == window/4). The slide waits for
		// the next sample, so a ready window stays whole until then.
		if a.hop > 0 && a.hop < len(a.buf) {
			copy(a.buf, a.buf[a.hop:])
			a.buf = a.buf[:len(a.buf)-a.hop]
			a.writeHead = len(a.buf)
		} else {
			a.buf = a.buf[:0]
			a.writeHead = 0
		}
	}

	a.buf = append(a.buf, s)
	a.writeHead++
	if a.writeHead >= a.window {
		a.ready.Store(true)
	}
}

// Ready reports whether at least one full window is available.
func (a *AnalysisBuffer) Ready() bool {
	return a.ready.Load()
}

// Drain returns a copy of the current window contents (up to window
// samples) for the consumer to process, and clears the ready flag.
func (a *AnalysisBuffer) Drain() []float32 {
	out := make([]float32, len(a.buf))
	copy(out, a.buf)
	a.ready.Store(false)
	return out
}

// WindowHopFor computes (window, hop) for a given sample rate: window is the
// largest power of two at most sample_rate*45ms, hop is window/4 rounded to
// a power of two, with window <= BufferCapacity and hop < window.
func WindowHopFor(sampleRate int) (window, hop int) {
	target := int(float64(sampleRate) * 0.045)
	window = pow2AtMost(target)
	if window > BufferCapacity {
		window = pow2AtMost(BufferCapacity)
	}
	hop = pow2AtMost(window / 4)
	if hop >= window {
		hop = window / 2
	}
	return window, hop
}

func pow2AtMost(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}
