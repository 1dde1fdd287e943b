package visualizer

import (
	"math"
	"testing"
)

func TestWindowHopForIsPowerOfTwoAndBounded(t *testing.T) {
	window, hop := WindowHopFor(44100)
	if window&(window-1) != 0 {
		t.Fatalf("window %d is not a power of two", window)
	}
	if hop&(hop-1) != 0 {
		t.Fatalf("hop %d is not a power of two", hop)
	}
	if hop >= window {
		t.Fatalf("hop %d must be less than window %d", hop, window)
	}
	if window > BufferCapacity {
		t.Fatalf("window %d exceeds BufferCapacity %d", window, BufferCapacity)
	}
}

func TestAnalysisBufferBecomesReadyAfterOneWindow(t *testing.T) {
	window, hop := WindowHopFor(44100)
	buf := NewAnalysisBuffer(window, hop)

	interleaved := make([]int16, window-1)
	buf.WriteFrames(interleaved, 1)
	if buf.Ready() {
		t.Fatalf("Ready() = true before a full window was written")
	}

	buf.WriteFrames([]int16{0}, 1)
	if !buf.Ready() {
		t.Fatalf("Ready() = false after a full window was written")
	}

	drained := buf.Drain()
	if len(drained) != window {
		t.Fatalf("Drain() returned %d samples, want %d", len(drained), window)
	}
	if buf.Ready() {
		t.Fatalf("Ready() = true after Drain(), want it cleared")
	}
}

func TestAnalysisBufferWriteFramesMixesStereoToMono(t *testing.T) {
	buf := NewAnalysisBuffer(4, 1)
	buf.WriteFrames([]int16{100, -100, 200, 200}, 2)
	drained := buf.Drain()
	if len(drained) != 2 {
		t.Fatalf("len(drained) = %d, want 2", len(drained))
	}
	if drained[0] != 0 {
		t.Fatalf("drained[0] = %v, want 0 (silence cancels out)", drained[0])
	}
	want := float32(200) / 32768.0
	if drained[1] != want {
		t.Fatalf("drained[1] = %v, want %v", drained[1], want)
	}
}

func TestFFTDetectsDominantFrequencyBin(t *testing.T) {
	const n = 64
	const binIndex = 8
	real := make([]float64, n)
	imag := make([]float64, n)
	for i := 0; i < n; i++ {
		real[i] = math.Cos(2 * math.Pi * float64(binIndex) * float64(i) / float64(n))
	}

	fft(real, imag)

	peak := -1
	peakMag := 0.0
	for i := 0; i < n/2; i++ {
		mag := math.Hypot(real[i], imag[i])
		if mag > peakMag {
			peakMag = mag
			peak = i
		}
	}
	if peak != binIndex {
		t.Fatalf("peak bin = %d, want %d", peak, binIndex)
	}
}

func TestSpectrumUpdateProducesBoundedBars(t *testing.T) {
	const sampleRate = 44100
	window, _ := WindowHopFor(sampleRate)
	s := NewSpectrum(sampleRate, window, 16)

	samples := make([]float32, window)
	for i := range samples {
		samples[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / float64(sampleRate)))
	}

	bars := s.Update(samples)
	if len(bars) != 16 {
		t.Fatalf("len(bars) = %d, want 16", len(bars))
	}
	for i, v := range bars {
		if v < 0 || v > 1 {
			t.Fatalf("bars[%d] = %v, want within [0,1]", i, v)
		}
	}
}

func TestSpectrumUpdateOnSilenceIsZero(t *testing.T) {
	const sampleRate = 44100
	window, _ := WindowHopFor(sampleRate)
	s := NewSpectrum(sampleRate, window, 8)

	bars := s.Update(make([]float32, window))
	for i, v := range bars {
		if v != 0 {
			t.Fatalf("bars[%d] = %v on silent input, want 0", i, v)
		}
	}
}
