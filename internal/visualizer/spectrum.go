package visualizer

import "math"

// Spectrum consumes AnalysisBuffer windows and produces animated bar heights
// for a spectrum visualizer. It caches its FFT plan (the window-sized
// real/imag scratch buffers) to avoid recreating one on every call.
type Spectrum struct {
	sampleRate int
	window     int

	real, imag []float64
	bars       []float64 // animated bar heights, one per band
	bandEdges  []bandEdge
}

type bandEdge struct {
	loHz, hiHz float64
}

const (
	floorDB  = -60.0
	ceilDB   = -18.0
	emphasis = 1.3
	gate     = 0.10

	fastAttack         = 0.6
	slowAttack         = 0.15
	decayRate          = 0.14
	attackStepFraction = 0.20
)

// NewSpectrum builds a Spectrum with a plan cached for window, producing
// numBands logarithmically spaced bars from 25 Hz to min(10kHz,
// sampleRate/2). The bars are one-third octave wide only when numBands is
// about 26 over the full 25 Hz-10 kHz range; fewer bands are wider.
func NewSpectrum(sampleRate, window, numBands int) *Spectrum {
	s := &Spectrum{
		sampleRate: sampleRate,
		window:     window,
		real:       make([]float64, window),
		imag:       make([]float64, window),
		bars:       make([]float64, numBands),
	}
	s.bandEdges = thirdOctaveBands(sampleRate, numBands)
	return s
}

// thirdOctaveBands lays out numBands bands logarithmically spaced between
// 25Hz and min(10kHz, sampleRate/2).
func thirdOctaveBands(sampleRate, numBands int) []bandEdge {
	hi := 10000.0
	if nyquist := float64(sampleRate) / 2; nyquist < hi {
		hi = nyquist
	}
	lo := 25.0
	if hi <= lo {
		hi = lo + 1
	}

	edges := make([]bandEdge, numBands)
	logLo, logHi := math.Log(lo), math.Log(hi)
	for i := 0; i < numBands; i++ {
		f0 := math.Exp(logLo + (logHi-logLo)*float64(i)/float64(numBands))
		f1 := math.Exp(logLo + (logHi-logLo)*float64(i+1)/float64(numBands))
		edges[i] = bandEdge{loHz: f0, hiHz: f1}
	}
	return edges
}

// blackmanHarris4 returns the 4-term Blackman-Harris window coefficient at
// sample index i of n.
func blackmanHarris4(i, n int) float64 {
	const (
		a0 = 0.35875
		a1 = 0.48829
		a2 = 0.14128
		a3 = 0.01168
	)
	x := 2 * math.Pi * float64(i) / float64(n-1)
	return a0 - a1*math.Cos(x) + a2*math.Cos(2*x) - a3*math.Cos(3*x)
}

// Update processes one window of mono samples (as produced by
// AnalysisBuffer.Drain) and returns the updated animated bar heights in
// [0,1]. samples shorter than the configured window are zero-padded.
func (s *Spectrum) Update(samples []float32) []float64 {
	n := s.window
	for i := 0; i < n; i++ {
		var v float64
		if i < len(samples) {
			v = float64(samples[i])
		}
		s.real[i] = v * blackmanHarris4(i, n)
		s.imag[i] = 0
	}

	fft(s.real, s.imag)

	binHz := float64(s.sampleRate) / float64(n)
	for b, edge := range s.bandEdges {
		loBin := int(edge.loHz / binHz)
		hiBin := int(edge.hiHz / binHz)
		if loBin < 1 {
			loBin = 1
		}
		if hiBin <= loBin {
			hiBin = loBin + 1
		}
		if hiBin > n/2 {
			hiBin = n / 2
		}

		var sumPower float64
		count := 0
		for i := loBin; i < hiBin; i++ {
			mag := math.Hypot(s.real[i], s.imag[i])
			sumPower += mag * mag
			count++
		}
		var power float64
		if count > 0 {
			power = sumPower / float64(count)
		}

		db := floorDB
		if power > 0 {
			db = 10 * math.Log10(power)
		}

		// Pink-noise correction: +3dB/octave relative to 1kHz, clamped at 10kHz.
		// A band with no energy stays at the floor.
		centerHz := (edge.loHz + edge.hiHz) / 2
		correctionHz := centerHz
		if correctionHz > 10000 {
			correctionHz = 10000
		}
		if correctionHz < 1 {
			correctionHz = 1
		}
		if power > 0 {
			db += 3 * math.Log2(correctionHz/1000)
		}

		height := (db - floorDB) / (ceilDB - floorDB)
		if height < 0 {
			height = 0
		}
		if height > 1 {
			height = 1
		}
		height = math.Pow(height, emphasis)
		if height < gate {
			height = 0
		}

		s.bars[b] = animate(s.bars[b], height)
	}

	return s.bars
}

// animate applies an asymmetric attack/decay envelope: fast attack on a
// large jump, slower attack on a small one, and a fixed decay rate
// otherwise, so bars punch upward quickly but fall back smoothly.
func animate(current, target float64) float64 {
	if target > current {
		rate := slowAttack
		if target-current > attackStepFraction*target {
			rate = fastAttack
		}
		return current + (target-current)*rate
	}
	return current + (target-current)*decayRate
}

// Bars returns the most recently computed bar heights without recomputing.
func (s *Spectrum) Bars() []float64 {
	return s.bars
}
