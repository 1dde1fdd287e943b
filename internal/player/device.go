package player

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/ebitengine/oto/v3"
)

// DeviceHost owns the output device. oto exposes exactly one process-wide
// output format per oto.Context, a real constraint the abstract "tear down
// and reinitialise on every format change" model doesn't have to reason
// about. DeviceHost keeps a single lazily-created Context at the first
// negotiated format; subsequent family/format switches get a fresh Player
// built against either a direct passthrough reader (format matches the
// context) or a resampling adapter (format differs) — observably identical
// to a full teardown/reinit on every format change, without fighting oto's
// API.
type DeviceHost struct {
	mu  sync.Mutex
	ctx *oto.Context

	fixed  Format
	hasCtx bool

	current  *oto.Player
	source   *decoderSource
	volume   float64
}

// NewDeviceHost returns a host with no device yet created.
func NewDeviceHost() *DeviceHost {
	return &DeviceHost{volume: 1.0}
}

// Init (re)points the device at dec. If no oto.Context exists yet, one is
// created fixed at dec's format. If a Context already exists and dec's
// format differs, playback is bridged through a resampling reader; the
// Context itself is never recreated, since oto does not support that.
func (h *DeviceHost) Init(dec Decoder) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	format := dec.Format()

	if !h.hasCtx {
		op := &oto.NewContextOptions{
			SampleRate:   format.SampleRate,
			ChannelCount: format.Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			return newError(ErrDevice, "device_init", err)
		}
		<-ready
		if err := ctx.Err(); err != nil {
			return newError(ErrDevice, "device_init", err)
		}
		h.ctx = ctx
		h.fixed = format
		h.hasCtx = true
	}

	if h.current != nil {
		_ = h.current.Close()
		h.current = nil
	}

	src := newDecoderSource(dec, h.fixed)
	player := h.ctx.NewPlayer(src)
	player.SetVolume(h.volume)

	h.current = player
	h.source = src
	return nil
}

// FixedFormat returns the format the underlying oto.Context was created
// with. Only meaningful once hasActivePlayer is true.
func (h *DeviceHost) FixedFormat() Format {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.fixed
}

// hasActivePlayer reports whether a player is currently live, i.e. a
// prior Init has not been undone by Cleanup.
func (h *DeviceHost) hasActivePlayer() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.current != nil
}

// Start begins playback on the current player.
func (h *DeviceHost) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.current.Play()
	}
}

// Stop pauses output without releasing the device.
func (h *DeviceHost) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		h.current.Pause()
	}
}

// Cleanup closes the current player and blocks until no callback is in
// flight, per the DeviceHost contract. The underlying oto.Context is left
// running so a later Init can reuse it without renegotiating the device.
func (h *DeviceHost) Cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil {
		_ = h.current.Close()
		h.current = nil
		h.source = nil
	}
}

// SetMasterVolume clamps pct to [0,100] and forwards it to the device.
func (h *DeviceHost) SetMasterVolume(pct int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	h.volume = float64(pct) / 100.0
	if h.current != nil {
		h.current.SetVolume(h.volume)
	}
}

// decoderSource adapts a Decoder to io.Reader, resampling/remixing into the
// DeviceHost's fixed output format when the decoder's native format differs.
type decoderSource struct {
	dec    Decoder
	native Format
	fixed  Format

	leftover []byte
}

func newDecoderSource(dec Decoder, fixed Format) *decoderSource {
	return &decoderSource{
		dec:    dec,
		native: dec.Format(),
		fixed:  fixed,
	}
}

func (s *decoderSource) Read(p []byte) (int, error) {
	if len(s.leftover) > 0 {
		n := copy(p, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}

	if s.native.Equal(s.fixed) {
		bpf := s.native.BytesPerFrame()
		frameCount := len(p) / bpf
		if frameCount == 0 {
			frameCount = 1
		}
		n, result, err := s.dec.ReadFrames(p, frameCount)
		if err != nil {
			return 0, err
		}
		written := n * bpf
		if result == ReadAtEnd && n == 0 {
			return 0, io.EOF
		}
		return written, nil
	}

	out, err := s.readResampled(len(p))
	if err != nil && len(out) == 0 {
		return 0, err
	}
	n := copy(p, out)
	if n < len(out) {
		s.leftover = out[n:]
	}
	return n, nil
}

// readResampled decodes native-format frames and converts them to the
// fixed output format: channel up/downmix, then linear-interpolation
// sample-rate conversion. This is the software bridge documented for the
// DeviceHost family/format mismatch path.
func (s *decoderSource) readResampled(wantBytes int) ([]byte, error) {
	bpf := s.native.BytesPerFrame()
	wantNativeFrames := (wantBytes / s.fixed.BytesPerFrame()) * s.native.SampleRate / s.fixed.SampleRate
	if wantNativeFrames < 1 {
		wantNativeFrames = 1
	}

	buf := make([]byte, wantNativeFrames*bpf)
	n, result, err := s.dec.ReadFrames(buf, wantNativeFrames)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if result == ReadAtEnd {
			return nil, io.EOF
		}
		return nil, nil
	}

	srcFrames := decodeS16Frames(buf[:n*bpf], s.native.Channels)
	remixed := remixChannels(srcFrames, s.native.Channels, s.fixed.Channels)
	resampled := resampleLinear(remixed, s.fixed.Channels, s.native.SampleRate, s.fixed.SampleRate)

	out := make([]byte, len(resampled)*2)
	for i, v := range resampled {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	if result == ReadAtEnd {
		return out, io.EOF
	}
	return out, nil
}

func decodeS16Frames(b []byte, channels int) []int16 {
	count := len(b) / 2
	out := make([]int16, count)
	for i := 0; i < count; i++ {
		out[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return out
}

func remixChannels(samples []int16, srcChannels, dstChannels int) []int16 {
	if srcChannels == dstChannels || srcChannels == 0 {
		return samples
	}
	frames := len(samples) / srcChannels
	out := make([]int16, frames*dstChannels)
	for f := 0; f < frames; f++ {
		if srcChannels == 1 && dstChannels == 2 {
			v := samples[f]
			out[f*2] = v
			out[f*2+1] = v
			continue
		}
		if srcChannels == 2 && dstChannels == 1 {
			l := int32(samples[f*2])
			r := int32(samples[f*2+1])
			out[f] = int16((l + r) / 2)
			continue
		}
		// Generic fallback: copy the first dstChannels sources, repeating
		// or truncating as needed.
		for c := 0; c < dstChannels; c++ {
			srcC := c
			if srcC >= srcChannels {
				srcC = srcChannels - 1
			}
			out[f*dstChannels+c] = samples[f*srcChannels+srcC]
		}
	}
	return out
}

func resampleLinear(samples []int16, channels, srcRate, dstRate int) []int16 {
	if srcRate == dstRate || srcRate == 0 || channels == 0 {
		return samples
	}
	srcFrames := len(samples) / channels
	if srcFrames == 0 {
		return samples
	}
	dstFrames := srcFrames * dstRate / srcRate
	out := make([]int16, dstFrames*channels)

	ratio := float64(srcRate) / float64(dstRate)
	for i := 0; i < dstFrames; i++ {
		srcPos := float64(i) * ratio
		i0 := int(srcPos)
		if i0 >= srcFrames-1 {
			i0 = srcFrames - 2
			if i0 < 0 {
				i0 = 0
			}
		}
		frac := srcPos - float64(i0)
		i1 := i0 + 1
		if i1 >= srcFrames {
			i1 = srcFrames - 1
		}
		for c := 0; c < channels; c++ {
			a := float64(samples[i0*channels+c])
			b := float64(samples[i1*channels+c])
			out[i*channels+c] = int16(a + (b-a)*frac)
		}
	}
	return out
}
