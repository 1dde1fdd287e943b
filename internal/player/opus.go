package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/thesyncim/gopus/multistream"

	"github.com/climp-core/climp/internal/oggdemux"
)

// Opus always decodes internally at 48kHz; the encoder-side sample rate in
// OpusHead is informational only.
const opusDecodeRate = 48000

// opusFrameDurationSamples maps a TOC config (0-31) to the per-frame output
// size in samples at 48kHz, per RFC 6716 §3.1 table.
func opusFrameDurationSamples(config byte) int {
	switch {
	case config < 12:
		// SILK-only: groups of 4 configs cover 10/20/40/60ms.
		durationsMs := [4]int{10, 20, 40, 60}
		return durationsMs[config%4] * 48
	case config < 16:
		// Hybrid: groups of 2 cover 10/20ms.
		durationsMs := [2]int{10, 20}
		return durationsMs[(config-12)%2] * 48
	default:
		// CELT-only: groups of 4 cover 2.5/5/10/20ms.
		quarterMs := [4]int{25, 50, 100, 200}
		return quarterMs[(config-16)%4] * 48 / 10
	}
}

// opusPacketFrameCount extracts the TOC's frame count (per RFC 6716 §3.2).
func opusPacketFrameCount(data []byte) (int, error) {
	if len(data) < 1 {
		return 0, fmt.Errorf("opus: empty packet")
	}
	code := data[0] & 0x3
	switch code {
	case 0:
		return 1, nil
	case 1, 2:
		return 2, nil
	default:
		if len(data) < 2 {
			return 0, fmt.Errorf("opus: truncated code-3 packet")
		}
		return int(data[1] & 0x3f), nil
	}
}

type opusHead struct {
	channels   int
	preSkip    int
	inputRate  uint32
	outputGain int16
	mapping    byte
}

func parseOpusHead(b []byte) (opusHead, error) {
	if len(b) < 19 || string(b[0:8]) != "OpusHead" {
		return opusHead{}, fmt.Errorf("opus: missing OpusHead")
	}
	h := opusHead{
		channels:   int(b[9]),
		preSkip:    int(binary.LittleEndian.Uint16(b[10:12])),
		inputRate:  binary.LittleEndian.Uint32(b[12:16]),
		outputGain: int16(binary.LittleEndian.Uint16(b[16:18])),
		mapping:    b[18],
	}
	return h, nil
}

// opusDecoder decodes a standalone OggOpus file into S16 PCM at 48kHz,
// dropping the encoder pre-skip at the start of the stream.
type opusDecoder struct {
	f      *os.File
	ogg    *oggdemux.Reader
	dec    *multistream.Decoder
	format Format

	preSkip      int
	skipRemain   int
	pending      []float64 // undelivered decoded samples (interleaved)
	cursor       int64
	length       int64 // -1, Opus containers rarely carry a reliable sample count up front
	eof          bool
}

func newOpusDecoder(f *os.File) (*opusDecoder, error) {
	ogg := oggdemux.NewReader(f)

	headPage, err := ogg.NextPage()
	if err != nil {
		return nil, fmt.Errorf("reading opus header page: %w", err)
	}
	if len(headPage.Packets) == 0 {
		return nil, fmt.Errorf("opus: empty header page")
	}
	head, err := parseOpusHead(headPage.Packets[0])
	if err != nil {
		return nil, err
	}

	// The second page carries OpusTags; it is skipped (tag reading is out
	// of scope for the audio-playback core).
	if _, err := ogg.NextPage(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("reading opus comment page: %w", err)
	}

	dec, err := multistream.NewDecoderDefault(opusDecodeRate, head.channels)
	if err != nil {
		return nil, fmt.Errorf("creating opus decoder: %w", err)
	}

	return &opusDecoder{
		f:          f,
		ogg:        ogg,
		dec:        dec,
		format:     Format{Sample: FormatS16, Channels: head.channels, SampleRate: opusDecodeRate},
		preSkip:    head.preSkip,
		skipRemain: head.preSkip,
		length:     -1,
	}, nil
}

func (d *opusDecoder) fillPending() error {
	for len(d.pending) == 0 {
		page, err := d.ogg.NextPage()
		if err != nil {
			d.eof = true
			return err
		}
		if err := d.decodePage(page); err != nil {
			return err
		}
		if len(page.Packets) == 0 && page.IsLast {
			d.eof = true
			return io.EOF
		}
	}
	return nil
}

// decodePage decodes every packet on page and appends the resulting samples
// to d.pending.
func (d *opusDecoder) decodePage(page *oggdemux.Page) error {
	for _, packet := range page.Packets {
		frameCount, err := opusPacketFrameCount(packet)
		if err != nil {
			continue
		}
		perFrame := opusFrameDurationSamples(packet[0] >> 3)
		totalSamples := perFrame * frameCount

		var samples []float64
		if d.format.Channels == 2 {
			samples, err = d.dec.DecodeStereo(packet, totalSamples)
		} else {
			samples, err = d.dec.Decode(packet, totalSamples)
		}
		if err != nil {
			return newError(ErrDecode, "opus_decode", err)
		}
		d.pending = append(d.pending, samples...)
	}
	return nil
}

func (d *opusDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	channels := d.format.Channels
	needSamples := frameCount * channels

	for len(d.pending) < needSamples && !d.eof {
		if err := d.fillPending(); err != nil && err != io.EOF {
			return 0, ReadError, err
		} else if err == io.EOF {
			break
		}
	}

	// Drop pre-skip samples before handing any audio out.
	for d.skipRemain > 0 && len(d.pending) > 0 {
		dropFrames := d.skipRemain
		available := len(d.pending) / channels
		if dropFrames > available {
			dropFrames = available
		}
		d.pending = d.pending[dropFrames*channels:]
		d.skipRemain -= dropFrames
		if d.skipRemain > 0 && d.eof {
			break
		}
		if len(d.pending) < needSamples && !d.eof {
			if err := d.fillPending(); err != nil && err != io.EOF {
				return 0, ReadError, err
			}
		}
	}

	avail := len(d.pending)
	if avail > needSamples {
		avail = needSamples
	}
	for i := 0; i < avail; i++ {
		s := d.pending[i]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	d.pending = d.pending[avail:]

	frames := avail / channels
	d.cursor += int64(frames)
	if frames == 0 && d.eof {
		return 0, ReadAtEnd, nil
	}
	if d.eof && len(d.pending) == 0 {
		return frames, ReadAtEnd, nil
	}
	return frames, ReadOK, nil
}

// opusPrerollFrames is how far ahead of the seek target decoding resumes,
// so the CELT/SILK state has settled by the time target is reached.
const opusPrerollFrames = int64(opusDecodeRate) * 80 / 1000

// SeekToFrame repositions to the target PCM frame (counted after pre-skip
// removal, matching CursorFrames). It reopens the Ogg stream from the start
// and builds a fresh Opus decoder, the Go equivalent of OPUS_RESET_STATE:
// a seek is a discontinuity the old decoder state cannot be trusted across.
// Granule positions let it skip whole pages that land entirely before an
// 80ms preroll window without decoding them; decoding then resumes from the
// preroll page and discards output until the exact target frame is reached.
func (d *opusDecoder) SeekToFrame(target int64) error {
	if target < 0 {
		target = 0
	}

	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return newError(ErrDecode, "opus_seek", err)
	}
	ogg := oggdemux.NewReader(d.f)

	headPage, err := ogg.NextPage()
	if err != nil {
		return newError(ErrDecode, "opus_seek", err)
	}
	if len(headPage.Packets) == 0 {
		return newError(ErrDecode, "opus_seek", fmt.Errorf("opus: empty header page"))
	}
	head, err := parseOpusHead(headPage.Packets[0])
	if err != nil {
		return newError(ErrDecode, "opus_seek", err)
	}
	if _, err := ogg.NextPage(); err != nil && err != io.EOF {
		return newError(ErrDecode, "opus_seek", err)
	}

	dec, err := multistream.NewDecoderDefault(opusDecodeRate, head.channels)
	if err != nil {
		return newError(ErrDecode, "opus_seek", err)
	}

	d.ogg = ogg
	d.dec = dec
	d.pending = nil
	d.eof = false
	d.cursor = 0
	d.skipRemain = head.preSkip

	prerollTarget := target - opusPrerollFrames
	if prerollTarget < 0 {
		prerollTarget = 0
	}
	skippedGranule := int64(0)
	for {
		page, err := d.ogg.NextPage()
		if err != nil {
			return newError(ErrDecode, "opus_seek", err)
		}
		if page.GranulePos >= 0 && page.GranulePos < prerollTarget {
			skippedGranule = page.GranulePos
			continue
		}
		if err := d.decodePage(page); err != nil {
			return newError(ErrDecode, "opus_seek", err)
		}
		break
	}
	// The skipped pages held the first skippedGranule samples, pre-skip
	// included; account for them so the cursor matches the decoded audio.
	if skippedGranule >= int64(d.skipRemain) {
		d.cursor = skippedGranule - int64(d.skipRemain)
		d.skipRemain = 0
	} else {
		d.skipRemain -= int(skippedGranule)
	}

	scratch := make([]byte, 4096*d.format.Channels*2)
	for d.cursor < target {
		frames := len(scratch) / (d.format.Channels * 2)
		if remaining := target - d.cursor; int64(frames) > remaining {
			frames = int(remaining)
		}
		n, result, err := d.ReadFrames(scratch, frames)
		if err != nil {
			return err
		}
		if n == 0 && result == ReadAtEnd {
			break
		}
	}
	return nil
}

func (d *opusDecoder) CursorFrames() int64 { return d.cursor }
func (d *opusDecoder) LengthFrames() int64 { return d.length }
func (d *opusDecoder) Format() Format      { return d.format }
func (d *opusDecoder) Family() Family      { return FamilyOpus }
func (d *opusDecoder) Close() error        { return d.f.Close() }
