package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/at-wat/ebml-go/webm"
	"github.com/jfreymuth/vorbis"
	"github.com/thesyncim/gopus/multistream"
)

// webmInnerCodec identifies which codec a WebM audio track carries.
type webmInnerCodec int

const (
	webmInnerUnknown webmInnerCodec = iota
	webmInnerOpus
	webmInnerVorbis
)

// webmDecoder demuxes a WebM container via ebml-go/webm and decodes its
// single audio track, dispatching to the Opus or Vorbis packet decoder
// depending on the track's CodecID. WebM simple blocks can bundle multiple
// Matroska "laces" per block; any samples beyond what the caller asked for
// are buffered in leftover for the next ReadFrames call.
type webmDecoder struct {
	f      *os.File
	blocks <-chan webm.BlockReadResult

	codec     webmInnerCodec
	vorbisDec *vorbis.Decoder
	opusDec   *multistream.Decoder
	opusSkip  int

	format   Format
	cursor   int64
	leftover []float64
	eof      bool
}

// openWebmAudioTrack demuxes f and returns its first audio track plus the
// channel of simple blocks belonging to it.
func openWebmAudioTrack(f *os.File) (*webm.TrackEntry, <-chan webm.BlockReadResult, error) {
	tracks, blockChans, err := webm.NewSimpleBlockReader(f)
	if err != nil {
		return nil, nil, fmt.Errorf("demuxing webm: %w", err)
	}
	for i, tr := range tracks {
		if tr.TrackType == webm.TrackTypeAudio {
			return tracks[i], blockChans[i], nil
		}
	}
	return nil, nil, fmt.Errorf("webm: no audio track found")
}

func newWebmDecoder(f *os.File) (*webmDecoder, error) {
	track, blocks, err := openWebmAudioTrack(f)
	if err != nil {
		return nil, err
	}

	d := &webmDecoder{f: f, blocks: blocks}

	channels := 2
	sampleRate := 48000
	if track.Audio != nil {
		if track.Audio.Channels > 0 {
			channels = int(track.Audio.Channels)
		}
		if track.Audio.SamplingFrequency > 0 {
			sampleRate = int(track.Audio.SamplingFrequency)
		}
	}

	switch track.CodecID {
	case "A_OPUS":
		d.codec = webmInnerOpus
		sampleRate = opusDecodeRate
		if len(track.CodecPrivate) >= 12 {
			if head, err := parseOpusHead(track.CodecPrivate); err == nil {
				channels = head.channels
				d.opusSkip = head.preSkip
			}
		}
		dec, err := multistream.NewDecoderDefault(opusDecodeRate, channels)
		if err != nil {
			return nil, fmt.Errorf("creating webm opus decoder: %w", err)
		}
		d.opusDec = dec
	case "A_VORBIS":
		d.codec = webmInnerVorbis
		dec, err := vorbis.NewDecoder(track.CodecPrivate)
		if err != nil {
			return nil, fmt.Errorf("creating webm vorbis decoder: %w", err)
		}
		d.vorbisDec = dec
		channels = dec.Channels()
		sampleRate = dec.SampleRate()
	default:
		return nil, fmt.Errorf("webm: unsupported inner codec %q", track.CodecID)
	}

	d.format = Format{Sample: FormatS16, Channels: channels, SampleRate: sampleRate}
	return d, nil
}

func (d *webmDecoder) decodePacket(packet []byte) ([]float64, error) {
	switch d.codec {
	case webmInnerOpus:
		frameCount, err := opusPacketFrameCount(packet)
		if err != nil {
			return nil, err
		}
		perFrame := opusFrameDurationSamples(packet[0] >> 3)
		total := perFrame * frameCount
		if d.format.Channels == 2 {
			return d.opusDec.DecodeStereo(packet, total)
		}
		return d.opusDec.Decode(packet, total)
	case webmInnerVorbis:
		samples, err := d.vorbisDec.Decode(packet)
		if err != nil {
			return nil, err
		}
		out := make([]float64, len(samples))
		for i, s := range samples {
			out[i] = float64(s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("webm: no inner decoder configured")
	}
}

func (d *webmDecoder) fillFromNextBlock() error {
	result, ok := <-d.blocks
	if !ok {
		d.eof = true
		return fmt.Errorf("webm: end of stream")
	}
	if result.Error != nil {
		return newError(ErrDecode, "webm_block", result.Error)
	}
	for _, lace := range result.Block.Data {
		decoded, err := d.decodePacket(lace)
		if err != nil {
			return newError(ErrDecode, "webm_inner_decode", err)
		}
		d.leftover = append(d.leftover, decoded...)
	}
	return nil
}

func (d *webmDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	channels := d.format.Channels
	needSamples := frameCount * channels

	for len(d.leftover) < needSamples && !d.eof {
		if err := d.fillFromNextBlock(); err != nil {
			if d.eof {
				break
			}
			return 0, ReadError, err
		}
	}

	// Drop Opus pre-skip before emitting audio, same as the standalone
	// Opus decoder.
	for d.opusSkip > 0 && len(d.leftover) > 0 {
		dropFrames := d.opusSkip
		available := len(d.leftover) / channels
		if dropFrames > available {
			dropFrames = available
		}
		d.leftover = d.leftover[dropFrames*channels:]
		d.opusSkip -= dropFrames
		if len(d.leftover) < needSamples && !d.eof {
			if err := d.fillFromNextBlock(); err != nil && !d.eof {
				return 0, ReadError, err
			}
		} else {
			break
		}
	}

	avail := len(d.leftover)
	if avail > needSamples {
		avail = needSamples
	}
	for i := 0; i < avail; i++ {
		s := d.leftover[i]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	d.leftover = d.leftover[avail:]

	frames := avail / channels
	d.cursor += int64(frames)
	if d.eof && len(d.leftover) == 0 {
		return frames, ReadAtEnd, nil
	}
	return frames, ReadOK, nil
}

// SeekToFrame repositions to the target PCM frame. ebml-go's simple-block
// reader exposes no Cues-based random access, so the container seek lands
// at the start of the stream; from there the inner codec is rebuilt from
// scratch (Opus: a fresh multistream.Decoder and a reapplied pre-skip
// counter, the OPUS_RESET_STATE equivalent; Vorbis: a fresh vorbis.Decoder,
// the DSP clear+init equivalent) and decoding resumes, discarding emitted
// audio until the exact target frame is reached.
func (d *webmDecoder) SeekToFrame(target int64) error {
	if target < 0 {
		target = 0
	}

	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return newError(ErrDecode, "webm_seek", err)
	}
	track, blocks, err := openWebmAudioTrack(d.f)
	if err != nil {
		return newError(ErrDecode, "webm_seek", err)
	}

	switch d.codec {
	case webmInnerOpus:
		dec, err := multistream.NewDecoderDefault(opusDecodeRate, d.format.Channels)
		if err != nil {
			return newError(ErrDecode, "webm_seek", err)
		}
		d.opusDec = dec
		d.opusSkip = 0
		if len(track.CodecPrivate) >= 12 {
			if head, err := parseOpusHead(track.CodecPrivate); err == nil {
				d.opusSkip = head.preSkip
			}
		}
	case webmInnerVorbis:
		dec, err := vorbis.NewDecoder(track.CodecPrivate)
		if err != nil {
			return newError(ErrDecode, "webm_seek", err)
		}
		d.vorbisDec = dec
	}

	d.blocks = blocks
	d.leftover = nil
	d.eof = false
	d.cursor = 0

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

func (d *webmDecoder) CursorFrames() int64 { return d.cursor }
func (d *webmDecoder) LengthFrames() int64 { return -1 }
func (d *webmDecoder) Format() Format      { return d.format }
func (d *webmDecoder) Family() Family      { return FamilyWebm }
func (d *webmDecoder) Close() error        { return d.f.Close() }
