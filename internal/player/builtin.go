package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/mewkiz/flac"
)

// openByExt detects format by file extension and opens the matching decoder.
func openByExt(path string) (Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, newError(ErrIO, "open", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".mp3":
		d, err := newMP3Decoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_mp3", err)
		}
		return d, nil
	case ".wav":
		d, err := newWAVDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_wav", err)
		}
		return d, nil
	case ".flac":
		d, err := newFLACDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_flac", err)
		}
		return d, nil
	case ".ogg":
		d, err := newVorbisDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_ogg", err)
		}
		return d, nil
	case ".opus":
		d, err := newOpusDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_opus", err)
		}
		return d, nil
	case ".webm":
		d, err := newWebmDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_webm", err)
		}
		return d, nil
	case ".aac", ".m4a", ".m4b":
		d, err := newM4aDecoder(f)
		if err != nil {
			_ = f.Close()
			return nil, newError(ErrDecode, "open_m4a", err)
		}
		return d, nil
	default:
		_ = f.Close()
		return nil, newError(ErrInvalidArgument, "open", fmt.Errorf("unsupported extension: %s", ext))
	}
}

// --- MP3 ---

type mp3Decoder struct {
	f      *os.File
	dec    *mp3.Decoder
	cursor int64
	length int64 // frames, -1 if unknown
	start  int64 // frame offset of the trimmed start
	format Format
}

func newMP3Decoder(f *os.File) (*mp3Decoder, error) {
	startTrim, endTrim, err := readMP3GaplessTrim(f)
	if err != nil {
		return nil, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, err
	}

	// go-mp3 always emits 16-bit stereo PCM regardless of the source layout.
	const bytesPerFrame = 4
	lengthBytes := dec.Length()
	lengthFrames := int64(-1)
	startFrames := startTrim
	if lengthBytes >= 0 {
		lengthFrames = lengthBytes / bytesPerFrame
		if startFrames > lengthFrames {
			startFrames = lengthFrames
		}
		endFrames := endTrim
		if endFrames > lengthFrames-startFrames {
			endFrames = lengthFrames - startFrames
		}
		lengthFrames -= startFrames + endFrames
	}

	d := &mp3Decoder{
		f:      f,
		dec:    dec,
		length: lengthFrames,
		start:  startFrames,
		format: Format{Sample: FormatS16, Channels: 2, SampleRate: dec.SampleRate()},
	}
	if startFrames > 0 {
		if _, err := dec.Seek(startFrames*bytesPerFrame, io.SeekStart); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *mp3Decoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	want := frameCount * d.format.BytesPerFrame()
	if d.length >= 0 {
		remainingFrames := d.length - d.cursor
		if remainingFrames <= 0 {
			return 0, ReadAtEnd, nil
		}
		if int64(frameCount) > remainingFrames {
			want = int(remainingFrames) * d.format.BytesPerFrame()
		}
	}
	if want > len(out) {
		want = len(out)
	}

	n, err := io.ReadFull(d.dec, out[:want])
	frames := n / d.format.BytesPerFrame()
	d.cursor += int64(frames)

	if err == io.EOF || err == io.ErrUnexpectedEOF {
		if frames == 0 {
			return 0, ReadAtEnd, nil
		}
		return frames, ReadAtEnd, nil
	}
	if err != nil {
		return frames, ReadError, newError(ErrDecode, "mp3_read", err)
	}
	if d.length >= 0 && d.cursor >= d.length {
		return frames, ReadAtEnd, nil
	}
	return frames, ReadOK, nil
}

func (d *mp3Decoder) SeekToFrame(i int64) error {
	if i < 0 {
		i = 0
	}
	if d.length >= 0 && i >= d.length {
		i = max(d.length-1, 0)
	}
	byteOff := (d.start + i) * int64(d.format.BytesPerFrame())
	if _, err := d.dec.Seek(byteOff, io.SeekStart); err != nil {
		return newError(ErrIO, "mp3_seek", err)
	}
	d.cursor = i
	return nil
}

func (d *mp3Decoder) CursorFrames() int64 { return d.cursor }
func (d *mp3Decoder) LengthFrames() int64 { return d.length }
func (d *mp3Decoder) Format() Format      { return d.format }
func (d *mp3Decoder) Family() Family      { return FamilyBuiltin }
func (d *mp3Decoder) Close() error        { return d.f.Close() }

// --- WAV ---

type wavDecoder struct {
	f            *os.File
	pcmStart     int64
	srcBitDepth  int
	srcFrameSize int64 // bytes per source PCM frame
	cursor       int64
	length       int64
	format       Format
}

func newWAVDecoder(f *os.File) (*wavDecoder, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("invalid WAV file")
	}
	if err := dec.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("reading WAV PCM data: %w", err)
	}

	sampleRate := int(dec.SampleRate)
	channels := int(dec.NumChans)
	bitDepth := int(dec.BitDepth)
	srcFrameSize := int64(channels) * int64(bitDepth) / 8

	pcmSize := dec.PCMLen()
	lengthFrames := pcmSize / srcFrameSize

	pcmStart, err := f.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("locating WAV PCM start: %w", err)
	}

	return &wavDecoder{
		f:            f,
		pcmStart:     pcmStart,
		srcBitDepth:  bitDepth,
		srcFrameSize: srcFrameSize,
		length:       lengthFrames,
		format:       Format{Sample: FormatS16, Channels: channels, SampleRate: sampleRate},
	}, nil
}

func (d *wavDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	remaining := d.length - d.cursor
	if remaining <= 0 {
		return 0, ReadAtEnd, nil
	}
	if int64(frameCount) > remaining {
		frameCount = int(remaining)
	}

	srcBytesPerSample := d.srcBitDepth / 8
	channels := d.format.Channels
	srcBytes := make([]byte, frameCount*channels*srcBytesPerSample)
	n, err := io.ReadFull(d.f, srcBytes)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, ReadError, newError(ErrIO, "wav_read", err)
		}
		return 0, ReadAtEnd, nil
	}

	framesRead := n / (channels * srcBytesPerSample)
	need := framesRead * channels
	for i := 0; i < need; i++ {
		off := i * srcBytesPerSample
		sample := decodeWAVSample(srcBytes[off:], d.srcBitDepth)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(sample))
	}

	d.cursor += int64(framesRead)
	result := ReadOK
	if err == io.ErrUnexpectedEOF || err == io.EOF || d.cursor >= d.length {
		result = ReadAtEnd
	}
	return framesRead, result, nil
}

func decodeWAVSample(b []byte, bitDepth int) int16 {
	var sample int
	switch bitDepth {
	case 8:
		sample = (int(b[0]) - 128) << 8
	case 16:
		sample = int(int16(binary.LittleEndian.Uint16(b)))
	case 24:
		s := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
		if s&0x800000 != 0 {
			s |= ^int32(0xFFFFFF)
		}
		sample = int(s >> 8)
	case 32:
		sample = int(int32(binary.LittleEndian.Uint32(b)) >> 16)
	}
	if sample > 32767 {
		sample = 32767
	} else if sample < -32768 {
		sample = -32768
	}
	return int16(sample)
}

func (d *wavDecoder) SeekToFrame(i int64) error {
	if i < 0 {
		i = 0
	}
	if i >= d.length {
		i = max(d.length-1, 0)
	}
	srcBytePos := i * d.srcFrameSize
	if _, err := d.f.Seek(d.pcmStart+srcBytePos, io.SeekStart); err != nil {
		return newError(ErrIO, "wav_seek", err)
	}
	d.cursor = i
	return nil
}

func (d *wavDecoder) CursorFrames() int64 { return d.cursor }
func (d *wavDecoder) LengthFrames() int64 { return d.length }
func (d *wavDecoder) Format() Format      { return d.format }
func (d *wavDecoder) Family() Family      { return FamilyBuiltin }
func (d *wavDecoder) Close() error        { return d.f.Close() }

// --- FLAC ---

type flacDecoder struct {
	f      *os.File
	stream *flac.Stream
	bps    int
	cursor int64
	length int64
	format Format
	leftover []byte // undelivered bytes from the last decoded frame
}

func newFLACDecoder(f *os.File) (*flacDecoder, error) {
	stream, err := flac.NewSeek(f)
	if err != nil {
		return nil, fmt.Errorf("decoding FLAC: %w", err)
	}

	info := stream.Info
	return &flacDecoder{
		f:      f,
		stream: stream,
		bps:    int(info.BitsPerSample),
		length: int64(info.NSamples),
		format: Format{Sample: FormatS16, Channels: int(info.NChannels), SampleRate: int(info.SampleRate)},
	}, nil
}

func (d *flacDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	bpf := d.format.BytesPerFrame()
	want := frameCount * bpf
	written := 0

	if len(d.leftover) > 0 {
		n := copy(out, d.leftover)
		d.leftover = d.leftover[n:]
		written += n
	}

	for written < want {
		frame, err := d.stream.ParseNext()
		if err != nil {
			if written > 0 {
				d.cursor += int64(written / bpf)
				return written / bpf, ReadAtEnd, nil
			}
			return 0, ReadAtEnd, nil
		}

		nSamples := int(frame.Subframes[0].NSamples)
		raw := make([]byte, nSamples*bpf)
		for i := 0; i < nSamples; i++ {
			for ch := 0; ch < d.format.Channels; ch++ {
				sample := int(frame.Subframes[ch].Samples[i])
				switch {
				case d.bps > 16:
					sample >>= d.bps - 16
				case d.bps < 16:
					sample <<= 16 - d.bps
				}
				if sample > 32767 {
					sample = 32767
				} else if sample < -32768 {
					sample = -32768
				}
				off := (i*d.format.Channels + ch) * 2
				binary.LittleEndian.PutUint16(raw[off:], uint16(int16(sample)))
			}
		}

		n := copy(out[written:], raw)
		written += n
		if n < len(raw) {
			d.leftover = raw[n:]
		}
	}

	frames := written / bpf
	d.cursor += int64(frames)
	return frames, ReadOK, nil
}

func (d *flacDecoder) SeekToFrame(i int64) error {
	if i < 0 {
		i = 0
	}
	if i >= d.length {
		i = max(d.length-1, 0)
	}
	if _, err := d.stream.Seek(uint64(i)); err != nil {
		return newError(ErrIO, "flac_seek", err)
	}
	d.cursor = i
	d.leftover = nil
	return nil
}

func (d *flacDecoder) CursorFrames() int64 { return d.cursor }
func (d *flacDecoder) LengthFrames() int64 { return d.length }
func (d *flacDecoder) Format() Format      { return d.format }
func (d *flacDecoder) Family() Family      { return FamilyBuiltin }
func (d *flacDecoder) Close() error        { return d.stream.Close() }
