package player

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/jfreymuth/oggvorbis"
)

// vorbisDecoder wraps an Ogg/Vorbis stream, converting its native float32
// output to S16 at the source sample rate and channel count.
type vorbisDecoder struct {
	f      *os.File
	reader *oggvorbis.Reader
	cursor int64
	length int64
	format Format

	scratch []float32
}

func newVorbisDecoder(f *os.File) (*vorbisDecoder, error) {
	reader, err := oggvorbis.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("decoding ogg/vorbis: %w", err)
	}

	channels := reader.Channels()
	return &vorbisDecoder{
		f:      f,
		reader: reader,
		length: reader.Length(),
		format: Format{Sample: FormatS16, Channels: channels, SampleRate: reader.SampleRate()},
	}, nil
}

func (d *vorbisDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	channels := d.format.Channels
	sampleCount := frameCount * channels
	if cap(d.scratch) < sampleCount {
		d.scratch = make([]float32, sampleCount)
	}
	samples := d.scratch[:sampleCount]

	n, err := d.reader.Read(samples)
	if n == 0 {
		if err != nil && err != io.EOF {
			return 0, ReadError, newError(ErrDecode, "vorbis_read", err)
		}
		return 0, ReadAtEnd, nil
	}

	for i := 0; i < n; i++ {
		s := samples[i]
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}

	frames := n / channels
	d.cursor += int64(frames)
	if err == io.EOF {
		return frames, ReadAtEnd, nil
	}
	return frames, ReadOK, nil
}

func (d *vorbisDecoder) SeekToFrame(i int64) error {
	if i < 0 {
		i = 0
	}
	if d.length >= 0 && i >= d.length {
		i = max(d.length-1, 0)
	}
	d.reader.SetPosition(i)
	d.cursor = i
	return nil
}

func (d *vorbisDecoder) CursorFrames() int64 { return d.cursor }
func (d *vorbisDecoder) LengthFrames() int64 { return d.length }
func (d *vorbisDecoder) Format() Format      { return d.format }
func (d *vorbisDecoder) Family() Family      { return FamilyVorbis }
func (d *vorbisDecoder) Close() error        { return d.f.Close() }
