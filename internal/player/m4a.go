package player

import (
	"os"
	"strings"

	"github.com/climp-core/climp/internal/aacdec"
)

// m4aDecoder wraps internal/aacdec.Reader, surfacing the MP4-vs-raw-ADTS
// distinction as M4aFileType and disabling seek for RawAAC streams, which
// carry no sample-accurate index.
type m4aDecoder struct {
	f        *os.File
	r        *aacdec.Reader
	fileType M4aFileType
	format   Format
	cursor   int64
	length   int64
}

func newM4aDecoder(f *os.File) (*m4aDecoder, error) {
	r, err := aacdec.OpenFile(f)
	if err != nil {
		return nil, err
	}

	info := r.Info()
	fileType := M4aFileMP4
	if strings.EqualFold(info.Container, ".aac") {
		fileType = M4aFileRawAAC
	}

	bpf := info.ChannelCount * 2
	lengthFrames := int64(-1)
	if bpf > 0 {
		lengthFrames = info.PCMBytes / int64(bpf)
	}

	return &m4aDecoder{
		f:        f,
		r:        r,
		fileType: fileType,
		format:   Format{Sample: FormatS16, Channels: info.ChannelCount, SampleRate: info.SampleRate},
		length:   lengthFrames,
	}, nil
}

func (d *m4aDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	bpf := d.format.BytesPerFrame()
	want := frameCount * bpf
	if want > len(out) {
		want = len(out)
	}

	total := 0
	for total < want {
		n, err := d.r.Read(out[total:want])
		total += n
		if err != nil {
			break
		}
		if n == 0 {
			break
		}
	}

	frames := total / bpf
	d.cursor += int64(frames)

	if total < want {
		if frames == 0 {
			return 0, ReadAtEnd, nil
		}
		return frames, ReadAtEnd, nil
	}
	return frames, ReadOK, nil
}

// SeekToFrame clamps i and repositions the underlying decoder. RawAAC
// streams have no frame index and reject every seek.
func (d *m4aDecoder) SeekToFrame(i int64) error {
	if d.fileType == M4aFileRawAAC {
		return newError(ErrInvalidArgument, "m4a_seek", errRawAACSeekDisabled)
	}
	if i < 0 {
		i = 0
	}
	if d.length >= 0 && i >= d.length {
		i = max(d.length-1, 0)
	}
	byteOff := i * int64(d.format.BytesPerFrame())
	if _, err := d.r.Seek(byteOff, 0); err != nil {
		return newError(ErrIO, "m4a_seek", err)
	}
	d.cursor = i
	return nil
}

func (d *m4aDecoder) CursorFrames() int64  { return d.cursor }
func (d *m4aDecoder) LengthFrames() int64  { return d.length }
func (d *m4aDecoder) Format() Format       { return d.format }
func (d *m4aDecoder) Family() Family       { return FamilyM4a }
func (d *m4aDecoder) Close() error         { return d.f.Close() }
func (d *m4aDecoder) FileType() M4aFileType { return d.fileType }

var errRawAACSeekDisabled = rawAACSeekError{}

type rawAACSeekError struct{}

func (rawAACSeekError) Error() string { return "seeking is disabled for raw ADTS AAC streams" }
