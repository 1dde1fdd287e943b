// Package player implements the gapless, multi-format audio playback core:
// the decoder abstraction, the two-slot A/B decoder registry, the output
// device host, and the playback engine state machine.
package player

import (
	"fmt"
	"io"
)

// SampleFormat identifies the PCM sample representation a Decoder emits.
// All concrete decoders in this package emit S16 (signed 16-bit
// little-endian); the wider enumeration exists because the decoder
// abstraction is shared across families that could in principle emit other
// widths.
type SampleFormat int

const (
	FormatS16 SampleFormat = iota
	FormatU8
	FormatS24
	FormatS32
	FormatF32
)

// Format describes a decoder's PCM output shape.
type Format struct {
	Sample     SampleFormat
	Channels   int
	SampleRate int
}

// Equal reports whether two formats are interchangeable for gapless
// chaining purposes.
func (f Format) Equal(other Format) bool {
	return f.Sample == other.Sample && f.Channels == other.Channels && f.SampleRate == other.SampleRate
}

// BytesPerFrame returns the byte size of one interleaved PCM frame.
func (f Format) BytesPerFrame() int {
	return f.Channels * bytesPerSample(f.Sample)
}

func bytesPerSample(f SampleFormat) int {
	switch f {
	case FormatU8:
		return 1
	case FormatS16:
		return 2
	case FormatS24:
		return 3
	case FormatS32, FormatF32:
		return 4
	default:
		return 2
	}
}

// Family identifies a decoder/container class. Gapless chaining is only ever
// attempted between two decoders of the same Family.
type Family int

const (
	FamilyNone Family = iota
	FamilyBuiltin
	FamilyVorbis
	FamilyOpus
	FamilyWebm
	FamilyM4a
)

func (f Family) String() string {
	switch f {
	case FamilyBuiltin:
		return "builtin"
	case FamilyVorbis:
		return "vorbis"
	case FamilyOpus:
		return "opus"
	case FamilyWebm:
		return "webm"
	case FamilyM4a:
		return "m4a"
	default:
		return "none"
	}
}

// ReadResult classifies the outcome of a ReadFrames call.
type ReadResult int

const (
	ReadOK ReadResult = iota
	ReadAtEnd
	ReadError
)

// M4aFileType distinguishes MP4-contained AAC from raw ADTS AAC. RawAAC
// streams have no seek table, so seeking is disabled for them.
type M4aFileType int

const (
	M4aFileMP4 M4aFileType = iota
	M4aFileRawAAC
)

// Decoder is the capability contract every family variant implements. All
// decoders work in PCM frames (one sample per channel), never raw bytes, so
// callers can reason about position independent of sample width.
type Decoder interface {
	// ReadFrames decodes up to frameCount frames into out (sized for at
	// least frameCount*Format().BytesPerFrame() bytes) and returns how
	// many frames were produced. It always advances the cursor by exactly
	// the number of frames returned, even on a partial read.
	ReadFrames(out []byte, frameCount int) (framesRead int, result ReadResult, err error)

	// SeekToFrame clamps i to [0, length-1] and repositions the decoder
	// there, resetting any codec-internal state (e.g. IIR history,
	// overlap-add tails). Decoders that cannot seek (RawAAC) return an
	// error and leave all state untouched.
	SeekToFrame(i int64) error

	// CursorFrames returns the current decode position in frames.
	CursorFrames() int64

	// LengthFrames returns the total frame count, or -1 if unknown.
	LengthFrames() int64

	// Format returns the decoder's fixed PCM output shape.
	Format() Format

	// Family identifies which variant this decoder is.
	Family() Family

	// Close releases any underlying file handles.
	Close() error
}

// ErrorKind enumerates the taxonomy surfaced to callers: I/O failures,
// unrecoverable decode failures, the (non-fatal) family/format mismatch
// signal, device failures, bad arguments, and operator cancellation.
type ErrorKind int

const (
	ErrIO ErrorKind = iota
	ErrDecode
	ErrFormatMismatch
	ErrDevice
	ErrInvalidArgument
	ErrCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case ErrIO:
		return "io"
	case ErrDecode:
		return "decode"
	case ErrFormatMismatch:
		return "format_mismatch"
	case ErrDevice:
		return "device"
	case ErrInvalidArgument:
		return "invalid_argument"
	case ErrCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a classification from the taxonomy
// above, replacing a global message-slot pattern with a typed, inspectable
// value callers can branch on via errors.As.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// OpenDecoder selects a family by file extension and opens it. It is the
// sole entry point LoaderThread uses to construct a Decoder for a song.
func OpenDecoder(path string) (Decoder, error) {
	return openByExt(path)
}

var _ io.Closer = Decoder(nil)
