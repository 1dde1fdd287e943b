package player

import (
	"os"
	"sync/atomic"

	"github.com/climp-core/climp/internal/queue"
)

// SongData is what the loader thread publishes about a prepared song once
// its decoder has been constructed. MetadataProvider is reserved for a
// future cover-art/tag layer; album art and tag extraction are out of
// scope for the playback core, so it is always nil here.
type SongData struct {
	Duration         float64
	AvgBitrateKbps   int
	Format           Format
	Family           Family
	MetadataProvider interface{}
}

// openDecoderFunc is OpenDecoder by default; tests swap it in to stage a
// fake Decoder without touching the filesystem.
var openDecoderFunc = OpenDecoder

// LoaderThread prepares songs on a detached worker: it opens the decoder,
// stages it into the inactive DecoderSlot, and publishes SongData once
// ready. It never touches the active decoder or a playlist.
type LoaderThread struct {
	loadedNextSong atomic.Bool
	lastData       atomic.Value // SongData
}

func NewLoaderThread() *LoaderThread {
	return &LoaderThread{}
}

// LoadedNextSong reports whether the most recently requested prepare has
// completed (successfully or not).
func (l *LoaderThread) LoadedNextSong() bool {
	return l.loadedNextSong.Load()
}

// LastSongData returns the most recently published SongData, or the zero
// value if nothing has been published yet.
func (l *LoaderThread) LastSongData() SongData {
	v, _ := l.lastData.Load().(SongData)
	return v
}

// Prepare opens a decoder for node.FilePath on a detached goroutine and
// stages it into slot. On success node.DurationSeconds is filled in from
// the decoder, and SongData becomes available via LastSongData. On
// failure node.HasErrors is set and the slot is left untouched; the
// caller is expected to fall through to its "try next" loop.
func (l *LoaderThread) Prepare(node *queue.SongNode, slot *DecoderSlot) {
	l.loadedNextSong.Store(false)

	go func() {
		defer l.loadedNextSong.Store(true)

		dec, err := openDecoderFunc(node.FilePath)
		if err != nil {
			node.HasErrors = true
			return
		}

		format := dec.Format()
		duration := decoderDurationSeconds(dec, format)
		avgBitrate := 0
		if dec.Family() == FamilyBuiltin {
			avgBitrate = estimateAvgBitrateKbps(node.FilePath, duration)
		}

		node.DurationSeconds = duration
		slot.PrepareNext(dec)

		l.lastData.Store(SongData{
			Duration:       duration,
			AvgBitrateKbps: avgBitrate,
			Format:         format,
			Family:         dec.Family(),
		})
	}()
}

func decoderDurationSeconds(dec Decoder, format Format) float64 {
	total := dec.LengthFrames()
	if total < 0 || format.SampleRate == 0 {
		return 0
	}
	return float64(total) / float64(format.SampleRate)
}

// estimateAvgBitrateKbps computes an average bitrate
// (file_size_bytes*8/duration_seconds/1000), capped at 320 kbps, used to
// annotate Builtin-family songs (MP3 in practice; lossless formats report
// their container's nominal rate just as cheaply via the same formula).
func estimateAvgBitrateKbps(path string, durationSeconds float64) int {
	if durationSeconds <= 0 {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	kbps := int(float64(info.Size()) * 8 / durationSeconds / 1000)
	if kbps > 320 {
		kbps = 320
	}
	if kbps < 0 {
		kbps = 0
	}
	return kbps
}
