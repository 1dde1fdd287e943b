package player

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/hajimehoshi/go-mp3"
)

func fixturePath(name string) string {
	return filepath.Join("..", "..", "songs", name)
}

func TestReadMP3GaplessTrim(t *testing.T) {
	path := fixturePath("4 Raws.mp3")
	f, err := os.Open(path)
	if err != nil {
		t.Skipf("fixture unavailable: %v", err)
	}
	defer f.Close()

	start, end, err := readMP3GaplessTrim(f)
	if err != nil {
		t.Fatalf("readMP3GaplessTrim() error = %v", err)
	}
	if start != 1105 {
		t.Fatalf("start trim = %d, want 1105", start)
	}
	if end != 1071 {
		t.Fatalf("end trim = %d, want 1071", end)
	}
}

func TestReadMP3GaplessTrimAbsent(t *testing.T) {
	path := fixturePath("arc-radiers-ost.mp3")
	f, err := os.Open(path)
	if err != nil {
		t.Skipf("fixture unavailable: %v", err)
	}
	defer f.Close()

	start, end, err := readMP3GaplessTrim(f)
	if err != nil {
		t.Fatalf("readMP3GaplessTrim() error = %v", err)
	}
	if start != 0 || end != 0 {
		t.Fatalf("trim = (%d, %d), want (0, 0)", start, end)
	}
}

func TestNewMP3DecoderAdjustsLengthForGaplessTrim(t *testing.T) {
	path := fixturePath("4 Raws.mp3")
	f, err := os.Open(path)
	if err != nil {
		t.Skipf("fixture unavailable: %v", err)
	}
	defer f.Close()

	dec, err := newMP3Decoder(f)
	if err != nil {
		t.Fatalf("newMP3Decoder() error = %v", err)
	}
	defer dec.Close()

	rawFile, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open raw(%q) error = %v", path, err)
	}
	defer rawFile.Close()

	rawDec, err := mp3.NewDecoder(rawFile)
	if err != nil {
		t.Fatalf("mp3.NewDecoder() error = %v", err)
	}

	want := rawDec.Length()/4 - int64(1105+1071)
	if got := dec.LengthFrames(); got != want {
		t.Fatalf("LengthFrames() = %d, want %d", got, want)
	}

	if err := dec.SeekToFrame(0); err != nil {
		t.Fatalf("SeekToFrame(0) error = %v", err)
	}
	if dec.CursorFrames() != 0 {
		t.Fatalf("CursorFrames() = %d, want 0", dec.CursorFrames())
	}

	buf := make([]byte, 4096)
	n, _, err := dec.ReadFrames(buf, 1024)
	if err != nil {
		t.Fatalf("ReadFrames() error = %v", err)
	}
	if n == 0 {
		t.Fatal("ReadFrames() after seek returned no frames")
	}
}

func TestWAVRoundTrip(t *testing.T) {
	path := fixturePath("test.wav")
	f, err := os.Open(path)
	if err != nil {
		t.Skipf("fixture unavailable: %v", err)
	}
	defer f.Close()

	dec, err := newWAVDecoder(f)
	if err != nil {
		t.Fatalf("newWAVDecoder() error = %v", err)
	}
	defer dec.Close()

	buf := make([]byte, dec.Format().BytesPerFrame()*1024)
	total := int64(0)
	for {
		n, result, err := dec.ReadFrames(buf, 1024)
		if err != nil {
			t.Fatalf("ReadFrames() error = %v", err)
		}
		total += int64(n)
		if result == ReadAtEnd {
			break
		}
	}
	if total != dec.LengthFrames() {
		t.Fatalf("decoded %d frames, want %d", total, dec.LengthFrames())
	}

	if err := dec.SeekToFrame(0); err != nil {
		t.Fatalf("SeekToFrame(0) error = %v", err)
	}
	n, _, err := dec.ReadFrames(buf, 1)
	if err != nil || n == 0 {
		t.Fatalf("ReadFrames() after seek = (%d, %v)", n, err)
	}
}
