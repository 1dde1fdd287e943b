package player

import (
	"sync"
	"testing"
	"time"

	"github.com/climp-core/climp/internal/event"
	"github.com/climp-core/climp/internal/queue"
)

// fakeDecoder is an in-memory Decoder used to drive the engine's state
// machine without touching a real codec or the filesystem. Every frame is
// silence; tests only care about cursor/length bookkeeping and family.
type fakeDecoder struct {
	mu     sync.Mutex
	format Format
	family Family
	length int64
	cursor int64
	closed bool
	seekErr error
}

func newFakeDecoder(family Family, format Format, length int64) *fakeDecoder {
	return &fakeDecoder{format: format, family: family, length: length}
}

func (d *fakeDecoder) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cursor >= d.length {
		return 0, ReadAtEnd, nil
	}
	remaining := d.length - d.cursor
	n := int64(frameCount)
	if n > remaining {
		n = remaining
	}
	bpf := d.format.BytesPerFrame()
	if int64(len(out)) < n*int64(bpf) {
		n = int64(len(out) / bpf)
	}
	d.cursor += n
	result := ReadOK
	if d.cursor >= d.length {
		result = ReadAtEnd
	}
	return int(n), result, nil
}

func (d *fakeDecoder) SeekToFrame(i int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seekErr != nil {
		return d.seekErr
	}
	if i < 0 {
		i = 0
	}
	if i > d.length {
		i = d.length
	}
	d.cursor = i
	return nil
}

func (d *fakeDecoder) CursorFrames() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cursor
}

func (d *fakeDecoder) LengthFrames() int64 { return d.length }
func (d *fakeDecoder) Format() Format      { return d.format }
func (d *fakeDecoder) Family() Family      { return d.family }
func (d *fakeDecoder) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func stereoFormat() Format {
	return Format{Sample: FormatS16, Channels: 2, SampleRate: 44100}
}

// fakeDevice stands in for DeviceHost so engine tests never touch a real
// oto.Context, which requires a live audio backend unavailable in CI.
type fakeDevice struct {
	mu         sync.Mutex
	fixed      Format
	hasFixed   bool
	active     bool
	initCount  int
	volumePct  int
}

func newFakeDevice() *fakeDevice { return &fakeDevice{volumePct: 100} }

func (d *fakeDevice) Init(dec Decoder) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.initCount++
	d.fixed = dec.Format()
	d.hasFixed = true
	d.active = true
	return nil
}

func (d *fakeDevice) Start() {}
func (d *fakeDevice) Stop()  {}

func (d *fakeDevice) Cleanup() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.active = false
}

func (d *fakeDevice) SetMasterVolume(pct int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.volumePct = pct
}

func (d *fakeDevice) FixedFormat() Format {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fixed
}

func (d *fakeDevice) hasActivePlayer() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.active
}

func (d *fakeDevice) InitCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.initCount
}

// withFakeDecoders swaps openDecoderFunc so every node's FilePath maps to
// the decoder supplied for it, then restores the original on cleanup.
func withFakeDecoders(t *testing.T, byPath map[string]func() Decoder) {
	t.Helper()
	orig := openDecoderFunc
	openDecoderFunc = func(path string) (Decoder, error) {
		mk, ok := byPath[path]
		if !ok {
			t.Fatalf("no fake decoder registered for %q", path)
		}
		return mk(), nil
	}
	t.Cleanup(func() { openDecoderFunc = orig })
}

func newTestEngine() (*Engine, <-chan event.Event) {
	bus := event.NewBus()
	sub, _ := bus.Subscribe()
	e := newEngineWithDevice(bus, newFakeDevice())
	return e, sub
}

func TestPlaySameFormatGaplessDoesNotReinitDevice(t *testing.T) {
	fmtA := stereoFormat()
	withFakeDecoders(t, map[string]func() Decoder{
		"a.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 1000) },
		"b.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 1000) },
	})

	e, _ := newTestEngine()
	songA := &queue.SongNode{ID: 1, FilePath: "a.mp3"}
	songB := &queue.SongNode{ID: 2, FilePath: "b.mp3"}

	if got := e.Play(songA); got != 0 {
		t.Fatalf("Play(a) = %d, want 0", got)
	}
	fd := e.device.(*fakeDevice)
	initsBefore := fd.InitCount()

	if got := e.Play(songB); got != 0 {
		t.Fatalf("Play(b) = %d, want 0", got)
	}
	if fd.InitCount() != initsBefore {
		t.Fatal("same-format switch should not reinitialise the device")
	}
	if e.slot.Active().Family() != FamilyBuiltin {
		t.Fatal("active decoder family should remain builtin after switch")
	}
}

func TestPlayCrossFormatBoundaryReinitsDevice(t *testing.T) {
	fmtA := stereoFormat()
	fmtB := Format{Sample: FormatS16, Channels: 2, SampleRate: 48000}
	withFakeDecoders(t, map[string]func() Decoder{
		"a.mp3":  func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 1000) },
		"b.opus": func() Decoder { return newFakeDecoder(FamilyOpus, fmtB, 1000) },
	})

	e, _ := newTestEngine()
	songA := &queue.SongNode{ID: 1, FilePath: "a.mp3"}
	songB := &queue.SongNode{ID: 2, FilePath: "b.opus"}

	if got := e.Play(songA); got != 0 {
		t.Fatalf("Play(a) = %d, want 0", got)
	}
	fd := e.device.(*fakeDevice)
	initsBefore := fd.InitCount()

	if got := e.Play(songB); got != 0 {
		t.Fatalf("Play(b) = %d, want 0", got)
	}
	if fd.InitCount() == initsBefore {
		t.Fatal("cross-format switch should reinitialise the device")
	}
	if e.currentImpl != FamilyOpus {
		t.Fatalf("currentImpl = %v, want FamilyOpus", e.currentImpl)
	}
}

func TestSeekWhilePausedIsRejected(t *testing.T) {
	fmtA := stereoFormat()
	withFakeDecoders(t, map[string]func() Decoder{
		"a.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 44100*10) },
	})

	e, _ := newTestEngine()
	e.Play(&queue.SongNode{ID: 1, FilePath: "a.mp3", DurationSeconds: 10})
	e.TogglePause()

	before := e.clk.Elapsed()
	e.Seek(2 * time.Second)
	if e.clk.Elapsed() != before {
		t.Fatal("Seek while paused should not move the clock")
	}
}

func TestRepeatTrackRestartsAtEndOfStream(t *testing.T) {
	fmtA := stereoFormat()
	withFakeDecoders(t, map[string]func() Decoder{
		"a.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 64) },
	})

	e, _ := newTestEngine()
	e.Play(&queue.SongNode{ID: 1, FilePath: "a.mp3"})
	e.RepeatCycle() // Off -> Track

	src := &gaplessSource{engine: e}
	buf := make([]byte, fmtA.BytesPerFrame()*64)

	n, _, err := src.ReadFrames(buf, 64)
	if err != nil {
		t.Fatalf("ReadFrames() error = %v", err)
	}
	if n != 64 {
		t.Fatalf("ReadFrames() n = %d, want 64 (full track read in one call)", n)
	}

	active := e.slot.Active()
	if active.CursorFrames() != 0 {
		t.Fatalf("repeat-track should rewind to frame 0, cursor = %d", active.CursorFrames())
	}

	n2, _, err := src.ReadFrames(buf, 64)
	if err != nil {
		t.Fatalf("second ReadFrames() error = %v", err)
	}
	if n2 == 0 {
		t.Fatal("repeat-track should keep producing frames from the same decoder")
	}
}

func TestUnsupportedFileMarksHasErrors(t *testing.T) {
	orig := openDecoderFunc
	openDecoderFunc = func(path string) (Decoder, error) {
		return nil, newError(ErrDecode, "open", nil)
	}
	t.Cleanup(func() { openDecoderFunc = orig })

	e, _ := newTestEngine()
	node := &queue.SongNode{ID: 1, FilePath: "bad.aac"}

	if got := e.Play(node); got != -1 {
		t.Fatalf("Play() = %d, want -1 for a decoder that fails to open", got)
	}
	if !node.HasErrors {
		t.Fatal("HasErrors should be set after a failed decode")
	}
}

func TestRepeatCycleWraps(t *testing.T) {
	e, _ := newTestEngine()
	if got := e.RepeatCycle(); got != RepeatTrack {
		t.Fatalf("first cycle = %v, want RepeatTrack", got)
	}
	if got := e.RepeatCycle(); got != RepeatList {
		t.Fatalf("second cycle = %v, want RepeatList", got)
	}
	if got := e.RepeatCycle(); got != RepeatOff {
		t.Fatalf("third cycle = %v, want RepeatOff", got)
	}
}

func TestVolumeChangeClampsToRange(t *testing.T) {
	e, _ := newTestEngine()
	if got := e.VolumeChange(-1000); got != 0 {
		t.Fatalf("VolumeChange(-1000) = %d, want 0", got)
	}
	if got := e.VolumeChange(1000); got != 100 {
		t.Fatalf("VolumeChange(1000) = %d, want 100", got)
	}
}

func TestShuffleTogglePlacesCurrentFirstAndRoundTrips(t *testing.T) {
	e, _ := newTestEngine()
	var nodes []*queue.SongNode
	for i := 0; i < 5; i++ {
		nodes = append(nodes, e.unshuffled.Add("song", float64(i)))
	}
	e.active = e.unshuffled.DeepCopy()
	e.currentNode = e.active.FindByID(nodes[2].ID)

	if enabled := e.ShuffleToggle(); !enabled {
		t.Fatal("ShuffleToggle() should enable shuffle on first call")
	}
	if e.active.Head().ID != nodes[2].ID {
		t.Fatalf("shuffled head ID = %d, want current song %d", e.active.Head().ID, nodes[2].ID)
	}

	if enabled := e.ShuffleToggle(); enabled {
		t.Fatal("ShuffleToggle() should disable shuffle on second call")
	}
	var ids []int32
	for n := e.active.Head(); n != nil; n = n.Next {
		ids = append(ids, n.ID)
	}
	if len(ids) != 5 || ids[0] != nodes[0].ID {
		t.Fatalf("unshuffled order not restored: %v", ids)
	}
}

func TestCooldownRejectsRapidSkipNext(t *testing.T) {
	fmtA := stereoFormat()
	withFakeDecoders(t, map[string]func() Decoder{
		"a.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 1000) },
		"b.mp3": func() Decoder { return newFakeDecoder(FamilyBuiltin, fmtA, 1000) },
	})

	e, _ := newTestEngine()
	songA := e.unshuffled.Add("a.mp3", 1)
	songB := e.unshuffled.Add("b.mp3", 1)
	e.active = e.unshuffled.DeepCopy()

	e.Play(e.active.FindByID(songA.ID))
	e.SkipNext()
	first := e.currentNode

	e.SkipNext()
	if e.currentNode != first {
		t.Fatal("second SkipNext within the cooldown window should be a no-op")
	}
	_ = songB
}
