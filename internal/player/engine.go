package player

import (
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/climp-core/climp/internal/clock"
	"github.com/climp-core/climp/internal/event"
	"github.com/climp-core/climp/internal/queue"
	"github.com/climp-core/climp/internal/visualizer"
)

// RepeatMode is the playlist-wrap behaviour at end of stream.
type RepeatMode int

const (
	RepeatOff RepeatMode = iota
	RepeatTrack
	RepeatList
)

const (
	nextPrevCooldown   = 500 * time.Millisecond
	seekRemoveCooldown = 100 * time.Millisecond
	loadPollInterval   = 100 * time.Millisecond
	loadTimeout        = 5 * time.Second
)

// Engine is the process-singleton playback state machine: it owns the
// playlists, the decoder slot, the device host, the clock, and the
// analysis buffer, and exposes the transport operations the control
// thread (UI event loop) calls. It replaces the source's scattered
// process-global mutable state with one owned value threaded through the
// control path.
type Engine struct {
	// Playlists. active and unshuffled share an id space; ShuffleToggle
	// rebuilds active from unshuffled.
	unshuffled *queue.Playlist
	active     *queue.Playlist
	favorites  *queue.Playlist

	slot   *DecoderSlot
	device audioDevice
	clk    *clock.Clock
	ring   *visualizer.AnalysisBuffer
	bus    *event.Bus
	loader *LoaderThread
	rngSrc *rand.Rand

	// dataSourceMu guards everything the gapless read path and the control
	// path both touch: slot rotation, currentFileIndex, switchFiles, and
	// the just-published SongData. A real-time audio callback would want a
	// non-blocking try_lock here since it runs in a literal interrupt
	// context; oto's player instead pulls PCM from a plain goroutine, so a
	// short blocking Lock is the faithful Go equivalent without risking
	// audible dropouts.
	dataSourceMu sync.Mutex

	currentNode      *queue.SongNode
	currentImpl      Family
	currentFileIndex int
	switchFiles      bool
	totalFrames      int64
	seekRequested    bool
	seekPercent      float32

	eofReached    atomic.Bool
	switchReached atomic.Bool
	skipToNext    atomic.Bool

	mu             sync.Mutex // control-path state below
	paused         bool
	stopped        bool
	repeat         RepeatMode
	shuffle        bool
	volumePercent  int
	lastNextPrev   time.Time
	lastSeekRemove time.Time
}

// audioDevice is the subset of DeviceHost the engine depends on. Factored
// out so tests can drive the state machine against a fake device instead
// of opening a real oto.Context, which requires a live audio backend.
type audioDevice interface {
	Init(dec Decoder) error
	Start()
	Stop()
	Cleanup()
	SetMasterVolume(pct int)
	FixedFormat() Format
	hasActivePlayer() bool
}

// NewEngine returns a freshly-initialised Engine with empty playlists,
// backed by a real DeviceHost.
func NewEngine(bus *event.Bus) *Engine {
	return newEngineWithDevice(bus, NewDeviceHost())
}

func newEngineWithDevice(bus *event.Bus, device audioDevice) *Engine {
	window, hop := visualizer.WindowHopFor(44100)
	return &Engine{
		unshuffled:    queue.New(),
		active:        queue.New(),
		favorites:     queue.New(),
		slot:          NewDecoderSlot(),
		device:        device,
		clk:           clock.New(),
		ring:          visualizer.NewAnalysisBuffer(window, hop),
		bus:           bus,
		loader:        NewLoaderThread(),
		rngSrc:        rand.New(rand.NewSource(1)),
		volumePercent: 100,
	}
}

// Playlists exposes the three playlists for control-path callers (library
// browsing, queue rendering) that need direct access.
func (e *Engine) Playlists() (unshuffled, active, favorites *queue.Playlist) {
	return e.unshuffled, e.active, e.favorites
}

// LoadPlaylist replaces the unshuffled playlist with p and rebuilds active
// as a fresh deep copy of it, discarding any current shuffle order.
func (e *Engine) LoadPlaylist(p *queue.Playlist) {
	e.mu.Lock()
	e.shuffle = false
	e.mu.Unlock()
	e.unshuffled = p
	e.active = p.DeepCopy()
}

// SetFavorites replaces the favorites playlist, e.g. after loading it from
// disk at startup.
func (e *Engine) SetFavorites(p *queue.Playlist) {
	e.favorites = p
}

// Clock exposes the playback clock for the UI's ~10 Hz tick.
func (e *Engine) Clock() *clock.Clock { return e.clk }

// AnalysisBuffer exposes the visualiser feed for the UI's spectrum render.
func (e *Engine) AnalysisBuffer() *visualizer.AnalysisBuffer { return e.ring }

// Play loads node: it resets the clock, asks the loader thread to prepare
// the decoder into the inactive slot, waits up to ~5s for it, then drives
// the device switch. Returns 0 on success, -1 if the song has errors.
func (e *Engine) Play(node *queue.SongNode) int {
	if node == nil || node.FilePath == "" || node.ID < 0 {
		return -1
	}

	e.mu.Lock()
	e.currentNode = node
	e.stopped = false
	e.mu.Unlock()

	e.clk.Reset()
	e.skipToNext.Store(false)

	e.loader.Prepare(node, e.slot)

	deadline := time.Now().Add(loadTimeout)
	for !e.loader.LoadedNextSong() {
		if time.Now().After(deadline) {
			node.HasErrors = true
			break
		}
		time.Sleep(loadPollInterval)
	}

	if node.HasErrors {
		return -1
	}

	e.switchAudioImplementation()
	e.bus.Publish(event.TrackChanged(node.ID, node.FilePath))
	e.bus.Publish(event.PlaybackStatus(event.Playing))
	return 0
}

// switchAudioImplementation compares the newly-staged decoder's family and
// format with the current family and active decoder, then rotates the slot
// so the staged decoder becomes active. A match (same family, same PCM
// shape) with a running device lets that device keep running, reading
// from the new decoder with no re-init. A mismatch tears the device down
// and reinitialises it at the new format.
func (e *Engine) switchAudioImplementation() {
	e.dataSourceMu.Lock()
	staged := e.slot.Staging()
	e.dataSourceMu.Unlock()
	if staged == nil {
		e.eofReached.Store(true)
		return
	}

	sameFormat := e.currentImpl == staged.Family()
	if active := e.slot.Active(); active != nil && sameFormat {
		sameFormat = active.Format().Equal(staged.Format())
	}

	e.dataSourceMu.Lock()
	e.slot.Rotate()
	e.totalFrames = 0
	e.currentFileIndex = 1 - e.currentFileIndex
	e.switchFiles = false
	e.dataSourceMu.Unlock()
	e.eofReached.Store(false)

	if sameFormat && e.device.hasActivePlayer() {
		e.switchReached.Store(false)
		return
	}

	e.switchReached.Store(true)
	e.device.Cleanup()
	active := e.slot.Active()
	if active == nil {
		e.currentImpl = FamilyNone
		e.eofReached.Store(true)
		return
	}
	if err := e.device.Init(&gaplessSource{engine: e}); err != nil {
		e.currentImpl = FamilyNone
		e.eofReached.Store(true)
		e.bus.Publish(event.Error(err.Error()))
		return
	}
	e.currentImpl = active.Family()
	window, hop := visualizer.WindowHopFor(active.Format().SampleRate)
	e.ring.Reconfigure(window, hop)
	e.device.Start()
	e.switchReached.Store(false)
}

// TogglePause flips paused/playing. Resuming from stopped resets the
// clock instead.
func (e *Engine) TogglePause() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		e.clk.Reset()
		e.stopped = false
	}

	if e.paused {
		e.clk.FoldPause()
		e.clk.SetPaused(false)
		e.paused = false
		e.device.Start()
		e.bus.Publish(event.PlaybackStatus(event.Playing))
		return
	}
	e.paused = true
	e.clk.SetPaused(true)
	e.device.Stop()
	e.bus.Publish(event.PlaybackStatus(event.Paused))
}

// Stop halts the device and rewinds to frame 0.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	e.paused = false
	e.mu.Unlock()

	e.device.Stop()
	if active := e.slot.Active(); active != nil {
		_ = active.SeekToFrame(0)
	}
	e.clk.Reset()
	e.bus.Publish(event.PlaybackStatus(event.Stopped))
}

// Seek accumulates a relative seek. Fails silently when paused or when the
// active decoder cannot seek (RawAAC).
func (e *Engine) Seek(delta time.Duration) {
	if !e.cooldownOK(&e.lastSeekRemove, seekRemoveCooldown) {
		return
	}
	e.mu.Lock()
	paused := e.paused
	e.mu.Unlock()
	if paused {
		return
	}
	canSeek := true
	if active := e.slot.Active(); active != nil {
		if m4a, ok := active.(*m4aDecoder); ok && m4a.FileType() == M4aFileRawAAC {
			canSeek = false
		}
	}
	if !canSeek {
		return
	}
	e.clk.AccumulateSeek(delta)
	e.flushSeek(canSeek)
}

// SetPosition computes a signed delta against the current clock position
// and routes it through Seek.
func (e *Engine) SetPosition(absoluteMicros int64) {
	current := e.clk.Elapsed()
	target := time.Duration(absoluteMicros) * time.Microsecond
	e.Seek(target - current)
}

func (e *Engine) flushSeek(canSeek bool) {
	duration := e.currentDuration()
	pct, ok := e.clk.FlushSeek(duration, canSeek)
	if !ok {
		return
	}

	e.dataSourceMu.Lock()
	e.seekPercent = pct
	e.seekRequested = true
	e.dataSourceMu.Unlock()

	e.bus.Publish(event.Seeked(e.clk.Elapsed().Microseconds()))
}

func (e *Engine) currentDuration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentNode == nil {
		return 0
	}
	return time.Duration(e.currentNode.DurationSeconds * float64(time.Second))
}

func (e *Engine) cooldownOK(last *time.Time, window time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := time.Now()
	if now.Sub(*last) < window {
		return false
	}
	*last = now
	return true
}

// SkipNext advances to the next song in active order, honouring repeat and
// a 500ms cooldown.
func (e *Engine) SkipNext() {
	if !e.cooldownOK(&e.lastNextPrev, nextPrevCooldown) {
		return
	}
	e.mu.Lock()
	cur := e.currentNode
	repeat := e.repeat
	e.mu.Unlock()
	if cur == nil {
		return
	}

	if repeat == RepeatTrack {
		e.restartCurrentTrack()
		return
	}

	next := cur.Next
	if next == nil {
		if repeat == RepeatList {
			next = e.active.Head()
		} else {
			e.Stop()
			return
		}
	}
	if next != nil {
		e.Play(next)
	}
}

// SkipPrev moves to the previous song, subject to the same cooldown.
func (e *Engine) SkipPrev() {
	if !e.cooldownOK(&e.lastNextPrev, nextPrevCooldown) {
		return
	}
	e.mu.Lock()
	cur := e.currentNode
	e.mu.Unlock()
	if cur == nil || cur.Prev == nil {
		return
	}
	e.Play(cur.Prev)
}

// SkipTo jumps directly to the node with the given id.
func (e *Engine) SkipTo(id int32) {
	if !e.cooldownOK(&e.lastNextPrev, nextPrevCooldown) {
		return
	}
	if node := e.active.FindByID(id); node != nil {
		e.Play(node)
	}
}

// SkipToNumber jumps to the nth (0-based) song in the active playlist.
func (e *Engine) SkipToNumber(n int) {
	if !e.cooldownOK(&e.lastNextPrev, nextPrevCooldown) {
		return
	}
	i := 0
	for node := e.active.Head(); node != nil; node = node.Next {
		if i == n {
			e.Play(node)
			return
		}
		i++
	}
}

func (e *Engine) restartCurrentTrack() {
	if active := e.slot.Active(); active != nil {
		_ = active.SeekToFrame(0)
	}
	e.clk.Reset()
	e.bus.Publish(event.Seeked(0))
}

// RepeatCycle advances Off -> Track -> List -> Off.
func (e *Engine) RepeatCycle() RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.repeat = (e.repeat + 1) % 3
	return e.repeat
}

// Repeat reports the current repeat mode.
func (e *Engine) Repeat() RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

// ShuffleToggle enables or disables shuffle. Enabling builds active as a
// Fisher-Yates permutation of unshuffled starting from the current song;
// disabling restores active = deep_copy(unshuffled).
func (e *Engine) ShuffleToggle() bool {
	e.mu.Lock()
	cur := e.currentNode
	e.shuffle = !e.shuffle
	enabling := e.shuffle
	e.mu.Unlock()

	if enabling {
		var currentInUnshuffled *queue.SongNode
		if cur != nil {
			currentInUnshuffled = e.unshuffled.FindByID(cur.ID)
		}
		e.active = e.unshuffled.ShuffleFrom(currentInUnshuffled, e.rngSrc)
	} else {
		e.active = e.unshuffled.DeepCopy()
	}
	return enabling
}

// VolumeChange adjusts the device master volume by deltaPercent, clamped
// to [0,100].
func (e *Engine) VolumeChange(deltaPercent int) int {
	e.mu.Lock()
	e.volumePercent += deltaPercent
	if e.volumePercent < 0 {
		e.volumePercent = 0
	}
	if e.volumePercent > 100 {
		e.volumePercent = 100
	}
	pct := e.volumePercent
	e.mu.Unlock()

	e.device.SetMasterVolume(pct)
	e.bus.Publish(event.VolumeChanged(pct))
	return pct
}

// gaplessSource adapts the engine's rotating DecoderSlot to the Decoder
// interface DeviceHost expects, implementing the gapless switch protocol:
// on end-of-stream it rotates the slot to the already-prepared next
// decoder instead of stalling, so long as the device itself does not need
// to be torn down.
type gaplessSource struct {
	engine *Engine
}

func (g *gaplessSource) ReadFrames(out []byte, frameCount int) (int, ReadResult, error) {
	e := g.engine
	if e.switchReached.Load() {
		return 0, ReadOK, nil
	}

	e.dataSourceMu.Lock()
	defer e.dataSourceMu.Unlock()

	if e.switchFiles {
		e.slot.Rotate()
		e.totalFrames = 0
		e.currentFileIndex = 1 - e.currentFileIndex
		e.switchFiles = false
		e.eofReached.Store(true)
	}

	dec := e.slot.Active()
	if dec == nil {
		return 0, ReadAtEnd, nil
	}

	if e.totalFrames == 0 {
		e.totalFrames = dec.LengthFrames()
	}

	if e.seekRequested {
		total := e.totalFrames
		if total > 0 {
			target := int64(float32(total-1) * e.seekPercent / 100)
			_ = dec.SeekToFrame(target)
		}
		e.seekRequested = false
	}

	n, result, err := dec.ReadFrames(out, frameCount)

	atEnd := result == ReadAtEnd || n == 0 || e.skipToNext.Load() || err != nil
	if atEnd && !e.eofReached.Load() {
		e.skipToNext.Store(false)
		if e.repeatModeUnsafe() != RepeatTrack {
			e.switchFiles = true
		} else {
			_ = dec.SeekToFrame(0)
		}
	}

	if n > 0 {
		bpf := dec.Format().BytesPerFrame()
		e.publishAnalysisUnsafe(out[:n*bpf], dec.Format())
	}

	return n, ReadOK, nil
}

func (e *Engine) repeatModeUnsafe() RepeatMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.repeat
}

func (e *Engine) publishAnalysisUnsafe(pcm []byte, format Format) {
	frames := make([]int16, 0, len(pcm)/2)
	for i := 0; i+1 < len(pcm); i += 2 {
		frames = append(frames, int16(uint16(pcm[i])|uint16(pcm[i+1])<<8))
	}
	e.ring.WriteFrames(frames, format.Channels)
}

func (g *gaplessSource) SeekToFrame(i int64) error {
	if dec := g.engine.slot.Active(); dec != nil {
		return dec.SeekToFrame(i)
	}
	return nil
}

func (g *gaplessSource) CursorFrames() int64 {
	if dec := g.engine.slot.Active(); dec != nil {
		return dec.CursorFrames()
	}
	return 0
}

func (g *gaplessSource) LengthFrames() int64 {
	if dec := g.engine.slot.Active(); dec != nil {
		return dec.LengthFrames()
	}
	return -1
}

func (g *gaplessSource) Format() Format {
	if dec := g.engine.slot.Active(); dec != nil {
		return dec.Format()
	}
	return Format{Sample: FormatS16, Channels: 2, SampleRate: 44100}
}

func (g *gaplessSource) Family() Family {
	if dec := g.engine.slot.Active(); dec != nil {
		return dec.Family()
	}
	return FamilyNone
}

func (g *gaplessSource) Close() error { return nil }
