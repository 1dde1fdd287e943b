package player

import "sync"

// DecoderSlot holds the two decoder positions the engine rotates between to
// hide decoder-construction latency: an active decoder currently feeding the
// device, and a staged decoder prepared ahead of time by the loader thread.
// This replaces a sentinel-indexed {-1,0,1} rotation scheme with an explicit
// pair and a single rotate-and-retire method.
type DecoderSlot struct {
	mu      sync.Mutex
	active  Decoder
	staging Decoder
}

// NewDecoderSlot returns an empty slot.
func NewDecoderSlot() *DecoderSlot {
	return &DecoderSlot{}
}

// PrepareNext stores dec as the staged decoder, replacing (and closing) any
// previous staged decoder. Called by the loader thread; never touches the
// active decoder.
func (s *DecoderSlot) PrepareNext(dec Decoder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.staging != nil {
		_ = s.staging.Close()
	}
	s.staging = dec
}

// Rotate retires the current active decoder (closing it) and promotes the
// staged decoder to active. Returns the newly active decoder, or nil if
// nothing was staged. Must be called with data_source_mutex held by the
// caller (the engine's control path and the real-time callback coordinate
// via that higher-level lock; DecoderSlot's own mutex only protects its two
// fields from concurrent access).
func (s *DecoderSlot) Rotate() Decoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		_ = s.active.Close()
	}
	s.active = s.staging
	s.staging = nil
	return s.active
}

// Active returns the current feeding decoder, or nil.
func (s *DecoderSlot) Active() Decoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Staging returns the prepared-but-not-yet-active decoder, or nil.
func (s *DecoderSlot) Staging() Decoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staging
}

// Reset closes and clears both decoders, e.g. on stop() or a fatal device
// error.
func (s *DecoderSlot) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		_ = s.active.Close()
		s.active = nil
	}
	if s.staging != nil {
		_ = s.staging.Close()
		s.staging = nil
	}
}
