package capture

import (
	"sync"
	"time"

	"Fusor/pkg/util/clock"
)

// DefaultMaxFrameLength bounds a single captured frame.
const DefaultMaxFrameLength = 1000000

// Slot holds the most recent captured frame. Put overwrites it; there is no
// queue, so a slow reader simply misses intermediate frames.
type Slot struct {
	mu         sync.Mutex
	buf        []byte
	n          int
	capturedAt time.Time
	clock      clock.Clock

	puts      uint64
	overflows uint64
}

// NewSlot returns an empty slot accepting frames up to maxLen bytes.
func NewSlot(maxLen int, clk clock.Clock) *Slot {
	if maxLen <= 0 {
		maxLen = DefaultMaxFrameLength
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Slot{
		buf:   make([]byte, maxLen),
		clock: clk,
	}
}

// Put copies frame into the slot and stamps it with the current time.
// Frames larger than the slot are dropped and Put returns false.
func (s *Slot) Put(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(frame) > len(s.buf) {
		s.overflows++
		return false
	}
	s.n = copy(s.buf, frame)
	s.capturedAt = s.clock.Now()
	s.puts++
	return true
}

// CopyIfFresh appends the held frame to dst when it was captured less than
// window ago. The second result reports whether a frame was copied.
func (s *Slot) CopyIfFresh(dst []byte, window time.Duration) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturedAt.IsZero() || s.clock.Now().Sub(s.capturedAt) >= window {
		return dst, false
	}
	return append(dst, s.buf[:s.n]...), true
}

// Latest returns a copy of the held frame and its capture time.
func (s *Slot) Latest() ([]byte, time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.capturedAt.IsZero() {
		return nil, time.Time{}, false
	}
	return append([]byte(nil), s.buf[:s.n]...), s.capturedAt, true
}

// Stats returns the number of accepted and oversize frames.
func (s *Slot) Stats() (puts, overflows uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts, s.overflows
}
