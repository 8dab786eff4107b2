package browse

import (
	"errors"
	"sync"

	"Fusor/pkg/cursor"
	"Fusor/pkg/ingest"
	"Fusor/pkg/tlog"
)

// Record is one decoded log entry. Payload is nil when the record has no
// payload bytes.
type Record struct {
	Index uint32
	tlog.IndexRecord
	Payload *tlog.Payload
}

// Session is the consumer interface to a log being browsed, live or not.
// Once a corrupt record is met, every later RecordAt fails with the same
// error.
type Session struct {
	src     Source
	reader  *Reader
	arbiter *cursor.Arbiter

	mu      sync.Mutex
	corrupt error
}

func NewSession(src Source, arbiter *cursor.Arbiter) *Session {
	return &Session{
		src:     src,
		reader:  NewReader(src),
		arbiter: arbiter,
	}
}

func (s *Session) CurrentIndex() uint32 {
	return s.arbiter.CurrentIndex()
}

func (s *Session) CurrentMode() cursor.Mode {
	return s.arbiter.Mode()
}

func (s *Session) Navigate(op cursor.Op) uint32 {
	return s.arbiter.Navigate(op)
}

func (s *Session) IngestionStatus() ingest.State {
	return s.arbiter.IngestionState()
}

// LostConnection reports a failed ingestion once.
func (s *Session) LostConnection() bool {
	return s.arbiter.TakeLostConnectionNotice()
}

func (s *Session) Committed() uint32 {
	return s.src.CommittedCount()
}

// RecordAt reads and decodes the record at index.
func (s *Session) RecordAt(index uint32) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupt != nil {
		return nil, s.corrupt
	}

	rec, raw, err := s.reader.Get(index)
	if err != nil {
		s.latch(err)
		return nil, err
	}
	r := &Record{Index: index, IndexRecord: rec}
	if raw != nil {
		p, err := tlog.DecodePayload(raw)
		if err != nil {
			s.corrupt = err
			return nil, err
		}
		r.Payload = p
	}
	return r, nil
}

// Current is RecordAt(CurrentIndex()).
func (s *Session) Current() (*Record, error) {
	return s.RecordAt(s.CurrentIndex())
}

// Window extracts graph series around the current index. It shares the
// corrupt latch with RecordAt.
func (s *Session) Window(span int, specs []SeriesSpec) (*Graph, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupt != nil {
		return nil, s.corrupt
	}
	g, err := Window(s.src, s.CurrentIndex(), s.CurrentMode(), span, specs)
	s.latch(err)
	return g, err
}

// Summary is Summary over the session source, behind the corrupt latch.
func (s *Session) Summary(start, end uint32, specs []SeriesSpec) ([]Stat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.corrupt != nil {
		return nil, s.corrupt
	}
	stats, err := Summary(s.src, start, end, specs)
	s.latch(err)
	return stats, err
}

func (s *Session) latch(err error) {
	if errors.Is(err, tlog.ErrCorrupt) {
		s.corrupt = err
	}
}

// PhysicalReads exposes the reader counter.
func (s *Session) PhysicalReads() uint64 {
	return s.reader.PhysicalReads()
}
