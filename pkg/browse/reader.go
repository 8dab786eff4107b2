// Package browse is the read side used by consumers: a cached random
// access reader and a session combining it with the cursor arbiter.
package browse

import (
	"sync"

	"Fusor/pkg/tlog"
)

// Source is the read path of a log. tlog.Store satisfies it.
type Source interface {
	Read(slot uint32) (tlog.IndexRecord, []byte, error)
	ReadIndex(slot uint32) (tlog.IndexRecord, error)
	CommittedCount() uint32
}

// Reader remembers the last record it fetched. Consumers redraw the same
// index many times a second; only a change of index reaches the file.
type Reader struct {
	src Source

	mu      sync.Mutex
	valid   bool
	index   uint32
	rec     tlog.IndexRecord
	payload []byte
	reads   uint64
}

func NewReader(src Source) *Reader {
	return &Reader{src: src}
}

// Get returns the record at index and its payload. A nil payload with a
// nil error means the record has none. Failed reads are not cached.
func (r *Reader) Get(index uint32) (tlog.IndexRecord, []byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.valid && r.index == index {
		return r.rec, r.payload, nil
	}

	r.reads++
	rec, payload, err := r.src.Read(index)
	if err != nil {
		return rec, nil, err
	}
	r.valid, r.index, r.rec, r.payload = true, index, rec, payload
	return rec, payload, nil
}

// PhysicalReads counts reads that went to the source.
func (r *Reader) PhysicalReads() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.reads
}

// Invalidate drops the cached entry.
func (r *Reader) Invalidate() {
	r.mu.Lock()
	r.valid = false
	r.payload = nil
	r.mu.Unlock()
}
