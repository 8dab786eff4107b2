package tlog

import (
	"fmt"
	"hash/crc32"
)

// Report summarizes a sanity scan of the committed records.
type Report struct {
	Committed       uint32
	HeapStart       int64
	HeapEnd         int64
	FileSize        int64
	FirstTime       uint64
	LastTime        uint64
	Discontinuities int
	PayloadBytes    int64
	Images          int
}

// Verify walks every committed record checking magic, heap contiguity and
// that the heap is covered by the file. With checkPayload set, payload
// checksums are verified too. The first violation is returned as
// ErrCorrupt; time discontinuities are only counted.
func (s *Store) Verify(checkPayload bool) (*Report, error) {
	n := s.committed.Load()
	fi, err := s.f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	r := &Report{
		Committed: n,
		HeapStart: HeapOffset(s.capacity),
		HeapEnd:   HeapOffset(s.capacity),
		FileSize:  fi.Size(),
	}

	var prev IndexRecord
	for i := uint32(0); i < n; i++ {
		rec, err := s.readIndex(i)
		if err != nil {
			return r, err
		}
		if int64(rec.PayloadOffset) != r.HeapEnd {
			return r, fmt.Errorf("%w: slot %d payload offset %d, want %d", ErrCorrupt, i, rec.PayloadOffset, r.HeapEnd)
		}
		r.HeapEnd += int64(rec.PayloadLength)
		if r.HeapEnd > r.FileSize {
			return r, fmt.Errorf("%w: slot %d payload ends at %d past file size %d", ErrCorrupt, i, r.HeapEnd, r.FileSize)
		}
		if checkPayload && rec.HasPayload() {
			buf := make([]byte, rec.PayloadLength)
			if _, err := s.f.ReadAt(buf, int64(rec.PayloadOffset)); err != nil {
				return r, fmt.Errorf("%w: slot %d: %v", ErrIO, i, err)
			}
			if crc32.Checksum(buf, castagnoli) != rec.PayloadCRC {
				return r, fmt.Errorf("%w: slot %d payload checksum mismatch", ErrCorrupt, i)
			}
		}

		if i == 0 {
			r.FirstTime = rec.Time
		} else if rec.Time != prev.Time+1 {
			r.Discontinuities++
		}
		r.LastTime = rec.Time
		r.PayloadBytes += int64(rec.PayloadLength)
		if rec.Flags.Has(FlagImage) {
			r.Images++
		}
		prev = rec
	}
	return r, nil
}
