package tlog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"sync"
	"sync/atomic"

	"Fusor/pkg/util"
	"Fusor/pkg/util/clock"
	"Fusor/pkg/util/log"

	"github.com/juju/fslock"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Options tunes a Store.
type Options struct {
	// SyncWrites fsyncs the record and payload before the commit counter is
	// published, and the header after it.
	SyncWrites bool
	// Clock stamps the log start time on Create.
	Clock clock.Clock
}

func NewDefaultOptions() *Options {
	return &Options{
		SyncWrites: true,
		Clock:      clock.Real(),
	}
}

/*
  Store is a telemetry log file: a fixed header, a preallocated array of
  index records and an append-only payload heap.

  One goroutine appends. Any number of goroutines may Read concurrently with
  the appender. The commit counter is the only value they share; a slot is
  visible to readers only after its record and payload are written.
*/
type Store struct {
	f        *os.File
	path     string
	lock     *fslock.Lock
	readOnly bool
	opts     *Options

	capacity  uint32
	startTime uint64
	committed atomic.Uint32
	closed    atomic.Bool

	// wmu serializes appends; heapTail is only touched under it.
	wmu      sync.Mutex
	heapTail int64
}

// Create makes a new log at path able to hold capacity records. It fails
// with ErrAlreadyExists if the path exists.
func Create(path string, capacity uint32, opts *Options) (*Store, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if capacity == 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d not in [1, %d]", ErrInvalidFormat, capacity, MaxCapacity)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0666)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("%w: %s", ErrAlreadyExists, path)
		}
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	lock := fslock.New(lockName(path))
	if err := lock.TryLock(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %s: %v", ErrLocked, path, err)
	}

	s := &Store{
		f:         f,
		path:      path,
		lock:      lock,
		opts:      opts,
		capacity:  capacity,
		startTime: uint64(opts.Clock.Now().Unix()),
		heapTail:  HeapOffset(capacity),
	}
	if err := s.init(); err != nil {
		f.Close()
		lock.Unlock()
		os.Remove(path)
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}
	log.Info("created telemetry log", "path", path, "capacity", capacity, "heapOffset", s.heapTail)
	return s, nil
}

func (s *Store) init() error {
	h := header{
		magic:     MagicHeader,
		startTime: s.startTime,
		capacity:  s.capacity,
	}
	if _, err := s.f.WriteAt(h.encode(), 0); err != nil {
		return err
	}
	if err := s.f.Truncate(HeapOffset(s.capacity)); err != nil {
		return err
	}
	return s.f.Sync()
}

// Open maps an existing log for browsing. The commit counter is read once;
// call Refresh to pick up records committed by a writer in another process.
func Open(path string, opts *Options) (*Store, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIO, err)
	}

	s := &Store{
		f:        f,
		path:     path,
		readOnly: true,
		opts:     opts,
	}
	if err := s.load(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	buf := make([]byte, HeaderSize)
	if _, err := s.f.ReadAt(buf, 0); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: short header", ErrInvalidFormat)
		}
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	var h header
	h.decode(buf)
	if h.magic != MagicHeader {
		return fmt.Errorf("%w: header magic 0x%x", ErrInvalidFormat, h.magic)
	}
	if h.capacity == 0 || h.capacity > MaxCapacity {
		return fmt.Errorf("%w: capacity %d", ErrInvalidFormat, h.capacity)
	}
	if h.committed > h.capacity {
		return fmt.Errorf("%w: committed count %d exceeds capacity %d", ErrInvalidFormat, h.committed, h.capacity)
	}
	fi, err := s.f.Stat()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIO, err)
	}
	if fi.Size() < HeapOffset(h.capacity) {
		return fmt.Errorf("%w: file size %d below heap offset %d", ErrInvalidFormat, fi.Size(), HeapOffset(h.capacity))
	}

	s.capacity = h.capacity
	s.startTime = h.startTime
	s.committed.Store(h.committed)
	s.heapTail = HeapOffset(h.capacity)
	if h.committed > 0 {
		// A damaged tail is left for Verify to report.
		if last, err := s.readIndex(h.committed - 1); err == nil {
			s.heapTail = int64(last.PayloadOffset) + int64(last.PayloadLength)
		} else {
			log.Warn("cannot seed heap tail", "path", s.path, "err", err)
		}
	}
	return nil
}

// Append stores rec and payload in the next free slot and returns the slot
// index. The payload offset, length and checksum of rec are filled in here.
func (s *Store) Append(rec IndexRecord, payload []byte) (uint32, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}
	if s.closed.Load() {
		return 0, ErrClosed
	}
	if uint64(len(payload)) > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	slot := s.committed.Load()
	if slot >= s.capacity {
		return 0, ErrLogFull
	}

	rec.Magic = MagicIndex
	rec.PayloadOffset = uint64(s.heapTail)
	rec.PayloadLength = uint32(len(payload))
	rec.PayloadCRC = crc32.Checksum(payload, castagnoli)

	if len(payload) > 0 {
		if _, err := s.f.WriteAt(payload, s.heapTail); err != nil {
			return 0, fmt.Errorf("%w: write payload: %v", ErrIO, err)
		}
	}
	if _, err := s.f.WriteAt(rec.Encode(), slotOffset(slot)); err != nil {
		return 0, fmt.Errorf("%w: write index record: %v", ErrIO, err)
	}
	if s.opts.SyncWrites {
		if err := s.f.Sync(); err != nil {
			return 0, fmt.Errorf("%w: sync: %v", ErrIO, err)
		}
	}

	var cnt [4]byte
	binary.LittleEndian.PutUint32(cnt[:], slot+1)
	if _, err := s.f.WriteAt(cnt[:], hdrOffCommitted); err != nil {
		return 0, fmt.Errorf("%w: write commit count: %v", ErrIO, err)
	}
	if s.opts.SyncWrites {
		if err := s.f.Sync(); err != nil {
			return 0, fmt.Errorf("%w: sync commit count: %v", ErrIO, err)
		}
	}

	s.heapTail += int64(len(payload))
	util.Assert(s.committed.CompareAndSwap(slot, slot+1))
	return slot, nil
}

// Read returns the index record in slot and its payload bytes. A nil
// payload with a nil error means the record has no payload.
func (s *Store) Read(slot uint32) (IndexRecord, []byte, error) {
	rec, err := s.ReadIndex(slot)
	if err != nil {
		return rec, nil, err
	}
	if !rec.HasPayload() {
		return rec, nil, nil
	}

	payload := make([]byte, rec.PayloadLength)
	n, err := s.f.ReadAt(payload, int64(rec.PayloadOffset))
	if n != len(payload) {
		if err == nil || errors.Is(err, io.EOF) {
			return rec, nil, fmt.Errorf("%w: slot %d payload truncated at %d of %d bytes", ErrCorrupt, slot, n, len(payload))
		}
		return rec, nil, fmt.Errorf("%w: read payload: %v", ErrIO, err)
	}
	if crc := crc32.Checksum(payload, castagnoli); crc != rec.PayloadCRC {
		return rec, nil, fmt.Errorf("%w: slot %d payload checksum 0x%x, want 0x%x", ErrCorrupt, slot, crc, rec.PayloadCRC)
	}
	return rec, payload, nil
}

// ReadIndex returns only the index record in slot.
func (s *Store) ReadIndex(slot uint32) (IndexRecord, error) {
	if s.closed.Load() {
		return IndexRecord{}, ErrClosed
	}
	if n := s.committed.Load(); slot >= n {
		return IndexRecord{}, fmt.Errorf("%w: %d not in [0, %d)", ErrOutOfRange, slot, n)
	}
	return s.readIndex(slot)
}

func (s *Store) readIndex(slot uint32) (IndexRecord, error) {
	buf := make([]byte, IndexRecordSize)
	if _, err := s.f.ReadAt(buf, slotOffset(slot)); err != nil {
		if errors.Is(err, io.EOF) {
			return IndexRecord{}, fmt.Errorf("%w: slot %d truncated", ErrCorrupt, slot)
		}
		return IndexRecord{}, fmt.Errorf("%w: read index record: %v", ErrIO, err)
	}
	var rec IndexRecord
	rec.Unmarshal(buf)
	if rec.Magic != MagicIndex {
		return IndexRecord{}, fmt.Errorf("%w: slot %d magic 0x%x", ErrCorrupt, slot, rec.Magic)
	}
	return rec, nil
}

// Refresh re-reads the commit counter from disk for a read-only store whose
// file is being appended by another process. It never moves the counter
// backwards.
func (s *Store) Refresh() (uint32, error) {
	if !s.readOnly {
		return s.committed.Load(), nil
	}
	var cnt [4]byte
	if _, err := s.f.ReadAt(cnt[:], hdrOffCommitted); err != nil {
		return s.committed.Load(), fmt.Errorf("%w: %v", ErrIO, err)
	}
	n := binary.LittleEndian.Uint32(cnt[:])
	if n > s.capacity {
		return s.committed.Load(), fmt.Errorf("%w: committed count %d exceeds capacity %d", ErrInvalidFormat, n, s.capacity)
	}
	for {
		cur := s.committed.Load()
		if n <= cur || s.committed.CompareAndSwap(cur, n) {
			return s.committed.Load(), nil
		}
	}
}

// WriterActive reports whether some process holds the writer lock on the
// log, i.e. the file is still being recorded. A missing lock file means no
// writer and is not created.
func (s *Store) WriterActive() bool {
	if !s.readOnly {
		return true
	}
	if _, err := os.Stat(lockName(s.path)); errors.Is(err, os.ErrNotExist) {
		return false
	}
	l := fslock.New(lockName(s.path))
	if err := l.TryLock(); err != nil {
		return true
	}
	l.Unlock()
	return false
}

// CommittedCount returns the number of records visible to readers.
func (s *Store) CommittedCount() uint32 {
	return s.committed.Load()
}

func (s *Store) Capacity() uint32 {
	return s.capacity
}

// Full reports whether an Append would fail with ErrLogFull.
func (s *Store) Full() bool {
	return s.committed.Load() >= s.capacity
}

// StartTime is the unix time the log was created.
func (s *Store) StartTime() uint64 {
	return s.startTime
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) ReadOnly() bool {
	return s.readOnly
}

// HeapTail returns the file offset the next payload will be written at.
func (s *Store) HeapTail() int64 {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.heapTail
}

func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()

	var err error
	if !s.readOnly {
		err = s.f.Sync()
	}
	if cerr := s.f.Close(); err == nil {
		err = cerr
	}
	if s.lock != nil {
		if uerr := s.lock.Unlock(); err == nil {
			err = uerr
		}
	}
	return err
}

func lockName(path string) string {
	return path + ".lock"
}
