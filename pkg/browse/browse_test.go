package browse

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"Fusor/pkg/cursor"
	"Fusor/pkg/ingest"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/clock"

	"gotest.tools/assert"
)

func newStore(t *testing.T, capacity uint32) (*tlog.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "browse.dat")
	s, err := tlog.Create(path, capacity, &tlog.Options{Clock: clock.Fake(time.Unix(1700000000, 0))})
	assert.Assert(t, err == nil, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

// countingSource counts reads that reach the store.
type countingSource struct {
	*tlog.Store
	reads int
}

func (c *countingSource) Read(slot uint32) (tlog.IndexRecord, []byte, error) {
	c.reads++
	return c.Store.Read(slot)
}

func appendRecord(t *testing.T, s *tlog.Store, tm uint64, v float32, image []byte) {
	t.Helper()
	p := &tlog.Payload{Image: image}
	p.PressureSamples[0] = int16(v)
	rec := tlog.IndexRecord{Time: tm, VoltageMeanKV: v, CurrentMA: v / 2, PressureD2MTorr: 1, Flags: tlog.FlagAllSamples}
	for i := range rec.He3CPM {
		rec.He3CPM[i] = v * 10
	}
	if image != nil {
		rec.Flags |= tlog.FlagImage
	}
	_, err := s.Append(rec, p.Encode())
	assert.Assert(t, err == nil, err)
}

func TestReaderCache(t *testing.T) {
	s, _ := newStore(t, 10)
	appendRecord(t, s, 1, 1, nil)
	appendRecord(t, s, 2, 2, nil)
	src := &countingSource{Store: s}
	r := NewReader(src)

	_, p1, err := r.Get(0)
	assert.Assert(t, err == nil, err)
	_, p2, err := r.Get(0)
	assert.Assert(t, err == nil, err)
	assert.DeepEqual(t, p1, p2)
	assert.Equal(t, src.reads, 1)
	assert.Equal(t, r.PhysicalReads(), uint64(1))

	rec, _, err := r.Get(1)
	assert.Assert(t, err == nil, err)
	assert.Equal(t, rec.Time, uint64(2))
	assert.Equal(t, src.reads, 2)

	r.Get(0)
	assert.Equal(t, src.reads, 3)

	r.Invalidate()
	r.Get(0)
	assert.Equal(t, src.reads, 4)
}

func TestReaderFailureNotCached(t *testing.T) {
	s, _ := newStore(t, 10)
	appendRecord(t, s, 1, 1, nil)
	src := &countingSource{Store: s}
	r := NewReader(src)

	r.Get(0)
	_, _, err := r.Get(5)
	assert.Assert(t, errors.Is(err, tlog.ErrOutOfRange), err)
	_, _, err = r.Get(5)
	assert.Assert(t, errors.Is(err, tlog.ErrOutOfRange), err)
	assert.Equal(t, src.reads, 3)
}

// Capacity 10: one record with payload "A", one with an empty payload,
// then a jump to the end while ingestion is inactive.
func TestSmallLogScenario(t *testing.T) {
	s, _ := newStore(t, 10)
	slot, err := s.Append(tlog.IndexRecord{Time: 1}, []byte("A"))
	assert.Assert(t, err == nil, err)
	assert.Equal(t, slot, uint32(0))
	slot, err = s.Append(tlog.IndexRecord{Time: 2}, nil)
	assert.Assert(t, err == nil, err)
	assert.Equal(t, slot, uint32(1))

	src := &countingSource{Store: s}
	r := NewReader(src)
	_, payload, err := r.Get(0)
	assert.Assert(t, err == nil, err)
	assert.Equal(t, string(payload), "A")
	rec, payload, err := r.Get(1)
	assert.Assert(t, err == nil, err)
	assert.Assert(t, payload == nil, "empty payload is absent")
	assert.Equal(t, rec.PayloadOffset, uint64(tlog.HeapOffset(10)+1))

	a := cursor.New(s, false, 0)
	a.SetIngestionState(ingest.Inactive)
	assert.Equal(t, a.Navigate(cursor.JumpEnd), uint32(1))
	assert.Equal(t, a.Mode(), cursor.Playback)
}

func TestSessionRecordAt(t *testing.T) {
	s, _ := newStore(t, 10)
	appendRecord(t, s, 10, 3, []byte("jpeg"))
	appendRecord(t, s, 11, 4, nil)

	sess := NewSession(s, cursor.New(s, false, 0))
	assert.Equal(t, sess.CurrentIndex(), uint32(0))
	assert.Equal(t, sess.CurrentMode(), cursor.Playback)
	assert.Equal(t, sess.IngestionStatus(), ingest.Inactive)
	assert.Equal(t, sess.Committed(), uint32(2))

	r, err := sess.Current()
	assert.Assert(t, err == nil, err)
	assert.Equal(t, r.Index, uint32(0))
	assert.Equal(t, r.Time, uint64(10))
	assert.Equal(t, string(r.Payload.Image), "jpeg")
	assert.Equal(t, r.Payload.PressureSamples[0], int16(3))

	assert.Equal(t, sess.Navigate(cursor.Forward1), uint32(1))
	r, err = sess.Current()
	assert.Assert(t, err == nil, err)
	assert.Assert(t, r.Payload.Image == nil)

	sess.Current()
	assert.Equal(t, sess.PhysicalReads(), uint64(2))
}

func TestSessionLatchesCorrupt(t *testing.T) {
	s, path := newStore(t, 10)
	appendRecord(t, s, 1, 1, nil)
	appendRecord(t, s, 2, 2, nil)
	rec, err := s.ReadIndex(1)
	assert.Assert(t, err == nil, err)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	assert.Assert(t, err == nil, err)
	_, err = f.WriteAt([]byte{0xde, 0xad}, int64(rec.PayloadOffset)+100)
	assert.Assert(t, err == nil, err)
	f.Close()

	sess := NewSession(s, cursor.New(s, false, 0))
	_, err = sess.RecordAt(0)
	assert.Assert(t, err == nil, err)
	_, err = sess.RecordAt(1)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)
	_, err = sess.RecordAt(0)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), "corrupt state is latched")
}

func TestSessionWindowStopsAfterCorrupt(t *testing.T) {
	s, path := newStore(t, 10)
	fill(t, s, 3)
	rec, err := s.ReadIndex(1)
	assert.Assert(t, err == nil, err)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	assert.Assert(t, err == nil, err)
	_, err = f.WriteAt([]byte{0xde, 0xad}, int64(rec.PayloadOffset)+100)
	assert.Assert(t, err == nil, err)
	f.Close()

	sess := NewSession(s, cursor.New(s, false, 0))
	g, err := sess.Window(3, SummarySeries)
	assert.Assert(t, err == nil, err)
	assert.Assert(t, g != nil)

	sess.Navigate(cursor.Forward1)
	_, err = sess.Current()
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)

	g, err = sess.Window(3, SummarySeries)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)
	assert.Assert(t, g == nil)
	_, err = sess.Summary(0, 2, SummarySeries)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)
}

func TestSessionWindowLatchesCorruptIndex(t *testing.T) {
	s, path := newStore(t, 10)
	fill(t, s, 3)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	assert.Assert(t, err == nil, err)
	_, err = f.WriteAt([]byte{0xff}, tlog.HeaderSize+2*tlog.IndexRecordSize)
	assert.Assert(t, err == nil, err)
	f.Close()

	sess := NewSession(s, cursor.New(s, false, 1))
	_, err = sess.Window(3, SummarySeries)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)
	_, err = sess.RecordAt(0)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), "corrupt state is latched")
}

func TestSessionUndecodablePayloadIsCorrupt(t *testing.T) {
	s, _ := newStore(t, 10)
	_, err := s.Append(tlog.IndexRecord{Time: 1}, []byte("A"))
	assert.Assert(t, err == nil, err)

	sess := NewSession(s, cursor.New(s, false, 0))
	_, err = sess.RecordAt(0)
	assert.Assert(t, errors.Is(err, tlog.ErrCorrupt), err)
}

func TestSessionLostConnection(t *testing.T) {
	s, _ := newStore(t, 10)
	appendRecord(t, s, 1, 1, nil)
	a := cursor.New(s, true, -1)
	sess := NewSession(s, a)
	a.SetIngestionState(ingest.Active)
	assert.Equal(t, sess.CurrentMode(), cursor.Live)

	a.SetIngestionState(ingest.Error)
	assert.Equal(t, sess.CurrentMode(), cursor.Playback)
	assert.Assert(t, sess.LostConnection())
	assert.Assert(t, !sess.LostConnection())
}

func fill(t *testing.T, s *tlog.Store, n int) {
	for i := 0; i < n; i++ {
		appendRecord(t, s, uint64(100+i), float32(i), nil)
	}
}

func TestWindowLive(t *testing.T) {
	s, _ := newStore(t, 200)
	fill(t, s, 100)
	specs := SummarySeries[:2]

	g, err := Window(s, 99, cursor.Live, 60, specs)
	assert.Assert(t, err == nil, err)
	assert.Equal(t, g.Start, int64(40))
	assert.Equal(t, g.End, int64(99))
	assert.Equal(t, g.CursorOffset(), 59)
	assert.Equal(t, g.CursorTime, uint64(199))
	assert.Equal(t, len(g.Series), 2)
	assert.Equal(t, len(g.Series[0].Points), 60)
	assert.Equal(t, g.Series[0].Points[0].Value, float32(40))
	assert.Equal(t, g.Series[0].Current, float32(99))
	assert.Equal(t, g.Series[1].Current, float32(49.5))
}

func TestWindowPlaybackCentred(t *testing.T) {
	s, _ := newStore(t, 200)
	fill(t, s, 100)

	g, err := Window(s, 10, cursor.Playback, 60, SummarySeries[:1])
	assert.Assert(t, err == nil, err)
	assert.Equal(t, g.Start, int64(-20))
	assert.Equal(t, g.End, int64(39))
	assert.Equal(t, g.CursorOffset(), 30)
	pts := g.Series[0].Points
	assert.Equal(t, len(pts), 40)
	assert.Equal(t, pts[0].Index, uint32(0))
	assert.Equal(t, pts[0].Offset, 20)
}

func TestWindowSkipsSentinels(t *testing.T) {
	s, _ := newStore(t, 10)
	appendRecord(t, s, 1, 1, nil)
	p := &tlog.Payload{}
	_, err := s.Append(tlog.IndexRecord{Time: 2, VoltageMeanKV: tlog.ErrorNoValue}, p.Encode())
	assert.Assert(t, err == nil, err)
	appendRecord(t, s, 3, 3, nil)

	g, err := Window(s, 2, cursor.Live, 60, SummarySeries[:1])
	assert.Assert(t, err == nil, err)
	assert.Equal(t, len(g.Series[0].Points), 2)

	stats, err := Summary(s, 0, 2, SummarySeries[:1])
	assert.Assert(t, err == nil, err)
	assert.Equal(t, stats[0].Count, 2)
	assert.Equal(t, stats[0].Errors, 1)
	assert.Equal(t, stats[0].Min, float32(1))
	assert.Equal(t, stats[0].Max, float32(3))
	assert.Equal(t, stats[0].Mean, float64(2))
}

func TestSummaryRange(t *testing.T) {
	s, _ := newStore(t, 10)
	fill(t, s, 3)
	_, err := Summary(s, 0, 3, SummarySeries)
	assert.Assert(t, errors.Is(err, tlog.ErrOutOfRange), err)
	_, err = Window(s, 0, cursor.Live, 0, SummarySeries)
	assert.Assert(t, err != nil)
}

func TestLookupSeries(t *testing.T) {
	specs, err := LookupSeries([]string{"he3", "voltage"})
	assert.Assert(t, err == nil, err)
	assert.Equal(t, specs[0].Name, "he3")
	assert.Equal(t, specs[1].Unit, "kV")
	_, err = LookupSeries([]string{"nope"})
	assert.Assert(t, err != nil)
}
