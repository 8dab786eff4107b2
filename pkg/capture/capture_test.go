package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"Fusor/pkg/util/clock"

	"gotest.tools/assert"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSlotLatestWins(t *testing.T) {
	c := clock.Fake(epoch)
	s := NewSlot(16, c)

	_, _, ok := s.Latest()
	assert.Assert(t, !ok)

	assert.Assert(t, s.Put([]byte("first")))
	c.Advance(10 * time.Millisecond)
	assert.Assert(t, s.Put([]byte("second")))

	frame, at, ok := s.Latest()
	assert.Assert(t, ok)
	assert.Equal(t, string(frame), "second")
	assert.Assert(t, at.Equal(epoch.Add(10*time.Millisecond)))

	// a shorter frame must not leave bytes of the previous one behind
	assert.Assert(t, s.Put([]byte("x")))
	frame, _, _ = s.Latest()
	assert.Equal(t, string(frame), "x")
}

func TestSlotOverflowDropped(t *testing.T) {
	s := NewSlot(4, clock.Fake(epoch))
	assert.Assert(t, s.Put([]byte("abcd")))
	assert.Assert(t, !s.Put([]byte("abcde")))

	frame, _, _ := s.Latest()
	assert.Equal(t, string(frame), "abcd")
	puts, overflows := s.Stats()
	assert.Equal(t, puts, uint64(1))
	assert.Equal(t, overflows, uint64(1))
}

func TestSlotFreshnessWindow(t *testing.T) {
	c := clock.Fake(epoch)
	s := NewSlot(0, c)

	_, ok := s.CopyIfFresh(nil, time.Second)
	assert.Assert(t, !ok, "empty slot is never fresh")

	s.Put([]byte("img"))
	c.Advance(999 * time.Millisecond)
	dst, ok := s.CopyIfFresh([]byte("head:"), time.Second)
	assert.Assert(t, ok)
	assert.Equal(t, string(dst), "head:img")

	c.Advance(time.Millisecond)
	dst, ok = s.CopyIfFresh([]byte("head:"), time.Second)
	assert.Assert(t, !ok)
	assert.Equal(t, string(dst), "head:")
}

type funcSource struct {
	grab     func() ([]byte, error)
	released atomic.Int32
}

func (f *funcSource) Grab() ([]byte, error) { return f.grab() }
func (f *funcSource) Release([]byte)        { f.released.Add(1) }

func TestLoopCopiesFramesUntilStopped(t *testing.T) {
	var n atomic.Int32
	src := &funcSource{grab: func() ([]byte, error) {
		n.Add(1)
		time.Sleep(time.Millisecond)
		return []byte("frame"), nil
	}}
	slot := NewSlot(0, nil)
	l := NewLoop(src, slot, nil)
	l.Start(context.Background())

	for {
		if _, _, ok := slot.Latest(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	l.Stop()
	assert.Assert(t, l.Wait(5*time.Second))
	assert.Assert(t, !l.Running())
	assert.Assert(t, src.released.Load() >= 1)
}

func TestLoopStopsOnCancel(t *testing.T) {
	src := &funcSource{grab: func() ([]byte, error) {
		time.Sleep(time.Millisecond)
		return []byte("f"), nil
	}}
	l := NewLoop(src, NewSlot(0, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	l.Start(ctx)
	cancel()
	assert.Assert(t, l.Wait(5*time.Second))
}

func TestLoopRetriesAfterGrabError(t *testing.T) {
	c := clock.Fake(epoch)
	var calls atomic.Int32
	src := &funcSource{grab: func() ([]byte, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("camera busy")
		}
		return []byte("ok"), nil
	}}
	slot := NewSlot(0, c)
	l := NewLoop(src, slot, c)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx)

	c.WaitForTimers(1)
	_, _, ok := slot.Latest()
	assert.Assert(t, !ok, "no frame before the retry delay")
	c.Advance(DefaultRetryDelay)

	for {
		if _, _, ok := slot.Latest(); ok {
			break
		}
		time.Sleep(time.Millisecond)
	}
	l.Stop()
	cancel()
	// Wait uses the fake clock; the loop exits on its own without an advance.
	done := make(chan bool)
	go func() { done <- l.Wait(DefaultGrace) }()
	assert.Assert(t, <-done)
	assert.Equal(t, l.GrabErrors(), uint64(1))
}

func TestLoopWaitGraceExpires(t *testing.T) {
	c := clock.Fake(epoch)
	block := make(chan struct{})
	src := &funcSource{grab: func() ([]byte, error) {
		<-block
		return []byte("late"), nil
	}}
	l := NewLoop(src, NewSlot(0, c), c)
	l.Start(context.Background())
	l.Stop()

	done := make(chan bool)
	go func() { done <- l.Wait(DefaultGrace) }()
	c.WaitForTimers(1)
	c.Advance(DefaultGrace)
	assert.Assert(t, !<-done, "grab is still blocked")

	close(block)
	for l.Running() {
		time.Sleep(time.Millisecond)
	}
}

func TestDirSourceCycles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.jpg", "a.jpg", "c.txt"} {
		assert.Assert(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0644) == nil)
	}
	src, err := NewDirSource(dir, "*.jpg", 0, nil)
	assert.Assert(t, err == nil, err)
	assert.Equal(t, src.Len(), 2)

	var got []string
	for i := 0; i < 3; i++ {
		b, err := src.Grab()
		assert.Assert(t, err == nil, err)
		got = append(got, string(b))
	}
	assert.DeepEqual(t, got, []string{"a.jpg", "b.jpg", "a.jpg"})
}

func TestDirSourcePacing(t *testing.T) {
	dir := t.TempDir()
	assert.Assert(t, os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("a"), 0644) == nil)
	c := clock.Fake(epoch)
	src, err := NewDirSource(dir, "*.jpg", 10, c)
	assert.Assert(t, err == nil, err)

	_, err = src.Grab()
	assert.Assert(t, err == nil, err)

	done := make(chan struct{})
	go func() {
		src.Grab()
		close(done)
	}()
	c.WaitForTimers(1)
	c.Advance(100 * time.Millisecond)
	<-done
}

func TestDirSourceEmpty(t *testing.T) {
	_, err := NewDirSource(t.TempDir(), "*.jpg", 0, nil)
	assert.Assert(t, errors.Is(err, ErrNoFrames), err)
}
