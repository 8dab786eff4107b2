package capture

import (
	"context"
	"sync/atomic"
	"time"

	"Fusor/pkg/util/clock"
	"Fusor/pkg/util/log"
)

// Source is a frame producer such as a camera driver. Grab blocks until a
// frame is available; the frame is handed back with Release once copied.
type Source interface {
	Grab() ([]byte, error)
	Release(frame []byte)
}

const (
	DefaultRetryDelay = 100 * time.Millisecond
	DefaultGrace      = 5 * time.Second
)

// Loop copies frames from a Source into a Slot until it is stopped.
type Loop struct {
	src        Source
	slot       *Slot
	clock      clock.Clock
	retryDelay time.Duration

	terminating atomic.Bool
	started     atomic.Bool
	running     atomic.Bool
	done        chan struct{}

	grabErrors atomic.Uint64
}

func NewLoop(src Source, slot *Slot, clk clock.Clock) *Loop {
	if clk == nil {
		clk = clock.Real()
	}
	return &Loop{
		src:        src,
		slot:       slot,
		clock:      clk,
		retryDelay: DefaultRetryDelay,
		done:       make(chan struct{}),
	}
}

// SetRetryDelay changes the pause after a failed Grab.
func (l *Loop) SetRetryDelay(d time.Duration) {
	l.retryDelay = d
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	l.started.Store(true)
	l.running.Store(true)
	go l.Run(ctx)
}

// Run acquires frames until ctx is done or Stop is called. The termination
// flag is checked once per iteration.
func (l *Loop) Run(ctx context.Context) {
	l.started.Store(true)
	l.running.Store(true)
	defer func() {
		l.running.Store(false)
		close(l.done)
		log.Info("capture loop exiting")
	}()
	log.Info("capture loop starting")

	for !l.terminating.Load() && ctx.Err() == nil {
		frame, err := l.src.Grab()
		if err != nil {
			if l.grabErrors.Add(1) == 1 {
				log.Warn("capture grab failed, retrying", "err", err, "delay", l.retryDelay)
			}
			select {
			case <-ctx.Done():
			case <-l.clock.After(l.retryDelay):
			}
			continue
		}
		if !l.slot.Put(frame) {
			log.V(2).InfoS("capture frame dropped, too large", "bytes", len(frame))
		}
		l.src.Release(frame)
	}
}

// Stop raises the termination flag.
func (l *Loop) Stop() {
	l.terminating.Store(true)
}

// Wait blocks until the loop has exited or grace elapses, and reports
// whether it exited.
func (l *Loop) Wait(grace time.Duration) bool {
	if !l.started.Load() {
		return true
	}
	select {
	case <-l.done:
		return true
	case <-l.clock.After(grace):
		return false
	}
}

func (l *Loop) Running() bool {
	return l.running.Load()
}

// GrabErrors counts failed Grab calls.
func (l *Loop) GrabErrors() uint64 {
	return l.grabErrors.Load()
}
