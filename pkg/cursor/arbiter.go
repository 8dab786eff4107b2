// Package cursor decides which record a consumer looks at and whether the
// view follows the live edge of the log.
package cursor

import (
	"fmt"
	"sync"

	"Fusor/pkg/ingest"
)

type Mode int

const (
	Live Mode = iota
	Playback
)

func (m Mode) String() string {
	if m == Live {
		return "LIVE"
	}
	return "PLAYBACK"
}

// Op is a navigation request.
type Op int

const (
	Back1 Op = iota
	Forward1
	Back10
	Forward10
	Back60
	Forward60
	JumpStart
	JumpEnd
)

var opNames = map[Op]string{
	Back1:     "back",
	Forward1:  "forward",
	Back10:    "back10",
	Forward10: "forward10",
	Back60:    "back60",
	Forward60: "forward60",
	JumpStart: "start",
	JumpEnd:   "end",
}

func (o Op) String() string {
	if s, ok := opNames[o]; ok {
		return s
	}
	return fmt.Sprintf("Op(%d)", int(o))
}

// ParseOp maps a name such as "back10" or "end" to an Op.
func ParseOp(name string) (Op, error) {
	for op, s := range opNames {
		if s == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown navigation %q", name)
}

func (o Op) step() int {
	switch o {
	case Back1:
		return -1
	case Forward1:
		return 1
	case Back10:
		return -10
	case Forward10:
		return 10
	case Back60:
		return -60
	case Forward60:
		return 60
	}
	return 0
}

// Counter reports how many records are committed. tlog.Store satisfies it.
type Counter interface {
	CommittedCount() uint32
}

// Arbiter owns the browsing index and the Live/Playback mode. In Live mode
// the index is always the newest committed record. It implements
// ingest.Listener so the handler can report its state directly.
type Arbiter struct {
	counter Counter

	mu       sync.Mutex
	mode     Mode
	index    uint32
	state    ingest.State
	latched  bool
	notice   bool
	noticeOK bool
}

// New returns an arbiter in Live mode when live is set, otherwise in
// Playback at start. A negative start means the newest record.
func New(counter Counter, live bool, start int) *Arbiter {
	a := &Arbiter{counter: counter, mode: Playback}
	if live {
		a.mode = Live
	}
	if start < 0 {
		if n := counter.CommittedCount(); n > 0 {
			a.index = n - 1
		}
	} else {
		a.index = uint32(start)
	}
	return a
}

// CurrentIndex returns the record being viewed, clamped to the committed
// range. It returns 0 for an empty log.
func (a *Arbiter) CurrentIndex() uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current(a.counter.CommittedCount())
}

func (a *Arbiter) current(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	if a.mode == Live || a.index > n-1 {
		return n - 1
	}
	return a.index
}

func (a *Arbiter) Mode() Mode {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mode
}

// Navigate applies op and returns the new index. Any navigation selects
// Playback, except landing on the newest record while ingestion is Active,
// which resumes Live.
func (a *Arbiter) Navigate(op Op) uint32 {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := a.counter.CommittedCount()
	if n == 0 {
		return 0
	}
	last := int64(n - 1)
	var next int64
	switch op {
	case JumpStart:
		next = 0
	case JumpEnd:
		next = last
	default:
		next = int64(a.current(n)) + int64(op.step())
	}
	if next < 0 {
		next = 0
	}
	if next > last {
		next = last
	}

	a.index = uint32(next)
	if next == last && a.state == ingest.Active && !a.latched {
		a.mode = Live
	} else {
		a.mode = Playback
	}
	return a.index
}

// SetIngestionState mirrors the handler state. Error freezes the view in
// Playback for the rest of the session and raises the lost connection
// notice.
func (a *Arbiter) SetIngestionState(s ingest.State) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.state = s
	if s == ingest.Error && !a.latched {
		a.index = a.current(a.counter.CommittedCount())
		a.mode = Playback
		a.latched = true
		a.notice = true
	}
}

func (a *Arbiter) IngestionState() ingest.State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// TakeLostConnectionNotice returns true exactly once after ingestion has
// failed.
func (a *Arbiter) TakeLostConnectionNotice() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.notice && !a.noticeOK {
		a.noticeOK = true
		return true
	}
	return false
}
