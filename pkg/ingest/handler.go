package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"Fusor/pkg/capture"
	"Fusor/pkg/tlog"
	"Fusor/pkg/util/log"
)

var (
	// ErrLink covers every failure of the server stream: short reads,
	// timeouts and framing violations. None of them are retried.
	ErrLink = errors.New("ingest: link error")
	// ErrConfig is returned by New for an unusable configuration.
	ErrConfig = errors.New("ingest: invalid config")
)

const (
	DefaultIdleTimeout     = 5 * time.Second
	DefaultFreshnessWindow = time.Second
)

// Conn is the server stream. net.Conn satisfies it.
type Conn interface {
	io.Reader
	SetReadDeadline(t time.Time) error
}

// Appender is the part of tlog.Store the handler writes through.
type Appender interface {
	Append(rec tlog.IndexRecord, payload []byte) (uint32, error)
	Full() bool
}

type Config struct {
	MaxPayloadLength int
	IdleTimeout      time.Duration
	FreshnessWindow  time.Duration
	// OnCommit, when set, is called on the handler goroutine after every
	// successful append. payload is reused once it returns.
	OnCommit func(slot uint32, rec tlog.IndexRecord, payload []byte)
}

func NewDefaultConfig() Config {
	return Config{
		MaxPayloadLength: tlog.DefaultMaxPayloadLength,
		IdleTimeout:      DefaultIdleTimeout,
		FreshnessWindow:  DefaultFreshnessWindow,
	}
}

// Stats counts what the handler has done so far.
type Stats struct {
	Records         uint64
	Merged          uint64
	Stripped        uint64
	Discontinuities uint64
	Bytes           uint64
}

/*
  Handler reads framed telemetry messages from a server stream and appends
  them to the log.

  Each message is one index record frame followed by exactly
  PayloadLength payload bytes. Any short read, timeout or bad magic ends
  the handler in the Error state; there is no reconnection.

  When a capture slot is given, a fresh local frame is merged into payloads
  that arrive without an image. Without a slot, images from the server are
  stripped.
*/
type Handler struct {
	conn     Conn
	store    Appender
	slot     *capture.Slot
	cfg      Config
	listener Listener

	state atomic.Int32
	errMu sync.Mutex
	err   error
	done  chan struct{}
	first chan struct{}

	records         atomic.Uint64
	merged          atomic.Uint64
	stripped        atomic.Uint64
	discontinuities atomic.Uint64
	bytes           atomic.Uint64

	lastTime uint64
	haveLast bool
	scratch  []byte
}

// New validates its arguments, arms the idle timeout and moves the
// handler to Active. slot may be nil to disable local capture; listener
// may be nil.
func New(conn Conn, store Appender, slot *capture.Slot, cfg Config, listener Listener) (*Handler, error) {
	if conn == nil {
		return nil, fmt.Errorf("%w: nil connection", ErrConfig)
	}
	if store == nil {
		return nil, fmt.Errorf("%w: nil store", ErrConfig)
	}
	if cfg.MaxPayloadLength < tlog.PayloadFixedSize {
		return nil, fmt.Errorf("%w: max payload length %d below fixed payload size %d", ErrConfig, cfg.MaxPayloadLength, tlog.PayloadFixedSize)
	}
	if cfg.IdleTimeout <= 0 || cfg.FreshnessWindow <= 0 {
		return nil, fmt.Errorf("%w: idle timeout and freshness window must be positive", ErrConfig)
	}
	if listener == nil {
		listener = nopListener{}
	}
	h := &Handler{
		conn:     conn,
		store:    store,
		slot:     slot,
		cfg:      cfg,
		listener: listener,
		done:     make(chan struct{}),
		first:    make(chan struct{}),
	}
	if err := conn.SetReadDeadline(time.Now().Add(cfg.IdleTimeout)); err != nil {
		return nil, fmt.Errorf("%w: set read deadline: %v", ErrLink, err)
	}
	h.setState(Active)
	return h, nil
}

// Run reads and appends messages until the stream fails, the log fills or
// ctx is cancelled. Cancellation leaves the handler Inactive; every other
// exit leaves it in Error. The returned error is also available from Err.
func (h *Handler) Run(ctx context.Context) error {
	defer close(h.done)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// unblock a pending read
			h.conn.SetReadDeadline(time.Unix(1, 0))
		case <-stop:
		}
	}()

	hdr := make([]byte, tlog.IndexRecordSize)
	buf := make([]byte, 0, h.cfg.MaxPayloadLength)
	for {
		if ctx.Err() != nil {
			return h.stop(ctx.Err())
		}
		if h.store.Full() {
			return h.fail(tlog.ErrLogFull)
		}

		rec, payload, err := h.readMessage(ctx, hdr, buf[:0])
		if err != nil {
			if ctx.Err() != nil {
				return h.stop(ctx.Err())
			}
			return h.fail(err)
		}
		rec, payload = h.adjustImage(rec, payload)

		if h.haveLast && rec.Time != h.lastTime+1 {
			h.discontinuities.Add(1)
			log.Warn("record time discontinuity", "last", h.lastTime, "time", rec.Time, "delta", int64(rec.Time)-int64(h.lastTime))
		}
		h.lastTime, h.haveLast = rec.Time, true

		slot, err := h.store.Append(rec, payload)
		if err != nil {
			return h.fail(err)
		}
		if h.records.Add(1) == 1 {
			close(h.first)
		}
		h.bytes.Add(uint64(len(payload)))
		if h.cfg.OnCommit != nil {
			h.cfg.OnCommit(slot, rec, payload)
		}
	}
}

func (h *Handler) readMessage(ctx context.Context, hdr, buf []byte) (tlog.IndexRecord, []byte, error) {
	if err := h.readFull(ctx, hdr); err != nil {
		return tlog.IndexRecord{}, nil, fmt.Errorf("%w: read index record: %v", ErrLink, err)
	}
	rec, _ := tlog.DecodeIndexRecord(hdr)
	if rec.Magic != tlog.MagicIndex {
		return rec, nil, fmt.Errorf("%w: index record magic 0x%x", ErrLink, rec.Magic)
	}
	n := int(rec.PayloadLength)
	if n > h.cfg.MaxPayloadLength {
		return rec, nil, fmt.Errorf("%w: payload length %d exceeds maximum %d", ErrLink, n, h.cfg.MaxPayloadLength)
	}
	if n < tlog.PayloadFixedSize {
		return rec, nil, fmt.Errorf("%w: payload length %d below fixed size %d", ErrLink, n, tlog.PayloadFixedSize)
	}

	payload := buf[:n]
	if err := h.readFull(ctx, payload); err != nil {
		return rec, nil, fmt.Errorf("%w: read payload: %v", ErrLink, err)
	}
	if _, err := tlog.ValidatePayload(payload); err != nil {
		return rec, nil, fmt.Errorf("%w: %v", ErrLink, err)
	}
	return rec, payload, nil
}

// readFull re-arms the idle deadline before reading. A cancel that landed
// before the re-arm would have its past deadline overwritten, so ctx is
// checked after it.
func (h *Handler) readFull(ctx context.Context, b []byte) error {
	if err := h.conn.SetReadDeadline(time.Now().Add(h.cfg.IdleTimeout)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := io.ReadFull(h.conn, b)
	return err
}

// adjustImage merges a fresh capture frame or strips the server image.
func (h *Handler) adjustImage(rec tlog.IndexRecord, payload []byte) (tlog.IndexRecord, []byte) {
	if h.slot == nil {
		if rec.Flags.Has(tlog.FlagImage) || len(payload) > tlog.PayloadFixedSize {
			payload = tlog.WithoutImage(payload)
			rec.Flags &^= tlog.FlagImage
			rec.PayloadLength = uint32(len(payload))
			h.stripped.Add(1)
			log.V(2).InfoS("stripped server image", "time", rec.Time)
		}
		return rec, payload
	}
	if rec.Flags.Has(tlog.FlagImage) {
		return rec, payload
	}

	image, ok := h.slot.CopyIfFresh(h.scratch[:0], h.cfg.FreshnessWindow)
	if !ok {
		return rec, payload
	}
	h.scratch = image
	if tlog.PayloadFixedSize+len(image) > h.cfg.MaxPayloadLength {
		log.V(2).InfoS("capture frame too large to merge", "bytes", len(image))
		return rec, payload
	}
	payload = tlog.WithImage(payload, image)
	rec.Flags |= tlog.FlagImage
	rec.PayloadLength = uint32(len(payload))
	h.merged.Add(1)
	log.V(2).InfoS("merged capture image", "time", rec.Time, "bytes", len(payload)-tlog.PayloadFixedSize)
	return rec, payload
}

func (h *Handler) fail(err error) error {
	h.setErr(err)
	h.setState(Error)
	log.Error(err, "ingestion terminating", "records", h.records.Load())
	return err
}

func (h *Handler) stop(err error) error {
	h.setErr(err)
	h.setState(Inactive)
	log.Info("ingestion stopped", "records", h.records.Load())
	return err
}

func (h *Handler) setErr(err error) {
	h.errMu.Lock()
	h.err = err
	h.errMu.Unlock()
}

func (h *Handler) setState(s State) {
	h.state.Store(int32(s))
	h.listener.SetIngestionState(s)
}

func (h *Handler) State() State {
	return State(h.state.Load())
}

// Err returns the error that ended Run, or nil while it is running.
func (h *Handler) Err() error {
	h.errMu.Lock()
	defer h.errMu.Unlock()
	return h.err
}

// Done is closed when Run returns.
func (h *Handler) Done() <-chan struct{} {
	return h.done
}

// FirstCommit is closed after the first record is appended.
func (h *Handler) FirstCommit() <-chan struct{} {
	return h.first
}

// WaitFirstCommit blocks until the first record is appended, Run ends or
// timeout elapses.
func (h *Handler) WaitFirstCommit(timeout time.Duration) error {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-h.first:
		return nil
	case <-h.done:
		if err := h.Err(); err != nil {
			return err
		}
		return fmt.Errorf("%w: stream ended before first record", ErrLink)
	case <-t.C:
		return fmt.Errorf("%w: no data from server within %v", ErrLink, timeout)
	}
}

func (h *Handler) Stats() Stats {
	return Stats{
		Records:         h.records.Load(),
		Merged:          h.merged.Load(),
		Stripped:        h.stripped.Load(),
		Discontinuities: h.discontinuities.Load(),
		Bytes:           h.bytes.Load(),
	}
}
