// Package export writes a range of log records as a self-describing CBOR
// stream, optionally compressed, and reads such streams back.
//
// A stream is the magic "FUSORX", one compression byte and then a CBOR
// sequence, compressed as a whole: a Header followed by one Entry per
// record.
package export

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"Fusor/pkg/tlog"
	"Fusor/pkg/util/log"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

const (
	magic   = "FUSORX"
	Version = 1
)

var ErrFormat = errors.New("export: invalid stream")

type Compression uint8

const (
	None Compression = iota
	LZ4
	Zstd
)

func (c Compression) String() string {
	switch c {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	}
	return None, fmt.Errorf("unknown compression %q", name)
}

// Header describes the exported range.
type Header struct {
	Version   int    `cbor:"1,keyasint"`
	Source    string `cbor:"2,keyasint,omitempty"`
	StartTime uint64 `cbor:"3,keyasint"`
	First     uint32 `cbor:"4,keyasint"`
	Count     uint32 `cbor:"5,keyasint"`
}

// Entry is one exported record. Payload is empty for records without one.
type Entry struct {
	Index   uint32           `cbor:"1,keyasint"`
	Record  tlog.IndexRecord `cbor:"2,keyasint"`
	Payload []byte           `cbor:"3,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("export: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("export: cbor decoder: " + err.Error())
	}
}

// Writer encodes entries into w. Close must be called to flush the
// compressor; it does not close w.
type Writer struct {
	bw   *bufio.Writer
	comp io.WriteCloser
	enc  *cbor.Encoder
	n    int
}

func NewWriter(w io.Writer, c Compression, h Header) (*Writer, error) {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return nil, err
	}
	if err := bw.WriteByte(byte(c)); err != nil {
		return nil, err
	}

	wr := &Writer{bw: bw}
	var out io.Writer = bw
	switch c {
	case None:
	case LZ4:
		wr.comp = lz4.NewWriter(bw)
		out = wr.comp
	case Zstd:
		zw, err := zstd.NewWriter(bw, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		wr.comp = zw
		out = zw
	default:
		return nil, fmt.Errorf("unknown compression %d", c)
	}
	wr.enc = encMode.NewEncoder(out)

	if h.Version == 0 {
		h.Version = Version
	}
	if err := wr.enc.Encode(&h); err != nil {
		return nil, err
	}
	return wr, nil
}

func (w *Writer) Write(e *Entry) error {
	if err := w.enc.Encode(e); err != nil {
		return err
	}
	w.n++
	return nil
}

// Count is the number of entries written.
func (w *Writer) Count() int {
	return w.n
}

func (w *Writer) Close() error {
	if w.comp != nil {
		if err := w.comp.Close(); err != nil {
			return err
		}
	}
	return w.bw.Flush()
}

// Reader decodes a stream written by Writer.
type Reader struct {
	header Header
	comp   Compression
	zr     *zstd.Decoder
	dec    *cbor.Decoder
}

func NewReader(r io.Reader) (*Reader, error) {
	br := bufio.NewReader(r)
	pre := make([]byte, len(magic)+1)
	if _, err := io.ReadFull(br, pre); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if string(pre[:len(magic)]) != magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrFormat, pre[:len(magic)])
	}

	rd := &Reader{comp: Compression(pre[len(magic)])}
	var in io.Reader = br
	switch rd.comp {
	case None:
	case LZ4:
		in = lz4.NewReader(br)
	case Zstd:
		zr, err := zstd.NewReader(br)
		if err != nil {
			return nil, err
		}
		rd.zr = zr
		in = zr
	default:
		return nil, fmt.Errorf("%w: compression %d", ErrFormat, rd.comp)
	}
	rd.dec = decMode.NewDecoder(in)

	if err := rd.dec.Decode(&rd.header); err != nil {
		rd.Close()
		return nil, fmt.Errorf("%w: header: %v", ErrFormat, err)
	}
	if rd.header.Version != Version {
		rd.Close()
		return nil, fmt.Errorf("%w: version %d", ErrFormat, rd.header.Version)
	}
	return rd, nil
}

func (r *Reader) Header() Header {
	return r.header
}

func (r *Reader) Compression() Compression {
	return r.comp
}

// Next returns the next entry, or io.EOF after the last one.
func (r *Reader) Next() (*Entry, error) {
	var e Entry
	if err := r.dec.Decode(&e); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return &e, nil
}

func (r *Reader) Close() {
	if r.zr != nil {
		r.zr.Close()
	}
}

// Source is the read side of a log.
type Source interface {
	Read(slot uint32) (tlog.IndexRecord, []byte, error)
	CommittedCount() uint32
	StartTime() uint64
	Path() string
}

// Range writes count records starting at first from src to w. A count of
// zero exports everything from first to the end of the log.
func Range(src Source, w io.Writer, first, count uint32, c Compression) (int, error) {
	n := src.CommittedCount()
	if first >= n {
		return 0, fmt.Errorf("%w: first record %d with %d committed", tlog.ErrOutOfRange, first, n)
	}
	if count == 0 || count > n-first {
		count = n - first
	}

	wr, err := NewWriter(w, c, Header{
		Source:    src.Path(),
		StartTime: src.StartTime(),
		First:     first,
		Count:     count,
	})
	if err != nil {
		return 0, err
	}
	for i := first; i < first+count; i++ {
		rec, payload, err := src.Read(i)
		if err != nil {
			return wr.Count(), err
		}
		if err := wr.Write(&Entry{Index: i, Record: rec, Payload: payload}); err != nil {
			return wr.Count(), err
		}
	}
	if err := wr.Close(); err != nil {
		return wr.Count(), err
	}
	log.Info("exported records", "source", src.Path(), "first", first, "count", count, "compression", c.String())
	return wr.Count(), nil
}
