package tlog

import (
	"encoding/binary"
	"math"
)

// Flags marks which optional sub-sections a record's payload carries.
type Flags uint32

const (
	FlagImage Flags = 1 << iota
	FlagVoltageSamples
	FlagCurrentSamples
	FlagPressureSamples
	FlagHe3Samples
)

// FlagAllSamples covers every always-present sample channel.
const FlagAllSamples = FlagVoltageSamples | FlagCurrentSamples | FlagPressureSamples | FlagHe3Samples

func (f Flags) Has(flag Flags) bool {
	return f&flag == flag
}

// IndexRecord is the fixed size entry stored in the index array, one per
// telemetry sample. PayloadOffset, PayloadLength and PayloadCRC are
// managed by the store on Append.
type IndexRecord struct {
	Magic uint64
	Time  uint64

	VoltageMeanKV   float32
	VoltageMinKV    float32
	VoltageMaxKV    float32
	CurrentMA       float32
	PressureD2MTorr float32
	PressureN2MTorr float32
	He3CPM          [NumHe3Chan]float32

	PayloadOffset uint64
	PayloadLength uint32
	Flags         Flags
	PayloadCRC    uint32
}

const (
	recOffMagic   = 0
	recOffTime    = 8
	recOffScalars = 16
	recOffPayload = 56
	recOffLength  = 64
	recOffFlags   = 68
	recOffCRC     = 72
)

// HasPayload reports whether the record addresses any payload bytes.
func (r *IndexRecord) HasPayload() bool {
	return r.PayloadLength != 0
}

func (r *IndexRecord) scalars() []*float32 {
	s := []*float32{
		&r.VoltageMeanKV, &r.VoltageMinKV, &r.VoltageMaxKV,
		&r.CurrentMA, &r.PressureD2MTorr, &r.PressureN2MTorr,
	}
	for i := range r.He3CPM {
		s = append(s, &r.He3CPM[i])
	}
	return s
}

// Marshal writes the record into dst, which must hold IndexRecordSize bytes.
func (r *IndexRecord) Marshal(dst []byte) {
	_ = dst[IndexRecordSize-1]
	binary.LittleEndian.PutUint64(dst[recOffMagic:], r.Magic)
	binary.LittleEndian.PutUint64(dst[recOffTime:], r.Time)
	for i, v := range r.scalars() {
		binary.LittleEndian.PutUint32(dst[recOffScalars+4*i:], math.Float32bits(*v))
	}
	binary.LittleEndian.PutUint64(dst[recOffPayload:], r.PayloadOffset)
	binary.LittleEndian.PutUint32(dst[recOffLength:], r.PayloadLength)
	binary.LittleEndian.PutUint32(dst[recOffFlags:], uint32(r.Flags))
	binary.LittleEndian.PutUint32(dst[recOffCRC:], r.PayloadCRC)
	for i := recOffCRC + 4; i < IndexRecordSize; i++ {
		dst[i] = 0
	}
}

// Unmarshal reads the record from src. The caller must check the length.
func (r *IndexRecord) Unmarshal(src []byte) {
	_ = src[IndexRecordSize-1]
	r.Magic = binary.LittleEndian.Uint64(src[recOffMagic:])
	r.Time = binary.LittleEndian.Uint64(src[recOffTime:])
	for i, v := range r.scalars() {
		*v = math.Float32frombits(binary.LittleEndian.Uint32(src[recOffScalars+4*i:]))
	}
	r.PayloadOffset = binary.LittleEndian.Uint64(src[recOffPayload:])
	r.PayloadLength = binary.LittleEndian.Uint32(src[recOffLength:])
	r.Flags = Flags(binary.LittleEndian.Uint32(src[recOffFlags:]))
	r.PayloadCRC = binary.LittleEndian.Uint32(src[recOffCRC:])
}

// Encode returns the record as a new IndexRecordSize byte frame.
func (r *IndexRecord) Encode() []byte {
	b := make([]byte, IndexRecordSize)
	r.Marshal(b)
	return b
}

// DecodeIndexRecord parses a wire or disk frame.
func DecodeIndexRecord(b []byte) (IndexRecord, bool) {
	var r IndexRecord
	if len(b) < IndexRecordSize {
		return r, false
	}
	r.Unmarshal(b)
	return r, true
}

type header struct {
	magic     uint64
	startTime uint64
	committed uint32
	capacity  uint32
}

func (h *header) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint64(b[hdrOffMagic:], h.magic)
	binary.LittleEndian.PutUint64(b[hdrOffStartTime:], h.startTime)
	binary.LittleEndian.PutUint32(b[hdrOffCommitted:], h.committed)
	binary.LittleEndian.PutUint32(b[hdrOffCapacity:], h.capacity)
	return b
}

func (h *header) decode(b []byte) {
	h.magic = binary.LittleEndian.Uint64(b[hdrOffMagic:])
	h.startTime = binary.LittleEndian.Uint64(b[hdrOffStartTime:])
	h.committed = binary.LittleEndian.Uint32(b[hdrOffCommitted:])
	h.capacity = binary.LittleEndian.Uint32(b[hdrOffCapacity:])
}
