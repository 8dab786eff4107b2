package tlog

import "errors"

// Log file format:
//  ---   LogHeader   ---  4096 bytes
//  --- IndexRecord 0 ---  128 bytes
//  --- IndexRecord 1 ---
//  ---      ...      ---
//  --- IndexRecord N ---  N = capacity - 1
//  ---    padding    ---
//  --- Payload heap  ---  <- 4K aligned, append only

// LogHeader format:
//   magic:8 | start_time:8 | committed_count:4 | capacity:4 | reserved

// IndexRecord format:
//   magic:8 | time:8 | scalars:4*10 | payload_offset:8 | payload_length:4 |
//   flags:4 | payload_crc:4 | reserved

// PayloadRecord format:
//   magic:8 | image_length:4 | reserved:4 | samples:2*AdcSamples*4 | image

const (
	MagicHeader  uint64 = 0x1122334455667788
	MagicIndex   uint64 = 0x2233445566778899
	MagicPayload uint64 = 0x33445566778899aa

	HeaderSize      = 4096
	IndexRecordSize = 128
	BlockSize       = 4096

	// AdcSamples is the number of samples per channel in a payload record.
	AdcSamples = 1200
	NumAdcChan = 4
	NumHe3Chan = 4

	PayloadFixedSize = 16 + 2*AdcSamples*NumAdcChan

	DefaultCapacity         = 86400 // one day at one record per second
	MaxCapacity             = 1 << 24
	DefaultMaxPayloadLength = 1000000
)

// header field offsets
const (
	hdrOffMagic     = 0
	hdrOffStartTime = 8
	hdrOffCommitted = 16
	hdrOffCapacity  = 20
)

var (
	ErrAlreadyExists   = errors.New("log file already exists")
	ErrIO              = errors.New("log io error")
	ErrInvalidFormat   = errors.New("invalid log format")
	ErrLogFull         = errors.New("log is full")
	ErrOutOfRange      = errors.New("record index out of range")
	ErrCorrupt         = errors.New("corrupt record")
	ErrReadOnly        = errors.New("log is opened read-only")
	ErrClosed          = errors.New("log is closed")
	ErrLocked          = errors.New("log is locked by another writer")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// HeapOffset returns the file offset of the payload heap for a log holding
// capacity index records.
func HeapOffset(capacity uint32) int64 {
	return (HeaderSize + int64(capacity)*IndexRecordSize + BlockSize) &^ (BlockSize - 1)
}

func slotOffset(slot uint32) int64 {
	return HeaderSize + int64(slot)*IndexRecordSize
}
