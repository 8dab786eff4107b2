package tlog

import (
	"encoding/binary"
	"fmt"
)

const (
	plOffMagic    = 0
	plOffImageLen = 8
	plOffSamples  = 16
)

// Payload is the decoded form of a PayloadRecord: four fixed sample
// channels in millivolts followed by an optional image.
type Payload struct {
	VoltageSamples  [AdcSamples]int16
	CurrentSamples  [AdcSamples]int16
	PressureSamples [AdcSamples]int16
	He3Samples      [AdcSamples]int16
	Image           []byte
}

func (p *Payload) channels() []*[AdcSamples]int16 {
	return []*[AdcSamples]int16{&p.VoltageSamples, &p.CurrentSamples, &p.PressureSamples, &p.He3Samples}
}

// Len returns the encoded length of the payload.
func (p *Payload) Len() int {
	return PayloadFixedSize + len(p.Image)
}

// Encode serializes the payload into its on-disk and wire form.
func (p *Payload) Encode() []byte {
	b := make([]byte, p.Len())
	binary.LittleEndian.PutUint64(b[plOffMagic:], MagicPayload)
	binary.LittleEndian.PutUint32(b[plOffImageLen:], uint32(len(p.Image)))
	off := plOffSamples
	for _, ch := range p.channels() {
		for _, v := range ch {
			binary.LittleEndian.PutUint16(b[off:], uint16(v))
			off += 2
		}
	}
	copy(b[PayloadFixedSize:], p.Image)
	return b
}

// ValidatePayload checks the fixed section of b and that the embedded image
// length accounts for every byte after it. It returns the image length.
func ValidatePayload(b []byte) (int, error) {
	if len(b) < PayloadFixedSize {
		return 0, fmt.Errorf("payload length %d below fixed size %d", len(b), PayloadFixedSize)
	}
	if m := binary.LittleEndian.Uint64(b[plOffMagic:]); m != MagicPayload {
		return 0, fmt.Errorf("payload magic 0x%x", m)
	}
	imageLen := int(binary.LittleEndian.Uint32(b[plOffImageLen:]))
	if PayloadFixedSize+imageLen != len(b) {
		return 0, fmt.Errorf("image length %d does not match payload length %d", imageLen, len(b))
	}
	return imageLen, nil
}

// DecodePayload parses a stored payload. Any structural mismatch is
// reported as ErrCorrupt.
func DecodePayload(b []byte) (*Payload, error) {
	imageLen, err := ValidatePayload(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}

	p := &Payload{}
	off := plOffSamples
	for _, ch := range p.channels() {
		for i := range ch {
			ch[i] = int16(binary.LittleEndian.Uint16(b[off:]))
			off += 2
		}
	}
	if imageLen > 0 {
		p.Image = append([]byte(nil), b[PayloadFixedSize:]...)
	}
	return p, nil
}

// WithImage returns raw with its image section replaced by image. raw must
// hold at least PayloadFixedSize bytes. The fixed section is reused when
// capacity allows.
func WithImage(raw []byte, image []byte) []byte {
	out := append(raw[:PayloadFixedSize], image...)
	binary.LittleEndian.PutUint32(out[plOffImageLen:], uint32(len(image)))
	return out
}

// WithoutImage truncates raw to its fixed section and zeroes the embedded
// image length.
func WithoutImage(raw []byte) []byte {
	out := raw[:PayloadFixedSize]
	binary.LittleEndian.PutUint32(out[plOffImageLen:], 0)
	return out
}
