// Package packet holds the wire formats exchanged between an encoder and a
// decoder. Nothing in here sends anything; the caller owns the transport.
package packet

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/xerrors"
)

const (
	// MaxGenerationSize is the largest generation a header may announce.
	MaxGenerationSize = 255

	fixedHeaderSize = 4 + 2 + 2 // generation id, generation size, coefficient count
)

var (
	ErrTruncated        = xerrors.New("packet truncated")
	ErrGenerationSize   = xerrors.New("invalid generation size")
	ErrCoefficientCount = xerrors.New("coefficient count exceeds generation size")
)

// Coded is one linear combination of the source packets of a generation.
//
//	[generation id u32][generation size u16][coefficient count u16]
//	[coefficients, zero padded up to generation size][payload]
type Coded struct {
	GenerationID   uint32
	GenerationSize uint16
	Coefficients   []byte // Coding vector; may be shorter than GenerationSize.
	Payload        []byte
}

// HeaderSize is the encoded size of a header for a generation of n packets.
func HeaderSize(n int) int {
	return fixedHeaderSize + n
}

func (c *Coded) validate() error {
	if c.GenerationSize == 0 || c.GenerationSize > MaxGenerationSize {
		return xerrors.Errorf("%d: %w", c.GenerationSize, ErrGenerationSize)
	}
	if len(c.Coefficients) > int(c.GenerationSize) {
		return xerrors.Errorf("%d > %d: %w", len(c.Coefficients), c.GenerationSize, ErrCoefficientCount)
	}
	return nil
}

// Size is the number of bytes MarshalBinary produces.
func (c *Coded) Size() int {
	return HeaderSize(int(c.GenerationSize)) + len(c.Payload)
}

func (c *Coded) MarshalBinary() ([]byte, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	data := make([]byte, c.Size())
	binary.BigEndian.PutUint32(data[0:4], c.GenerationID)
	binary.BigEndian.PutUint16(data[4:6], c.GenerationSize)
	binary.BigEndian.PutUint16(data[6:8], uint16(len(c.Coefficients)))
	copy(data[fixedHeaderSize:], c.Coefficients) // rest of the vector stays zero
	copy(data[HeaderSize(int(c.GenerationSize)):], c.Payload)
	return data, nil
}

func (c *Coded) UnmarshalBinary(data []byte) error {
	if len(data) < fixedHeaderSize {
		return xerrors.Errorf("%d byte header: %w", len(data), ErrTruncated)
	}
	c.GenerationID = binary.BigEndian.Uint32(data[0:4])
	c.GenerationSize = binary.BigEndian.Uint16(data[4:6])
	count := binary.BigEndian.Uint16(data[6:8])

	if c.GenerationSize == 0 || c.GenerationSize > MaxGenerationSize {
		return xerrors.Errorf("%d: %w", c.GenerationSize, ErrGenerationSize)
	}
	if count > c.GenerationSize {
		return xerrors.Errorf("%d > %d: %w", count, c.GenerationSize, ErrCoefficientCount)
	}
	end := HeaderSize(int(c.GenerationSize))
	if len(data) < end {
		return xerrors.Errorf("%d coefficient bytes, want %d: %w", len(data)-fixedHeaderSize, c.GenerationSize, ErrTruncated)
	}

	c.Coefficients = make([]byte, c.GenerationSize)
	copy(c.Coefficients, data[fixedHeaderSize:fixedHeaderSize+int(count)])
	c.Payload = append([]byte(nil), data[end:]...)
	return nil
}

// Unmarshal parses a coded packet.
func Unmarshal(data []byte) (*Coded, error) {
	c := new(Coded)
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}

// PaddedCoefficients returns the coding vector zero padded to n entries.
func (c *Coded) PaddedCoefficients(n int) []byte {
	out := make([]byte, n)
	copy(out, c.Coefficients)
	return out
}

// IsUncoded reports whether the coding vector is a unit vector, and at which slot.
func (c *Coded) IsUncoded() (int, bool) {
	slot := -1
	for i, v := range c.Coefficients {
		switch {
		case v == 0:
		case v == 1 && slot < 0:
			slot = i
		default:
			return -1, false
		}
	}
	return slot, slot >= 0
}

func (c *Coded) String() string {
	return fmt.Sprintf("gen=%d size=%d coeffs=% x payload=%dB",
		c.GenerationID, c.GenerationSize, c.Coefficients, len(c.Payload))
}
