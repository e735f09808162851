package packet

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/xerrors"
)

type ControlType uint8

const (
	RequestUncoded ControlType = 1 // Ask for the listed packets in uncoded form.
	Acknowledge    ControlType = 2 // Acknowledge the listed packets or a whole generation.
)

var ErrControlType = xerrors.New("unknown control type")

func (t ControlType) String() string {
	switch t {
	case RequestUncoded:
		return "REQUEST_UNCODED"
	case Acknowledge:
		return "ACKNOWLEDGE"
	default:
		return fmt.Sprintf("ControlType(%d)", uint8(t))
	}
}

// Control is a feedback message from a decoding peer.
//
//	[type u8][generation id u32][count u16][count x sequence number u32]
type Control struct {
	Type         ControlType
	GenerationID uint32
	Sequences    []uint32
}

func (c *Control) Size() int {
	return 1 + 4 + 2 + 4*len(c.Sequences)
}

func (c *Control) MarshalBinary() ([]byte, error) {
	if c.Type != RequestUncoded && c.Type != Acknowledge {
		return nil, xerrors.Errorf("%v: %w", c.Type, ErrControlType)
	}
	if len(c.Sequences) > 0xFFFF {
		return nil, xerrors.Errorf("%d sequence numbers do not fit a control packet", len(c.Sequences))
	}
	data := make([]byte, c.Size())
	data[0] = byte(c.Type)
	binary.BigEndian.PutUint32(data[1:5], c.GenerationID)
	binary.BigEndian.PutUint16(data[5:7], uint16(len(c.Sequences)))
	for i, seq := range c.Sequences {
		binary.BigEndian.PutUint32(data[7+4*i:], seq)
	}
	return data, nil
}

func (c *Control) UnmarshalBinary(data []byte) error {
	if len(data) < 7 {
		return xerrors.Errorf("%d byte control header: %w", len(data), ErrTruncated)
	}
	c.Type = ControlType(data[0])
	if c.Type != RequestUncoded && c.Type != Acknowledge {
		return xerrors.Errorf("%v: %w", c.Type, ErrControlType)
	}
	c.GenerationID = binary.BigEndian.Uint32(data[1:5])
	count := int(binary.BigEndian.Uint16(data[5:7]))
	if len(data) < 7+4*count {
		return xerrors.Errorf("%d sequence numbers announced: %w", count, ErrTruncated)
	}
	c.Sequences = make([]uint32, count)
	for i := range c.Sequences {
		c.Sequences[i] = binary.BigEndian.Uint32(data[7+4*i:])
	}
	return nil
}

// UnmarshalControl parses a control packet.
func UnmarshalControl(data []byte) (*Control, error) {
	c := new(Control)
	if err := c.UnmarshalBinary(data); err != nil {
		return nil, err
	}
	return c, nil
}
