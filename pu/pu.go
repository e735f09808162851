package pu

import (
	"github.com/moratsam/rlnc/packet"
)

// PU turns whole generations into coded packets and back. One call handles
// one generation and owns its encoder or decoder for the duration of the
// call, so different generations may be processed in parallel.
type PU interface {
	// Encode codes src (at most the generation size packets) of generation
	// gen_id into count coded packets.
	Encode(gen_id uint32, src [][]byte, count int) ([]*packet.Coded, error)

	// Decode recovers the source packets of generation gen_id, in slot order.
	Decode(gen_id uint32, coded []*packet.Coded) ([][]byte, error)
}
