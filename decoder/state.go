package decoder

import "fmt"

// State of the current generation.
//
//	Collecting --(rank reaches size)--> Decodable --(Gauss-Jordan)--> Decoded
//
// NextGeneration and Reconfigure lead back to Collecting.
type State int

const (
	Collecting State = iota
	Decodable
	Decoded
)

func (s State) String() string {
	switch s {
	case Collecting:
		return "COLLECTING"
	case Decodable:
		return "DECODABLE"
	case Decoded:
		return "DECODED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}
