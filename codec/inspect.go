package codec

import (
	"github.com/moratsam/rlnc/io"
	"github.com/moratsam/rlnc/packet"
	u "github.com/moratsam/rlnc/util"
)

// Summary describes a coded stream without decoding it.
type Summary struct {
	Meta    StreamMeta
	Packets map[uint32]int // Parsable packets per generation.
	Uncoded map[uint32]int // Of those, the ones carrying a source packet as is.
	Corrupt int            // Frames that did not parse as a coded packet.
}

// Inspect reads the header and every frame of the stream at path.
func Inspect(path string) (*Summary, error) {
	f, err := io.OpenFile(path)
	if err != nil {
		return nil, u.WrapErr("open stream", err)
	}
	defer f.Close()
	r := io.NewReader(f)

	meta, err := readStreamMeta(r)
	if err != nil {
		return nil, err
	}
	s := &Summary{
		Meta:    meta,
		Packets: make(map[uint32]int),
		Uncoded: make(map[uint32]int),
	}
	for {
		frame, err := io.ReadFrame(r)
		if err == io.EOF {
			return s, nil
		}
		if err != nil {
			return nil, err
		}
		p, err := packet.Unmarshal(frame)
		if err != nil {
			s.Corrupt++
			continue
		}
		s.Packets[p.GenerationID]++
		if _, ok := p.IsUncoded(); ok {
			s.Uncoded[p.GenerationID]++
		}
	}
}

// Short reports the generations with fewer packets than the generation
// size. Those can not be decoded whatever the packets hold.
func (s *Summary) Short() []uint32 {
	var short []uint32
	for g := uint32(0); g < s.Meta.GenerationCount; g++ {
		if s.Packets[g] < int(s.Meta.GenerationSize) {
			short = append(short, g)
		}
	}
	return short
}
