package vanilla

import (
	"math/rand"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/decoder"
	"github.com/moratsam/rlnc/encoder"
	"github.com/moratsam/rlnc/gf"
	"github.com/moratsam/rlnc/packet"
	u "github.com/moratsam/rlnc/util"
)

var log = logging.Logger("rlnc/pu")

var ErrUndecodable = xerrors.New("not enough innovative packets")

// VanillaPU codes generations on the CPU, one encoder or decoder per call.
type VanillaPU struct {
	gen_size   int
	pkt_size   int
	field      *gf.Field
	systematic bool
	seed       *int64
}

type Option func(*VanillaPU)

func WithField(f *gf.Field) Option {
	return func(v *VanillaPU) { v.field = f }
}

// Systematic makes Encode send every source packet uncoded before any
// coded packet.
func Systematic(on bool) Option {
	return func(v *VanillaPU) { v.systematic = on }
}

// WithSeed makes the coefficients reproducible: generation g is coded with
// a source seeded by seed+g.
func WithSeed(seed int64) Option {
	return func(v *VanillaPU) { v.seed = &seed }
}

func NewVanillaPU(generationSize, packetSize int, opts ...Option) *VanillaPU {
	v := &VanillaPU{gen_size: generationSize, pkt_size: packetSize, field: gf.Default()}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *VanillaPU) Encode(gen_id uint32, src [][]byte, count int) ([]*packet.Coded, error) {
	opts := []encoder.Option{encoder.WithGeneration(gen_id), encoder.WithField(v.field)}
	if v.seed != nil {
		opts = append(opts, encoder.WithRand(rand.New(rand.NewSource(*v.seed+int64(gen_id)))))
	}
	enc, err := encoder.New(v.gen_size, v.pkt_size, opts...)
	if err != nil {
		return nil, u.WrapErr("create encoder", err)
	}
	for i, s := range src {
		if err := enc.AddPacket(s, uint32(i)); err != nil {
			return nil, u.WrapErr("add source packet", err)
		}
	}

	out := make([]*packet.Coded, 0, count)
	if v.systematic {
		for i := 0; i < len(src) && len(out) < count; i++ {
			p, err := enc.GenerateUncodedPacket(uint32(i))
			if err != nil {
				return nil, u.WrapErr("uncoded packet", err)
			}
			out = append(out, p)
		}
	}
	for len(out) < count {
		p, err := enc.GenerateCodedPacket()
		if err != nil {
			return nil, u.WrapErr("coded packet", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (v *VanillaPU) Decode(gen_id uint32, coded []*packet.Coded) ([][]byte, error) {
	dec, err := decoder.New(v.gen_size, v.pkt_size, decoder.WithGeneration(gen_id), decoder.WithField(v.field))
	if err != nil {
		return nil, u.WrapErr("create decoder", err)
	}
	for _, p := range coded {
		if dec.CanDecode() {
			break
		}
		if _, err := dec.Process(p); err != nil {
			return nil, u.WrapErr("process packet", err)
		}
	}

	data := dec.Decoded()
	if data == nil {
		return nil, xerrors.Errorf("generation %d: rank %d of %d after %d packets: %w",
			gen_id, dec.Rank(), v.gen_size, len(coded), ErrUndecodable)
	}
	stats := dec.Stats()
	log.Debugw("generation decoded", "generation", gen_id, "innovative", stats.Innovative, "redundant", stats.Redundant)
	return data, nil
}
