// Package opencl codes whole generations as matrix products. Encoding
// multiplies a drawn coefficient matrix with the source packets, decoding
// multiplies the inverse of the received coefficients with the payloads.
// Built with the opencl tag the products run on the first OpenCL device,
// otherwise they run on the CPU.
package opencl

import (
	crand "crypto/rand"
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

// multiplier computes a*b where the rows of b are payloads.
type multiplier interface {
	Mul(a, b [][]byte) ([][]byte, error)
	Close() error
}

type cpuMultiplier struct {
	field *gf.Field
}

func (m cpuMultiplier) Mul(a, b [][]byte) ([][]byte, error) {
	return m.field.MulMatrix(a, b), nil
}

func (m cpuMultiplier) Close() error { return nil }

type OpenCLPU struct {
	gen_size   int
	pkt_size   int
	field      *gf.Field
	systematic bool
	seed       *int64
	mul        multiplier
}

type Option func(*OpenCLPU)

func WithField(f *gf.Field) Option {
	return func(c *OpenCLPU) { c.field = f }
}

// Systematic puts unit rows for the source packets at the top of every
// coefficient matrix.
func Systematic(on bool) Option {
	return func(c *OpenCLPU) { c.systematic = on }
}

// WithSeed draws the coefficients of generation g from a source seeded by
// seed+g.
func WithSeed(seed int64) Option {
	return func(c *OpenCLPU) { c.seed = &seed }
}

func NewOpenCLPU(generationSize, packetSize int, opts ...Option) (*OpenCLPU, error) {
	if generationSize < 1 || generationSize > packet.MaxGenerationSize || packetSize < 1 {
		return nil, xerrors.Errorf("generation size %d, packet size %d: %w", generationSize, packetSize, encoder.ErrInvalidSize)
	}
	c := &OpenCLPU{gen_size: generationSize, pkt_size: packetSize, field: gf.Default()}
	for _, opt := range opts {
		opt(c)
	}
	mul, err := newMultiplier(c.field)
	if err != nil {
		return nil, u.WrapErr("create multiplier", err)
	}
	c.mul = mul
	return c, nil
}

// Close releases the device resources.
func (c *OpenCLPU) Close() error {
	return c.mul.Close()
}

func (c *OpenCLPU) rng(gen_id uint32) (*rand.Rand, error) {
	if c.seed != nil {
		return rand.New(rand.NewSource(*c.seed + int64(gen_id))), nil
	}
	seed, err := u.Seed(crand.Reader)
	if err != nil {
		return nil, err
	}
	return rand.New(rand.NewSource(seed)), nil
}

func (c *OpenCLPU) Encode(gen_id uint32, src [][]byte, count int) ([]*packet.Coded, error) {
	switch {
	case len(src) == 0:
		return nil, xerrors.Errorf("generation %d: %w", gen_id, encoder.ErrEmptyGeneration)
	case len(src) > c.gen_size:
		return nil, xerrors.Errorf("%d sources in generation %d: %w", len(src), gen_id, encoder.ErrGenerationFull)
	}
	rng, err := c.rng(gen_id)
	if err != nil {
		return nil, u.WrapErr("seed coefficient source", err)
	}

	mat := gf.NewMatrix(count, c.gen_size)
	for i, row := range mat {
		if c.systematic && i < len(src) {
			row[i] = 1
			continue
		}
		// Empty slots keep a zero coefficient.
		for j := range src {
			row[j] = byte(rng.Intn(255) + 1)
		}
	}

	data := gf.NewMatrix(c.gen_size, c.pkt_size)
	for i, s := range src {
		copy(data[i], s)
	}
	payloads, err := c.mul.Mul(mat, data)
	if err != nil {
		return nil, u.WrapErr("multiply generation", err)
	}

	out := make([]*packet.Coded, count)
	for i := range out {
		out[i] = &packet.Coded{
			GenerationID:   gen_id,
			GenerationSize: uint16(c.gen_size),
			Coefficients:   mat[i],
			Payload:        payloads[i],
		}
	}
	log.Debugw("generation encoded", "generation", gen_id, "sources", len(src), "packets", count)
	return out, nil
}

// Decode picks the first generation size linearly independent packets and
// multiplies their payloads with the inverse of their coefficient rows.
func (c *OpenCLPU) Decode(gen_id uint32, coded []*packet.Coded) ([][]byte, error) {
	coeffs := make([][]byte, 0, c.gen_size)
	payloads := make([][]byte, 0, c.gen_size)
	basis := make([][]byte, 0, c.gen_size) // row echelon, unit pivots
	pivots := make([]int, 0, c.gen_size)
	redundant := 0

	for _, p := range coded {
		if len(coeffs) == c.gen_size {
			break
		}
		switch {
		case p == nil:
			return nil, decoder.ErrNilPacket
		case p.GenerationID != gen_id:
			return nil, xerrors.Errorf("packet of generation %d, want %d: %w", p.GenerationID, gen_id, decoder.ErrWrongGeneration)
		case len(p.Coefficients) > c.gen_size:
			return nil, xerrors.Errorf("%d coefficients, generation size %d: %w", len(p.Coefficients), c.gen_size, decoder.ErrCoefficientCount)
		}

		row := p.PaddedCoefficients(c.gen_size)
		v := append([]byte(nil), row...)
		for i, b := range basis {
			if v[pivots[i]] != 0 {
				c.field.AddScaled(v, b, v[pivots[i]])
			}
		}
		if gf.IsZero(v) {
			redundant++
			continue
		}
		col := 0
		for v[col] == 0 {
			col++
		}
		inv, err := c.field.Inv(v[col])
		if err != nil {
			return nil, u.WrapErr("normalise row", err)
		}
		c.field.Scale(v, inv)
		basis = append(basis, v)
		pivots = append(pivots, col)

		payload := make([]byte, c.pkt_size)
		copy(payload, p.Payload)
		coeffs = append(coeffs, row)
		payloads = append(payloads, payload)
	}

	if len(coeffs) < c.gen_size {
		return nil, xerrors.Errorf("generation %d: rank %d of %d after %d packets: %w",
			gen_id, len(coeffs), c.gen_size, len(coded), ErrUndecodable)
	}
	inv, err := c.field.Invert(coeffs)
	if err != nil {
		return nil, u.WrapErr("invert coefficients", err)
	}
	data, err := c.mul.Mul(inv, payloads)
	if err != nil {
		return nil, u.WrapErr("multiply generation", err)
	}
	log.Debugw("generation decoded", "generation", gen_id, "redundant", redundant)
	return data, nil
}
