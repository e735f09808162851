// Package encoder buffers the source packets of one generation and emits
// random linear combinations of them.
package encoder

import (
	crand "crypto/rand"
	"io"
	"math/rand"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/gf"
	"github.com/moratsam/rlnc/packet"
	"github.com/moratsam/rlnc/util"
)

var log = logging.Logger("rlnc/encoder")

// entropy seeds the coefficient source when WithRand is not given.
var entropy io.Reader = crand.Reader

var (
	ErrGenerationFull    = xerrors.New("generation is full")
	ErrDuplicateSequence = xerrors.New("sequence number already in generation")
	ErrUnknownSequence   = xerrors.New("sequence number not in generation")
	ErrEmptyGeneration   = xerrors.New("generation holds no packets")
	ErrInvalidSize       = xerrors.New("invalid generation or packet size")
)

type slot struct {
	seq     uint32
	payload []byte
}

// Encoder is not safe for concurrent use.
type Encoder struct {
	field    *gf.Field
	rng      *rand.Rand
	gen_size int
	pkt_size int
	gen_id   uint32

	// Position k of every coding vector refers to slots[k].
	slots []*slot
	count int
	index map[uint32]int // sequence number -> slot
}

type Option func(*Encoder)

// WithField selects the field the combinations are computed in.
func WithField(f *gf.Field) Option {
	return func(e *Encoder) { e.field = f }
}

// WithRand sets the source of coding coefficients.
func WithRand(rng *rand.Rand) Option {
	return func(e *Encoder) { e.rng = rng }
}

// WithGeneration starts the encoder at generation id instead of 0.
func WithGeneration(id uint32) Option {
	return func(e *Encoder) { e.gen_id = id }
}

func New(generationSize, packetSize int, opts ...Option) (*Encoder, error) {
	if generationSize < 1 || generationSize > packet.MaxGenerationSize || packetSize < 1 {
		return nil, xerrors.Errorf("generation size %d, packet size %d: %w", generationSize, packetSize, ErrInvalidSize)
	}
	e := &Encoder{
		gen_size: generationSize,
		pkt_size: packetSize,
		slots:    make([]*slot, generationSize),
		index:    make(map[uint32]int, generationSize),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.field == nil {
		e.field = gf.Default()
	}
	if e.rng == nil {
		seed, err := util.Seed(entropy)
		if err != nil {
			return nil, util.WrapErr("seed coefficient source", err)
		}
		e.rng = rand.New(rand.NewSource(seed))
	}
	return e, nil
}

func (e *Encoder) GenerationID() uint32 { return e.gen_id }
func (e *Encoder) GenerationSize() int  { return e.gen_size }
func (e *Encoder) PacketSize() int      { return e.pkt_size }
func (e *Encoder) PacketCount() int     { return e.count }

func (e *Encoder) IsGenerationComplete() bool {
	return e.count >= e.gen_size
}

// AddPacket copies payload into the next free slot, zero padding or
// truncating it to the packet size.
func (e *Encoder) AddPacket(payload []byte, seq uint32) error {
	if e.IsGenerationComplete() {
		log.Warnw("packet refused", "generation", e.gen_id, "seq", seq, "reason", "full")
		return xerrors.Errorf("generation %d: %w", e.gen_id, ErrGenerationFull)
	}
	if _, ok := e.index[seq]; ok {
		log.Warnw("packet refused", "generation", e.gen_id, "seq", seq, "reason", "duplicate")
		return xerrors.Errorf("seq %d: %w", seq, ErrDuplicateSequence)
	}

	buf := make([]byte, e.pkt_size)
	copy(buf, payload)

	ix := e.count
	e.slots[ix] = &slot{seq: seq, payload: buf}
	e.index[seq] = ix
	e.count++

	log.Debugw("packet added", "generation", e.gen_id, "seq", seq, "slot", ix)
	return nil
}

// Slot returns the coding vector position of seq.
func (e *Encoder) Slot(seq uint32) (int, bool) {
	ix, ok := e.index[seq]
	return ix, ok
}

// SequenceNumbers lists the buffered sequence numbers in slot order.
func (e *Encoder) SequenceNumbers() []uint32 {
	seqs := make([]uint32, 0, e.count)
	for _, s := range e.slots[:e.count] {
		seqs = append(seqs, s.seq)
	}
	return seqs
}

// GenerateCodedPacket draws a coefficient from [1,255] for every buffered
// packet and returns the matching combination. It does not change the
// encoder, so it may be called as often as redundancy requires.
func (e *Encoder) GenerateCodedPacket() (*packet.Coded, error) {
	if e.count == 0 {
		return nil, xerrors.Errorf("generation %d: %w", e.gen_id, ErrEmptyGeneration)
	}

	coeffs := make([]byte, e.gen_size)
	payload := make([]byte, e.pkt_size)
	for ix, s := range e.slots[:e.count] {
		c := byte(e.rng.Intn(255) + 1)
		coeffs[ix] = c
		e.field.AddScaled(payload, s.payload, c)
	}

	log.Debugw("coded packet", "generation", e.gen_id, "sources", e.count)
	return &packet.Coded{
		GenerationID:   e.gen_id,
		GenerationSize: uint16(e.gen_size),
		Coefficients:   coeffs,
		Payload:        payload,
	}, nil
}

// GenerateUncodedPacket returns packet seq as is, under a unit coding vector.
func (e *Encoder) GenerateUncodedPacket(seq uint32) (*packet.Coded, error) {
	ix, ok := e.index[seq]
	if !ok {
		return nil, xerrors.Errorf("seq %d in generation %d: %w", seq, e.gen_id, ErrUnknownSequence)
	}

	coeffs := make([]byte, e.gen_size)
	coeffs[ix] = 1
	return &packet.Coded{
		GenerationID:   e.gen_id,
		GenerationSize: uint16(e.gen_size),
		Coefficients:   coeffs,
		Payload:        append([]byte(nil), e.slots[ix].payload...),
	}, nil
}

// Reconfigure resizes the encoder. The buffered packets are dropped, the
// generation id is kept.
func (e *Encoder) Reconfigure(generationSize, packetSize int) error {
	if generationSize < 1 || generationSize > packet.MaxGenerationSize || packetSize < 1 {
		return xerrors.Errorf("generation size %d, packet size %d: %w", generationSize, packetSize, ErrInvalidSize)
	}
	e.gen_size = generationSize
	e.pkt_size = packetSize
	e.slots = make([]*slot, generationSize)
	e.index = make(map[uint32]int, generationSize)
	e.count = 0
	log.Debugw("encoder reconfigured", "generation", e.gen_id, "generation_size", generationSize, "packet_size", packetSize)
	return nil
}

// NextGeneration drops the buffered packets and moves on to the next id.
func (e *Encoder) NextGeneration() {
	for i := range e.slots {
		e.slots[i] = nil
	}
	for seq := range e.index {
		delete(e.index, seq)
	}
	e.count = 0
	e.gen_id++
	log.Infow("next generation", "generation", e.gen_id)
}
