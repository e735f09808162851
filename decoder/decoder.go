// Package decoder collects coded packets of one generation and recovers the
// source packets once the collected coding vectors span the whole generation.
//
// The coefficient matrix is kept in reduced row echelon form while packets
// arrive: every accepted row is reduced against the stored pivots first, so a
// packet is stored only if it raises the rank. Full rank therefore means the
// stored rows already are a permutation of the identity, and the closing
// Gauss-Jordan pass only has to put them in slot order.
package decoder

import (
	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/gf"
	"github.com/moratsam/rlnc/packet"
	"github.com/moratsam/rlnc/util"
)

var log = logging.Logger("rlnc/decoder")

var (
	ErrNilPacket         = xerrors.New("nil packet")
	ErrGenerationDecoded = xerrors.New("generation already decoded")
	ErrWrongGeneration   = xerrors.New("packet belongs to another generation")
	ErrCoefficientCount  = xerrors.New("coding vector longer than generation")
	ErrMatrixFull        = xerrors.New("no free row in coefficient matrix")
	ErrNotDecodable      = xerrors.New("rank below generation size")
	ErrInvalidSize       = xerrors.New("invalid generation or packet size")
)

// Stats counts what happened to the packets handed to Process.
type Stats struct {
	Received           uint64 // Every call to Process.
	Innovative         uint64 // Packets that raised the rank.
	Redundant          uint64 // Packets linearly dependent on the stored ones.
	Rejected           uint64 // Wrong generation, already decoded, malformed.
	Mismatched         uint64 // Accepted although the header announced another generation size.
	GenerationsDecoded uint64
}

// Decoder is not safe for concurrent use.
type Decoder struct {
	field    *gf.Field
	gen_size int
	pkt_size int
	gen_id   uint32

	coeffs   [][]byte // gen_size x gen_size, rows [0, rank) in use
	payloads [][]byte // gen_size x pkt_size
	pivots   []int    // pivots[r] is the pivot column of row r
	rank     int

	state   State
	decoded [][]byte // slot order, valid once state == Decoded
	stats   Stats
}

type Option func(*Decoder)

// WithField selects the field the packets were coded in.
func WithField(f *gf.Field) Option {
	return func(d *Decoder) { d.field = f }
}

// WithGeneration starts the decoder at generation id instead of 0.
func WithGeneration(id uint32) Option {
	return func(d *Decoder) { d.gen_id = id }
}

func New(generationSize, packetSize int, opts ...Option) (*Decoder, error) {
	d := &Decoder{}
	for _, opt := range opts {
		opt(d)
	}
	if d.field == nil {
		d.field = gf.Default()
	}
	if err := d.Reconfigure(generationSize, packetSize); err != nil {
		return nil, err
	}
	log.Debugw("decoder created", "generation_size", generationSize, "packet_size", packetSize)
	return d, nil
}

// Reconfigure reallocates the matrices for new sizes. Whatever was collected
// for the current generation is dropped; the generation id is kept.
func (d *Decoder) Reconfigure(generationSize, packetSize int) error {
	if generationSize < 1 || generationSize > packet.MaxGenerationSize || packetSize < 1 {
		return xerrors.Errorf("generation size %d, packet size %d: %w", generationSize, packetSize, ErrInvalidSize)
	}
	d.gen_size = generationSize
	d.pkt_size = packetSize
	d.coeffs = gf.NewMatrix(generationSize, generationSize)
	d.payloads = gf.NewMatrix(generationSize, packetSize)
	d.pivots = make([]int, generationSize)
	d.rank = 0
	d.state = Collecting
	d.decoded = nil
	return nil
}

func (d *Decoder) GenerationID() uint32 { return d.gen_id }
func (d *Decoder) GenerationSize() int  { return d.gen_size }
func (d *Decoder) PacketSize() int      { return d.pkt_size }
func (d *Decoder) State() State         { return d.state }
func (d *Decoder) Stats() Stats         { return d.stats }
func (d *Decoder) Rank() int            { return d.rank }

func (d *Decoder) CanDecode() bool {
	return d.rank == d.gen_size
}

// Process adds p to the generation. It reports whether p was innovative,
// i.e. raised the rank; a dependent packet returns false with a nil error.
// Reaching full rank decodes the generation on the spot.
func (d *Decoder) Process(p *packet.Coded) (bool, error) {
	d.stats.Received++
	if err := d.admit(p); err != nil {
		d.stats.Rejected++
		log.Debugw("packet rejected", "generation", d.gen_id, "err", err)
		return false, err
	}

	if int(p.GenerationSize) != d.gen_size {
		d.stats.Mismatched++
		log.Debugw("generation size mismatch", "generation", d.gen_id, "got", p.GenerationSize, "want", d.gen_size)
	}

	row, payload := d.coeffs[d.rank], d.payloads[d.rank]
	clear(row)
	clear(payload)
	copy(row, p.Coefficients)
	copy(payload, p.Payload)
	if len(p.Payload) != d.pkt_size {
		log.Debugw("payload size mismatch", "generation", d.gen_id, "got", len(p.Payload), "want", d.pkt_size)
	}

	// Remove every stored pivot from the new row.
	for r := 0; r < d.rank; r++ {
		if c := row[d.pivots[r]]; c != 0 {
			d.field.AddScaled(row, d.coeffs[r], c)
			d.field.AddScaled(payload, d.payloads[r], c)
		}
	}

	pivot := -1
	for col, c := range row {
		if c != 0 {
			pivot = col
			break
		}
	}
	if pivot < 0 {
		clear(payload)
		d.stats.Redundant++
		log.Debugw("packet not innovative", "generation", d.gen_id, "rank", d.rank)
		return false, nil
	}

	inv, err := d.field.Inv(row[pivot])
	if err != nil {
		return false, util.WrapErr("normalise pivot", err)
	}
	d.field.Scale(row, inv)
	d.field.Scale(payload, inv)

	// Keep the stored rows reduced: clear the new pivot column above.
	for r := 0; r < d.rank; r++ {
		if c := d.coeffs[r][pivot]; c != 0 {
			d.field.AddScaled(d.coeffs[r], row, c)
			d.field.AddScaled(d.payloads[r], payload, c)
		}
	}

	d.pivots[d.rank] = pivot
	d.rank++
	d.stats.Innovative++
	log.Debugw("packet stored", "generation", d.gen_id, "pivot", pivot, "rank", d.rank)

	if d.rank == d.gen_size {
		d.state = Decodable
		log.Debugw("full rank", "generation", d.gen_id)
		if err := d.decode(); err != nil {
			log.Errorw("decode failed", "generation", d.gen_id, "err", err)
		}
	}
	return true, nil
}

func (d *Decoder) admit(p *packet.Coded) error {
	switch {
	case p == nil:
		return ErrNilPacket
	case d.state == Decoded:
		return xerrors.Errorf("generation %d: %w", d.gen_id, ErrGenerationDecoded)
	case p.GenerationID != d.gen_id:
		return xerrors.Errorf("got %d, current %d: %w", p.GenerationID, d.gen_id, ErrWrongGeneration)
	case len(p.Coefficients) > d.gen_size:
		return xerrors.Errorf("%d > %d: %w", len(p.Coefficients), d.gen_size, ErrCoefficientCount)
	case d.rank == d.gen_size:
		return xerrors.Errorf("generation %d: %w", d.gen_id, ErrMatrixFull)
	}
	return nil
}

// decode runs Gauss-Jordan over copies of the matrices so a failed attempt
// leaves the collected rows intact.
func (d *Decoder) decode() error {
	if d.state == Decoded {
		return nil
	}
	if !d.CanDecode() {
		return xerrors.Errorf("rank %d of %d: %w", d.rank, d.gen_size, ErrNotDecodable)
	}

	coeffs := gf.CopyMatrix(d.coeffs)
	payloads := gf.CopyMatrix(d.payloads)
	if err := d.field.GaussJordan(coeffs, payloads); err != nil {
		return util.WrapErr("decode generation", err)
	}

	d.decoded = payloads
	d.state = Decoded
	d.stats.GenerationsDecoded++
	log.Debugw("generation decoded", "generation", d.gen_id, "received", d.stats.Received)
	return nil
}

// Decoded returns the source packets in slot order, decoding first if the
// rank allows it. It returns nil while the generation is not decodable.
// The returned packets are shared with the decoder and must not be modified.
func (d *Decoder) Decoded() [][]byte {
	if d.state == Decodable {
		if err := d.decode(); err != nil {
			log.Errorw("decode failed", "generation", d.gen_id, "err", err)
		}
	}
	if d.state != Decoded {
		return nil
	}
	out := make([][]byte, len(d.decoded))
	copy(out, d.decoded)
	return out
}

// Recovered returns source slot ix if it is already known, which can happen
// well before full rank (uncoded packets, lucky combinations).
func (d *Decoder) Recovered(ix int) ([]byte, bool) {
	if ix < 0 || ix >= d.gen_size {
		return nil, false
	}
	if d.state == Decoded {
		return append([]byte(nil), d.decoded[ix]...), true
	}
	for r := 0; r < d.rank; r++ {
		if d.pivots[r] == ix && d.isUnitRow(r) {
			return append([]byte(nil), d.payloads[r]...), true
		}
	}
	return nil, false
}

// Missing lists the slots that are not recovered yet.
func (d *Decoder) Missing() []int {
	if d.state == Decoded {
		return nil
	}
	known := make([]bool, d.gen_size)
	for r := 0; r < d.rank; r++ {
		if d.isUnitRow(r) {
			known[d.pivots[r]] = true
		}
	}
	var missing []int
	for ix, ok := range known {
		if !ok {
			missing = append(missing, ix)
		}
	}
	return missing
}

// Rows are normalised, so a unit row is one whose only nonzero is its pivot.
func (d *Decoder) isUnitRow(r int) bool {
	for col, c := range d.coeffs[r] {
		if c != 0 && col != d.pivots[r] {
			return false
		}
	}
	return true
}

// NextGeneration zeroes the matrices and moves on to the next id.
func (d *Decoder) NextGeneration() {
	for r := range d.coeffs {
		clear(d.coeffs[r])
		clear(d.payloads[r])
	}
	d.rank = 0
	d.state = Collecting
	d.decoded = nil
	d.gen_id++
	log.Debugw("next generation", "generation", d.gen_id)
}
