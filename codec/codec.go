// Package codec turns a file into a stream of coded packets and back.
//
// The file is cut into generations of GenerationSize packets of PacketSize
// bytes; the last generation is zero padded. Every generation is coded into
// GenerationSize+Redundancy packets, so up to Redundancy packets of each
// generation may be lost before the file can no longer be rebuilt.
package codec

import (
	"bufio"
	"os"

	logging "github.com/ipfs/go-log/v2"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/decoder"
	"github.com/moratsam/rlnc/gf"
	"github.com/moratsam/rlnc/io"
	"github.com/moratsam/rlnc/packet"
	proc_unit "github.com/moratsam/rlnc/pu"
	u "github.com/moratsam/rlnc/util"
)

var log = logging.Logger("rlnc/codec")

var (
	ErrUndecodable  = xerrors.New("stream is missing generations")
	ErrUnknownField = xerrors.New("stream coded in an unknown field")
	ErrParams       = xerrors.New("invalid codec parameters")
)

type Codec interface {
	Encode(inpath, outpath string) error
	Decode(inpath, outpath string) error
}

type Params struct {
	GenerationSize int
	PacketSize     int
	Redundancy     int
	Field          *gf.Field
}

func (p Params) validate() error {
	switch {
	case p.GenerationSize < 1 || p.GenerationSize > packet.MaxGenerationSize:
		return xerrors.Errorf("generation size %d: %w", p.GenerationSize, ErrParams)
	case p.PacketSize < 1 || p.PacketSize > 0xFFFF:
		return xerrors.Errorf("packet size %d: %w", p.PacketSize, ErrParams)
	case p.Redundancy < 0 || p.Redundancy > 0xFFFF:
		return xerrors.Errorf("redundancy %d: %w", p.Redundancy, ErrParams)
	case p.Field == nil:
		return xerrors.Errorf("no field: %w", ErrParams)
	}
	return nil
}

// PUFactory builds the processing unit for a stream. Decoding calls it with
// the parameters found in the stream header. A PU with a Close method is
// closed once the stream is done.
type PUFactory func(p Params) (proc_unit.PU, error)

func closePU(pu proc_unit.PU) {
	if c, ok := pu.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			log.Warnw("close processing unit", "err", err)
		}
	}
}

// SequentialCodec codes one generation at a time on the calling goroutine.
type SequentialCodec struct {
	params Params
	new_pu PUFactory
}

func NewCodec(p Params, new_pu PUFactory) (*SequentialCodec, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &SequentialCodec{p, new_pu}, nil
}

func (c *SequentialCodec) Encode(inpath, outpath string) error {
	f, err := io.OpenFile(inpath)
	if err != nil {
		return u.WrapErr("open input", err)
	}
	defer f.Close()

	fsize, err := io.FileSize(inpath)
	if err != nil {
		return err
	}
	meta := newStreamMeta(c.params, fsize)

	out, err := io.CreateFile(outpath)
	if err != nil {
		return u.WrapErr("create output", err)
	}
	defer out.Close()
	w := io.NewWriter(out)

	if err := writeStreamMeta(w, meta); err != nil {
		return err
	}

	pu, err := c.new_pu(c.params)
	if err != nil {
		return u.WrapErr("create processing unit", err)
	}
	defer closePU(pu)
	r := io.NewReader(f)
	for gen_id := uint32(0); gen_id < meta.GenerationCount; gen_id++ {
		chunk, err := io.ReadFrom(r, meta.GenerationBytes())
		if err != nil {
			return err
		}
		coded, err := pu.Encode(gen_id, split(chunk, c.params.GenerationSize, c.params.PacketSize), meta.PacketsPerGeneration())
		if err != nil {
			return u.WrapErr("encode generation", err)
		}
		if err := writePackets(w, coded); err != nil {
			return err
		}
	}

	log.Infow("encoded", "input", inpath, "output", outpath, "bytes", fsize, "generations", meta.GenerationCount)
	if err := w.Flush(); err != nil {
		return u.WrapErr("flush output", err)
	}
	return nil
}

// Decode feeds the frames of the stream to one decoder per open generation.
// Generations may be interleaved in the stream. Frames that do not parse or
// that a decoder rejects are logged and skipped.
func (c *SequentialCodec) Decode(inpath, outpath string) error {
	f, err := io.OpenFile(inpath)
	if err != nil {
		return u.WrapErr("open input", err)
	}
	defer f.Close()
	r := io.NewReader(f)

	meta, err := readStreamMeta(r)
	if err != nil {
		return err
	}
	params, err := paramsFromMeta(meta)
	if err != nil {
		return err
	}

	out, err := io.CreateFile(outpath)
	if err != nil {
		return u.WrapErr("create output", err)
	}
	defer out.Close()

	decs := make(map[uint32]*decoder.Decoder)
	done := make(map[uint32]bool)
	for {
		frame, err := io.ReadFrame(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		p, err := packet.Unmarshal(frame)
		if err != nil {
			log.Warnw("skipping frame", "err", err)
			continue
		}
		if p.GenerationID >= meta.GenerationCount {
			log.Warnw("skipping packet past last generation", "generation", p.GenerationID)
			continue
		}
		if done[p.GenerationID] {
			continue
		}

		dec, ok := decs[p.GenerationID]
		if !ok {
			dec, err = decoder.New(params.GenerationSize, params.PacketSize,
				decoder.WithGeneration(p.GenerationID), decoder.WithField(params.Field))
			if err != nil {
				return u.WrapErr("create decoder", err)
			}
			decs[p.GenerationID] = dec
		}
		if _, err := dec.Process(p); err != nil {
			log.Warnw("packet rejected", "generation", p.GenerationID, "err", err)
			continue
		}
		if !dec.CanDecode() {
			continue
		}

		data := dec.Decoded()
		if data == nil {
			return xerrors.Errorf("generation %d at full rank: %w", p.GenerationID, ErrUndecodable)
		}
		if err := writeGeneration(out, meta, p.GenerationID, data); err != nil {
			return err
		}
		done[p.GenerationID] = true
		delete(decs, p.GenerationID)
	}

	if len(done) < int(meta.GenerationCount) {
		return xerrors.Errorf("%d of %d generations decoded: %w", len(done), meta.GenerationCount, ErrUndecodable)
	}
	if err := out.Truncate(int64(meta.FileSize)); err != nil {
		return u.WrapErr("truncate output", err)
	}
	log.Infow("decoded", "input", inpath, "output", outpath, "bytes", meta.FileSize, "generations", meta.GenerationCount)
	return nil
}

func newStreamMeta(p Params, fsize int64) StreamMeta {
	gen_bytes := int64(p.GenerationSize) * int64(p.PacketSize)
	return StreamMeta{
		Version:         streamVersion,
		Poly:            p.Field.Poly(),
		GenerationSize:  uint16(p.GenerationSize),
		PacketSize:      uint16(p.PacketSize),
		Redundancy:      uint16(p.Redundancy),
		FileSize:        uint64(fsize),
		GenerationCount: uint32(u.CeilDiv(fsize, gen_bytes)),
	}
}

func paramsFromMeta(m StreamMeta) (Params, error) {
	field, ok := gf.ByPoly(m.Poly)
	if !ok {
		return Params{}, xerrors.Errorf("polynomial %#x: %w", m.Poly, ErrUnknownField)
	}
	return Params{
		GenerationSize: int(m.GenerationSize),
		PacketSize:     int(m.PacketSize),
		Redundancy:     int(m.Redundancy),
		Field:          field,
	}, nil
}

// split cuts chunk into n packets of size p, zero padding the tail.
func split(chunk []byte, n, p int) [][]byte {
	src := make([][]byte, n)
	for i := range src {
		src[i] = make([]byte, p)
		if off := i * p; off < len(chunk) {
			copy(src[i], chunk[off:])
		}
	}
	return src
}

func writePackets(w *bufio.Writer, coded []*packet.Coded) error {
	for _, p := range coded {
		data, err := p.MarshalBinary()
		if err != nil {
			return u.WrapErr("marshal packet", err)
		}
		if err := io.WriteFrame(w, data); err != nil {
			return err
		}
	}
	return nil
}

// writeGeneration puts the decoded packets of gen_id at their place in the
// output, dropping the padding past the end of the file.
func writeGeneration(out *os.File, m StreamMeta, gen_id uint32, data [][]byte) error {
	off := int64(gen_id) * m.GenerationBytes()
	left := int64(m.FileSize) - off
	buf := make([]byte, 0, m.GenerationBytes())
	for _, d := range data {
		buf = append(buf, d...)
	}
	if int64(len(buf)) > left {
		buf = buf[:left]
	}
	if err := io.WriteAt(out, buf, off); err != nil {
		return u.WrapErr("write generation", err)
	}
	return nil
}
