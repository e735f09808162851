package codec

import (
	"bufio"
	"context"
	"os"
	"sync"

	"github.com/moratsam/etherscan/pipeline"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/io"
	"github.com/moratsam/rlnc/packet"
	proc_unit "github.com/moratsam/rlnc/pu"
	u "github.com/moratsam/rlnc/util"
)

// StreamerCodec pushes generations through a pipeline whose middle stage is
// a pool of workers, each coding whole generations with its own PU call.
// Generations leave the pool in any order; every one of them is still written
// as a contiguous run of frames.
type StreamerCodec struct {
	params  Params
	new_pu  PUFactory
	workers int
}

func NewStreamerCodec(p Params, new_pu PUFactory, workers int) (*StreamerCodec, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	if workers < 1 {
		return nil, xerrors.Errorf("%d workers: %w", workers, ErrParams)
	}
	return &StreamerCodec{p, new_pu, workers}, nil
}

func (c *StreamerCodec) Encode(inpath, outpath string) error {
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
	pip := pipeline.New(
		pipeline.DynamicWorkerPool(&encodeStage{pu: pu, count: meta.PacketsPerGeneration()}, c.workers),
	)
	source := &encSource{r: io.NewReader(f), meta: meta, p: c.params}
	sink := &encSink{w: w}
	if err := pip.Process(context.Background(), source, sink); err != nil {
		return u.WrapErr("encoding process", err)
	}

	log.Infow("encoded", "input", inpath, "output", outpath, "bytes", fsize, "generations", meta.GenerationCount, "workers", c.workers)
	if err := w.Flush(); err != nil {
		return u.WrapErr("flush output", err)
	}
	return nil
}

// Decode collects each contiguous run of frames of one generation into a
// payload and hands it to the worker pool. It reads streams as Encode writes
// them. In an interleaved stream a generation is split over several runs,
// none of which may decode on its own, and the first such run aborts the
// whole stream; SequentialCodec decodes interleaved streams.
func (c *StreamerCodec) Decode(inpath, outpath string) error {
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

	pu, err := c.new_pu(params)
	if err != nil {
		return u.WrapErr("create processing unit", err)
	}
	defer closePU(pu)
	pip := pipeline.New(
		pipeline.DynamicWorkerPool(&decodeStage{pu: pu}, c.workers),
	)
	source := &decSource{r: r, meta: meta}
	sink := &decSink{out: out, meta: meta, done: make(map[uint32]bool)}
	if err := pip.Process(context.Background(), source, sink); err != nil {
		return u.WrapErr("decoding process", err)
	}

	if len(sink.done) < int(meta.GenerationCount) {
		return xerrors.Errorf("%d of %d generations decoded: %w", len(sink.done), meta.GenerationCount, ErrUndecodable)
	}
	if err := out.Truncate(int64(meta.FileSize)); err != nil {
		return u.WrapErr("truncate output", err)
	}
	log.Infow("decoded", "input", inpath, "output", outpath, "bytes", meta.FileSize, "generations", meta.GenerationCount, "workers", c.workers)
	return nil
}

var payloadPool = sync.Pool{New: func() interface{} { return new(generationPayload) }}

// generationPayload carries one generation through the pipeline: source
// packets and their coded form when encoding, the other way around when
// decoding.
type generationPayload struct {
	gen_id uint32
	src    [][]byte
	coded  []*packet.Coded
}

func (p *generationPayload) Clone() pipeline.Payload {
	cp := payloadPool.Get().(*generationPayload)
	cp.gen_id = p.gen_id
	cp.src = append(cp.src[:0], p.src...)
	cp.coded = append(cp.coded[:0], p.coded...)
	return cp
}

func (p *generationPayload) MarkAsProcessed() {
	p.src = p.src[:0]
	p.coded = p.coded[:0]
	payloadPool.Put(p)
}

// Encoding stage: source packets in, coded packets out.
type encodeStage struct {
	pu    proc_unit.PU
	count int
}

func (s *encodeStage) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*generationPayload)
	coded, err := s.pu.Encode(p.gen_id, p.src, s.count)
	if err != nil {
		return nil, u.WrapErr("encode generation", err)
	}
	p.coded = coded
	return p, nil
}

// Decoding stage: coded packets in, source packets out.
type decodeStage struct {
	pu proc_unit.PU
}

func (s *decodeStage) Process(_ context.Context, payload pipeline.Payload) (pipeline.Payload, error) {
	p := payload.(*generationPayload)
	src, err := s.pu.Decode(p.gen_id, p.coded)
	if err != nil {
		return nil, u.WrapErr("decode generation", err)
	}
	p.src = src
	return p, nil
}

// Source of the encoding pipeline, reads the input one generation at a time.
type encSource struct {
	r      *bufio.Reader
	meta   StreamMeta
	p      Params
	gen_id uint32
	cur    *generationPayload
	err    error
}

func (s *encSource) Error() error { return s.err }

func (s *encSource) Next(_ context.Context) bool {
	if s.err != nil || s.gen_id >= s.meta.GenerationCount {
		return false
	}
	chunk, err := io.ReadFrom(s.r, s.meta.GenerationBytes())
	if err != nil {
		s.err = err
		return false
	}
	s.cur = payloadPool.Get().(*generationPayload)
	s.cur.gen_id = s.gen_id
	s.cur.src = split(chunk, s.p.GenerationSize, s.p.PacketSize)
	s.gen_id++
	return true
}

func (s *encSource) Payload() pipeline.Payload { return s.cur }

// Sink of the encoding pipeline, writes every coded packet as a frame.
type encSink struct {
	w *bufio.Writer
}

func (s *encSink) Consume(_ context.Context, payload pipeline.Payload) error {
	p := payload.(*generationPayload)
	return writePackets(s.w, p.coded)
}

// Source of the decoding pipeline. Frames are read one ahead so a payload is
// complete once the generation id changes.
type decSource struct {
	r       *bufio.Reader
	meta    StreamMeta
	pending *packet.Coded
	cur     *generationPayload
	err     error
}

func (s *decSource) Error() error { return s.err }

func (s *decSource) Next(_ context.Context) bool {
	if s.err != nil {
		return false
	}
	for s.pending == nil {
		p, ok := s.read()
		if !ok {
			return false
		}
		s.pending = p
	}

	s.cur = payloadPool.Get().(*generationPayload)
	s.cur.gen_id = s.pending.GenerationID
	s.cur.coded = append(s.cur.coded[:0], s.pending)
	s.pending = nil
	for {
		p, ok := s.read()
		if !ok {
			break
		}
		if p.GenerationID != s.cur.gen_id {
			s.pending = p
			break
		}
		s.cur.coded = append(s.cur.coded, p)
	}
	return s.err == nil
}

func (s *decSource) Payload() pipeline.Payload { return s.cur }

// read returns the next usable packet. Unparsable frames and packets past
// the last generation are skipped.
func (s *decSource) read() (*packet.Coded, bool) {
	for {
		frame, err := io.ReadFrame(s.r)
		if err == io.EOF {
			return nil, false
		}
		if err != nil {
			s.err = err
			return nil, false
		}
		p, err := packet.Unmarshal(frame)
		if err != nil {
			log.Warnw("skipping frame", "err", err)
			continue
		}
		if p.GenerationID >= s.meta.GenerationCount {
			log.Warnw("skipping packet past last generation", "generation", p.GenerationID)
			continue
		}
		return p, true
	}
}

// Sink of the decoding pipeline, places every generation in the output file.
type decSink struct {
	out  *os.File
	meta StreamMeta
	done map[uint32]bool
}

func (s *decSink) Consume(_ context.Context, payload pipeline.Payload) error {
	p := payload.(*generationPayload)
	if s.done[p.gen_id] {
		return nil
	}
	if err := writeGeneration(s.out, s.meta, p.gen_id, p.src); err != nil {
		return err
	}
	s.done[p.gen_id] = true
	return nil
}
