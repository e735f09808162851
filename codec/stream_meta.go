package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"golang.org/x/xerrors"

	u "github.com/moratsam/rlnc/util"
)

const (
	streamVersion = 1
	metaSize      = 4 + 1 + 2 + 2 + 2 + 2 + 8 + 4
)

var streamMagic = []byte("RLNC")

var (
	ErrBadMagic   = xerrors.New("not a coded stream")
	ErrVersion    = xerrors.New("unsupported stream version")
	ErrStreamMeta = xerrors.New("invalid stream header")
)

// StreamMeta heads every coded stream. Everything a decoder needs to
// rebuild the file is in here; the coded packets follow as frames.
type StreamMeta struct {
	Version         uint8
	Poly            uint16 // Field polynomial the packets were coded in.
	GenerationSize  uint16
	PacketSize      uint16
	Redundancy      uint16 // Coded packets per generation beyond GenerationSize.
	FileSize        uint64
	GenerationCount uint32
}

// GenerationBytes is the number of file bytes one generation carries.
func (m StreamMeta) GenerationBytes() int64 {
	return int64(m.GenerationSize) * int64(m.PacketSize)
}

// PacketsPerGeneration is the number of frames the encoder wrote per generation.
func (m StreamMeta) PacketsPerGeneration() int {
	return int(m.GenerationSize) + int(m.Redundancy)
}

func (m StreamMeta) validate() error {
	switch {
	case m.GenerationSize == 0 || m.GenerationSize > 255:
		return xerrors.Errorf("generation size %d: %w", m.GenerationSize, ErrStreamMeta)
	case m.PacketSize == 0:
		return xerrors.Errorf("packet size 0: %w", ErrStreamMeta)
	case u.CeilDiv(int64(m.FileSize), m.GenerationBytes()) != int64(m.GenerationCount):
		return xerrors.Errorf("%d generations for %d bytes: %w", m.GenerationCount, m.FileSize, ErrStreamMeta)
	}
	return nil
}

func (m StreamMeta) marshal() []byte {
	data := make([]byte, metaSize)
	copy(data, streamMagic)
	data[4] = m.Version
	binary.BigEndian.PutUint16(data[5:], m.Poly)
	binary.BigEndian.PutUint16(data[7:], m.GenerationSize)
	binary.BigEndian.PutUint16(data[9:], m.PacketSize)
	binary.BigEndian.PutUint16(data[11:], m.Redundancy)
	binary.BigEndian.PutUint64(data[13:], m.FileSize)
	binary.BigEndian.PutUint32(data[21:], m.GenerationCount)
	return data
}

func unmarshalMeta(data []byte) (StreamMeta, error) {
	if len(data) < metaSize || !bytes.Equal(data[:4], streamMagic) {
		return StreamMeta{}, ErrBadMagic
	}
	m := StreamMeta{
		Version:         data[4],
		Poly:            binary.BigEndian.Uint16(data[5:]),
		GenerationSize:  binary.BigEndian.Uint16(data[7:]),
		PacketSize:      binary.BigEndian.Uint16(data[9:]),
		Redundancy:      binary.BigEndian.Uint16(data[11:]),
		FileSize:        binary.BigEndian.Uint64(data[13:]),
		GenerationCount: binary.BigEndian.Uint32(data[21:]),
	}
	if m.Version != streamVersion {
		return StreamMeta{}, xerrors.Errorf("version %d: %w", m.Version, ErrVersion)
	}
	return m, m.validate()
}

func writeStreamMeta(w io.Writer, m StreamMeta) error {
	if _, err := w.Write(m.marshal()); err != nil {
		return u.WrapErr("write stream meta", err)
	}
	return nil
}

func readStreamMeta(r io.Reader) (StreamMeta, error) {
	data := make([]byte, metaSize)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return StreamMeta{}, ErrBadMagic
		}
		return StreamMeta{}, u.WrapErr("read stream meta", err)
	}
	return unmarshalMeta(data)
}

func (m StreamMeta) String() string {
	return fmt.Sprintf("version=%d poly=%#x generation_size=%d packet_size=%d redundancy=%d file_size=%d generations=%d",
		m.Version, m.Poly, m.GenerationSize, m.PacketSize, m.Redundancy, m.FileSize, m.GenerationCount)
}
