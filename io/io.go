package io

import (
	"bufio"
	"encoding/binary"
	"io"
	"os"

	"golang.org/x/xerrors"

	u "github.com/moratsam/rlnc/util"
)

// MaxFrameSize bounds the length prefix accepted by ReadFrame.
const MaxFrameSize = 1 << 24

var ErrFrameTooLarge = xerrors.New("frame exceeds maximum size")

// EOF is returned by ReadFrame at a clean end of input.
var EOF = io.EOF

func CreateFile(filepath string) (*os.File, error) {
	return os.Create(filepath)
}

func OpenFile(filepath string) (*os.File, error) {
	return os.Open(filepath)
}

func FileSize(filepath string) (int64, error) {
	fi, err := os.Stat(filepath)
	if err != nil {
		return 0, u.WrapErr("get stat", err)
	}
	return fi.Size(), nil
}

// ReadFrom reads up to chunk_size bytes, fewer only at the end of the input.
// At the end it returns an empty chunk and no error.
func ReadFrom(r io.Reader, chunk_size int64) ([]byte, error) {
	chunk := make([]byte, chunk_size)
	count, err := io.ReadFull(r, chunk)
	if err != nil && err != io.ErrUnexpectedEOF {
		if err == io.EOF {
			return make([]byte, 0), nil
		}
		return nil, u.WrapErr("read", err)
	}
	return chunk[:count], nil
}

func WriteTo(w io.Writer, chunk []byte) error {
	_, err := w.Write(chunk)
	return err
}

func WriteAt(w io.WriterAt, chunk []byte, off int64) error {
	_, err := w.WriteAt(chunk, off)
	return err
}

// WriteFrame writes data behind a big endian u32 length.
func WriteFrame(w io.Writer, data []byte) error {
	if len(data) > MaxFrameSize {
		return xerrors.Errorf("%d bytes: %w", len(data), ErrFrameTooLarge)
	}
	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(data)))
	if _, err := w.Write(hdr[:]); err != nil {
		return u.WrapErr("write frame header", err)
	}
	if _, err := w.Write(data); err != nil {
		return u.WrapErr("write frame", err)
	}
	return nil
}

// ReadFrame reads one frame written by WriteFrame. A clean end of input
// between frames is reported as io.EOF.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, u.WrapErr("read frame header", err)
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > MaxFrameSize {
		return nil, xerrors.Errorf("%d bytes: %w", n, ErrFrameTooLarge)
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, u.WrapErr("read frame", err)
	}
	return data, nil
}

// NewReader and NewWriter buffer file access for frame I/O.
func NewReader(r io.Reader) *bufio.Reader { return bufio.NewReader(r) }
func NewWriter(w io.Writer) *bufio.Writer { return bufio.NewWriter(w) }
