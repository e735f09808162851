// Package util holds the small helpers shared by the rlnc packages.
package util

import (
	"encoding/binary"
	"io"

	"golang.org/x/xerrors"
)

// WrapErr prefixes err with msg, keeping it reachable for xerrors.Is.
func WrapErr(msg string, err error) error {
	return xerrors.Errorf("%s: %w", msg, err)
}

// CeilDiv returns a/b rounded up, for non-negative a and positive b.
func CeilDiv(a, b int64) int64 {
	return (a + b - 1) / b
}

// Seed reads a math/rand seed from r, usually crypto/rand.Reader.
func Seed(r io.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, WrapErr("read seed", err)
	}
	return int64(binary.LittleEndian.Uint64(b[:])), nil
}
