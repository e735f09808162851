package gf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestKnownVectors(t *testing.T) {
	f := Default()

	assert.Equal(t, byte(0x99), f.Add(0x53, 0xCA))
	assert.Equal(t, byte(0x01), f.Add(0, 0x01))
	assert.Equal(t, byte(0x00), f.Add(0x01, 0x01))
	assert.Equal(t, byte(0x00), f.Add(0xFF, 0xFF))

	// 0x53 and 0xCA are inverses only modulo PolyAES.
	assert.Equal(t, byte(0x8F), f.Mul(0x53, 0xCA))
	assert.Equal(t, byte(0x01), AES().Mul(0x53, 0xCA))

	assert.Equal(t, byte(0), f.Mul(0, 0x01))
	assert.Equal(t, byte(0x01), f.Mul(0x01, 0x01))
	assert.Equal(t, byte(0x04), f.Mul(0x02, 0x02))
	assert.Equal(t, byte(0x1d), f.Mul(0x80, 0x02)) // x^8 reduces to x^4+x^3+x^2+1

	q, err := f.Div(0x01, 0x01)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), q)

	q, err = f.Div(0, 0x01)
	require.NoError(t, err)
	assert.Equal(t, byte(0), q)

	inv, err := f.Inv(0x01)
	require.NoError(t, err)
	assert.Equal(t, byte(0x01), inv)
}

func TestTables(t *testing.T) {
	for _, f := range []*Field{Default(), AES()} {
		assert.Equal(t, byte(1), f.Exp(0))
		assert.Equal(t, f.Exp(1), f.Generator())
		assert.Equal(t, f.Exp(0), f.Exp(255))
		assert.Equal(t, f.Exp(254), f.Exp(-1))
		for a := 1; a < 256; a++ {
			assert.Equal(t, byte(a), f.Exp(f.Log(byte(a))))
		}
	}
}

func TestDivideByZero(t *testing.T) {
	f := Default()
	for a := 0; a < 256; a++ {
		_, err := f.Div(byte(a), 0)
		assert.True(t, xerrors.Is(err, ErrDivideByZero))
	}
	_, err := f.Inv(0)
	assert.True(t, xerrors.Is(err, ErrDivideByZero))
}

func TestAxioms(t *testing.T) {
	for _, f := range []*Field{Default(), AES()} {
		for a := 0; a < 256; a++ {
			x := byte(a)
			if x != 0 {
				inv, err := f.Inv(x)
				require.NoError(t, err)
				require.Equal(t, byte(1), f.Mul(x, inv), "a=%d", a)
				one, err := f.Div(1, x)
				require.NoError(t, err)
				require.Equal(t, inv, one)
			}
			for b := 0; b < 256; b++ {
				y := byte(b)
				require.Equal(t, f.Add(x, y), f.Add(y, x))
				require.Equal(t, f.Add(x, y), f.Sub(x, y))
				require.Equal(t, f.Mul(x, y), f.Mul(y, x))
				require.Equal(t, f.Mul(x, y), mulCostly(x, y, f.Poly()))
				if y != 0 {
					q, err := f.Div(f.Mul(x, y), y)
					require.NoError(t, err)
					require.Equal(t, x, q, "a=%d b=%d", a, b)
				}
			}
		}
	}
}

func TestAssociativeDistributive(t *testing.T) {
	f := Default()
	for a := 0; a < 256; a++ {
		for b := 0; b < 256; b++ {
			for c := 0; c < 256; c += 7 {
				x, y, z := byte(a), byte(b), byte(c)
				require.Equal(t, f.Add(x, f.Add(y, z)), f.Add(f.Add(x, y), z))
				require.Equal(t, f.Mul(x, f.Mul(y, z)), f.Mul(f.Mul(x, y), z))
				require.Equal(t, f.Mul(x, f.Add(y, z)), f.Add(f.Mul(x, y), f.Mul(x, z)))
			}
		}
	}
}

func TestNew(t *testing.T) {
	f, err := New(PolyRLNC, 0x02)
	require.NoError(t, err)
	assert.Equal(t, Default().Mul(0x37, 0xA4), f.Mul(0x37, 0xA4))

	// 2 has order 51 modulo the AES polynomial.
	_, err = New(PolyAES, 0x02)
	assert.True(t, xerrors.Is(err, ErrNotPrimitive))

	_, err = New(PolyRLNC, 0x00)
	assert.True(t, xerrors.Is(err, ErrNotPrimitive))

	_, err = New(PolyRLNC, 0x01)
	assert.True(t, xerrors.Is(err, ErrNotPrimitive))

	_, err = New(0x1d, 0x02)
	assert.True(t, xerrors.Is(err, ErrBadPolynomial))
}

func TestByName(t *testing.T) {
	f, ok := ByName("rlnc")
	require.True(t, ok)
	assert.Same(t, Default(), f)

	f, ok = ByName("aes")
	require.True(t, ok)
	assert.Same(t, AES(), f)

	_, ok = ByName("gf16")
	assert.False(t, ok)

	f, ok = ByPoly(PolyAES)
	require.True(t, ok)
	assert.Same(t, AES(), f)
}

func TestSymbolOps(t *testing.T) {
	f := Default()
	src := []byte{0, 1, 2, 3, 0x80, 0xFF}

	dst := make([]byte, len(src))
	f.AddScaled(dst, src, 0x53)
	for i := range src {
		assert.Equal(t, f.Mul(src[i], 0x53), dst[i])
	}

	// Adding the same scaled symbol twice cancels out.
	f.AddScaled(dst, src, 0x53)
	assert.True(t, IsZero(dst))

	cp := append([]byte(nil), src...)
	f.Scale(cp, 0x1d)
	for i := range src {
		assert.Equal(t, f.Mul(src[i], 0x1d), cp[i])
	}
	f.Scale(cp, 0)
	assert.True(t, IsZero(cp))

	// Shorter destination is not overrun.
	short := make([]byte, 2)
	f.AddScaled(short, src, 1)
	assert.Equal(t, []byte{0, 1}, short)
}

func TestTablesAreCopies(t *testing.T) {
	f := Default()
	exp_table, log_table := f.Tables()
	require.Len(t, exp_table, 512)
	require.Len(t, log_table, 256)
	for a := 1; a < 256; a++ {
		for _, b := range []int{1, 2, 0x53, 0xFF} {
			assert.Equal(t, f.Mul(byte(a), byte(b)), exp_table[int(log_table[a])+int(log_table[b])])
		}
	}

	exp_table[1] ^= 0xFF
	assert.Equal(t, byte(0x04), f.Mul(2, 2))
}
