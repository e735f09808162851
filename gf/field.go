// Package gf implements arithmetic over the galois field 2^8.
//
// Multiplication and division go through log and exp tables which are built
// once per field and never written to afterwards, so a *Field can be shared
// freely between encoders and decoders.
package gf

import (
	"sync"

	"golang.org/x/xerrors"
)

const (
	// PolyRLNC is x^8+x^4+x^3+x^2+1, the polynomial used on the wire.
	PolyRLNC uint16 = 0x11d
	// PolyAES is x^8+x^4+x^3+x+1.
	PolyAES uint16 = 0x11b

	order = 255 // Size of the multiplicative group.
)

var (
	ErrDivideByZero  = xerrors.New("division by zero element")
	ErrNotPrimitive  = xerrors.New("generator is not primitive")
	ErrBadPolynomial = xerrors.New("polynomial is not of degree 8")
	ErrSingular      = xerrors.New("matrix is singular")
)

type Field struct {
	poly      uint16
	generator byte
	exp_table [2 * (order + 1)]byte
	log_table [order + 1]byte
}

var (
	defaultOnce, aesOnce   sync.Once
	defaultField, aesField *Field
)

// Default returns the shared field over PolyRLNC with generator 2.
func Default() *Field {
	defaultOnce.Do(func() {
		defaultField = mustNew(PolyRLNC, 0x02)
	})
	return defaultField
}

// AES returns the shared field over PolyAES with generator 3.
func AES() *Field {
	aesOnce.Do(func() {
		aesField = mustNew(PolyAES, 0x03)
	})
	return aesField
}

// ByName maps a configuration name onto one of the shared fields.
func ByName(name string) (*Field, bool) {
	switch name {
	case "", "rlnc":
		return Default(), true
	case "aes":
		return AES(), true
	default:
		return nil, false
	}
}

// ByPoly returns the shared field built over poly.
func ByPoly(poly uint16) (*Field, bool) {
	switch poly {
	case PolyRLNC:
		return Default(), true
	case PolyAES:
		return AES(), true
	default:
		return nil, false
	}
}

// New builds the log and exp tables of GF(2^8) modulo poly, using generator
// as the primitive element.
func New(poly uint16, generator byte) (*Field, error) {
	if poly>>8 != 1 {
		return nil, xerrors.Errorf("0x%x: %w", poly, ErrBadPolynomial)
	}
	f := &Field{poly: poly, generator: generator}

	seen := [order + 1]bool{}
	x := byte(1)
	for i := 0; i < order; i++ {
		if seen[x] {
			return nil, xerrors.Errorf("generator 0x%02x cycles after %d steps: %w", generator, i, ErrNotPrimitive)
		}
		seen[x] = true
		f.exp_table[i] = x
		f.log_table[x] = byte(i)
		x = mulCostly(x, generator, poly)
	}
	if x != 1 || generator == 0 {
		return nil, xerrors.Errorf("generator 0x%02x: %w", generator, ErrNotPrimitive)
	}
	// Second copy so that log[a]+log[b] never needs a modulo.
	for i := order; i < len(f.exp_table); i++ {
		f.exp_table[i] = f.exp_table[i-order]
	}
	return f, nil
}

func mustNew(poly uint16, generator byte) *Field {
	f, err := New(poly, generator)
	if err != nil {
		panic(err)
	}
	return f
}

func (f *Field) Poly() uint16    { return f.poly }
func (f *Field) Generator() byte { return f.generator }

// Exp returns generator^i.
func (f *Field) Exp(i int) byte {
	i %= order
	if i < 0 {
		i += order
	}
	return f.exp_table[i]
}

// Tables returns copies of the exp and log tables, for code that multiplies
// outside of Go.
func (f *Field) Tables() ([]byte, []byte) {
	exp_table := append([]byte(nil), f.exp_table[:]...)
	log_table := append([]byte(nil), f.log_table[:]...)
	return exp_table, log_table
}

// Log returns the discrete logarithm of a. Log(0) is undefined and reported as 0.
func (f *Field) Log(a byte) int {
	return int(f.log_table[a])
}

func (f *Field) Add(a, b byte) byte {
	return a ^ b
}

func (f *Field) Sub(a, b byte) byte {
	return a ^ b
}

func (f *Field) Mul(a, b byte) byte {
	if a == 0 || b == 0 {
		return 0
	}
	return f.exp_table[int(f.log_table[a])+int(f.log_table[b])]
}

func (f *Field) Div(a, b byte) (byte, error) {
	if b == 0 {
		return 0, ErrDivideByZero
	}
	if a == 0 {
		return 0, nil
	}
	return f.exp_table[int(f.log_table[a])+order-int(f.log_table[b])], nil
}

func (f *Field) Inv(a byte) (byte, error) {
	if a == 0 {
		return 0, ErrDivideByZero
	}
	return f.exp_table[order-int(f.log_table[a])], nil
}

//-----------------------------------------

// mulCostly multiplies without tables: carry-less product, then reduction
// modulo the polynomial. Only used while building the tables.
func mulCostly(a, b byte, poly uint16) byte {
	result := 0
	for i := 0; a>>i > 0; i++ { // iterate over the bits of a
		if a&(1<<i) > 0 {
			result ^= int(b) << i
		}
	}

	len1, len2 := length(result), length(int(poly))
	if len1 < len2 {
		return byte(result)
	}
	for i := len1 - len2; i > -1; i-- { // while result is not smaller than the polynomial
		if result&(1<<(i+len2-1)) > 0 {
			result ^= int(poly) << i // align divisor with the result and subtract it
		}
	}
	return byte(result)
}

// Bit length.
func length(a int) int {
	result := 0
	for i := 0; a>>i > 0; i++ {
		result++
	}
	return result
}
