package gf

import (
	"golang.org/x/xerrors"
)

// NewMatrix allocates a zeroed rows x cols matrix backed by one slice.
func NewMatrix(rows, cols int) [][]byte {
	backing := make([]byte, rows*cols)
	mat := make([][]byte, rows)
	for i := range mat {
		mat[i] = backing[i*cols : (i+1)*cols : (i+1)*cols]
	}
	return mat
}

// CopyMatrix returns a deep copy of mat.
func CopyMatrix(mat [][]byte) [][]byte {
	if len(mat) == 0 {
		return nil
	}
	cp := NewMatrix(len(mat), len(mat[0]))
	for i := range mat {
		copy(cp[i], mat[i])
	}
	return cp
}

// Rank computes the rank of mat by forward elimination on a copy.
func (f *Field) Rank(mat [][]byte) int {
	if len(mat) == 0 {
		return 0
	}
	m := CopyMatrix(mat)
	rows, cols := len(m), len(m[0])

	rank := 0
	for col := 0; col < cols && rank < rows; col++ {
		pivot_row := rank
		for pivot_row < rows && m[pivot_row][col] == 0 {
			pivot_row++
		}
		if pivot_row == rows {
			continue
		}
		inv, err := f.Inv(m[pivot_row][col])
		if err != nil {
			continue
		}
		m[rank], m[pivot_row] = m[pivot_row], m[rank]

		// Destroy every entry below the pivot.
		for r := rank + 1; r < rows; r++ {
			if m[r][col] == 0 {
				continue
			}
			f.AddScaled(m[r][col:], m[rank][col:], f.Mul(m[r][col], inv))
		}
		rank++
	}
	return rank
}

// GaussJordan reduces the square coefficient matrix coeffs to the identity,
// applying every row operation to payloads as well. On success payloads[i]
// holds the solution for unknown i. Both matrices are modified in place; on
// ErrSingular their content is unspecified.
func (f *Field) GaussJordan(coeffs, payloads [][]byte) error {
	dim := len(coeffs)
	if len(payloads) != dim {
		return xerrors.Errorf("%d coefficient rows but %d payload rows", dim, len(payloads))
	}

	for i := 0; i < dim; i++ {
		if len(coeffs[i]) != dim {
			return xerrors.Errorf("row %d has %d coefficients, want %d", i, len(coeffs[i]), dim)
		}
		// Find a nonzero entry at or below the diagonal and swap it into place.
		pivot_row := i
		for pivot_row < dim && coeffs[pivot_row][i] == 0 {
			pivot_row++
		}
		if pivot_row == dim {
			return xerrors.Errorf("no pivot in column %d: %w", i, ErrSingular)
		}
		if pivot_row != i {
			coeffs[i], coeffs[pivot_row] = coeffs[pivot_row], coeffs[i]
			payloads[i], payloads[pivot_row] = payloads[pivot_row], payloads[i]
		}

		// Normalise the pivot row.
		inv, err := f.Inv(coeffs[i][i])
		if err != nil {
			return xerrors.Errorf("pivot %d: %w", i, ErrSingular)
		}
		f.Scale(coeffs[i], inv)
		f.Scale(payloads[i], inv)

		// Eliminate the pivot column from every other row.
		for r := 0; r < dim; r++ {
			if r == i || coeffs[r][i] == 0 {
				continue
			}
			factor := coeffs[r][i]
			f.AddScaled(coeffs[r], coeffs[i], factor)
			f.AddScaled(payloads[r], payloads[i], factor)
		}
	}
	return nil
}

// Invert returns the inverse of the square matrix mat, leaving mat untouched.
func (f *Field) Invert(mat [][]byte) ([][]byte, error) {
	dim := len(mat)
	side := NewMatrix(dim, dim) // identity on the side becomes the inverse
	for i := range side {
		side[i][i] = 1
	}
	if err := f.GaussJordan(CopyMatrix(mat), side); err != nil {
		return nil, err
	}
	return side, nil
}

// MulMatrix returns a*b, where the rows of b may be payloads of any length.
func (f *Field) MulMatrix(a, b [][]byte) [][]byte {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := NewMatrix(len(a), len(b[0]))
	for i, row := range a {
		for k, c := range row {
			if k < len(b) {
				f.AddScaled(out[i], b[k], c)
			}
		}
	}
	return out
}
