package gf

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func randomMatrix(rng *rand.Rand, rows, cols int) [][]byte {
	m := NewMatrix(rows, cols)
	for i := range m {
		rng.Read(m[i])
	}
	return m
}

func TestRank(t *testing.T) {
	f := Default()

	assert.Equal(t, 0, f.Rank(nil))
	assert.Equal(t, 0, f.Rank(NewMatrix(3, 3)))

	id := NewMatrix(4, 4)
	for i := range id {
		id[i][i] = 1
	}
	assert.Equal(t, 4, f.Rank(id))

	// Third row is row0 + 2*row1.
	dep := [][]byte{
		{1, 2, 3},
		{4, 5, 6},
		{0, 0, 0},
	}
	copy(dep[2], dep[0])
	f.AddScaled(dep[2], dep[1], 2)
	assert.Equal(t, 2, f.Rank(dep))
	assert.Equal(t, []byte{1, 2, 3}, dep[0], "rank must not modify its input")

	// Pivot search has to skip a zero column.
	assert.Equal(t, 2, f.Rank([][]byte{{0, 1, 0}, {0, 0, 1}, {0, 1, 1}}))

	// The pivot of the first column sits in the last row.
	assert.Equal(t, 3, f.Rank([][]byte{{0, 0, 7}, {0, 3, 1}, {5, 9, 2}}))
	assert.Equal(t, 2, f.Rank([][]byte{{0, 0, 0, 4}, {0, 0, 0, 0}, {0, 0, 0, 8}, {0, 6, 0, 0}}))
}

func TestGaussJordanSolves(t *testing.T) {
	f := Default()
	rng := rand.New(rand.NewSource(7))

	for _, dim := range []int{1, 2, 5, 16} {
		var coeffs [][]byte
		for {
			coeffs = randomMatrix(rng, dim, dim)
			if f.Rank(coeffs) == dim {
				break
			}
		}
		src := randomMatrix(rng, dim, 32)
		enc := f.MulMatrix(coeffs, src)

		work := CopyMatrix(coeffs)
		require.NoError(t, f.GaussJordan(work, enc))
		assert.Equal(t, src, enc, "dim %d", dim)
		for i := range work {
			for j := range work[i] {
				if i == j {
					assert.Equal(t, byte(1), work[i][j])
				} else {
					assert.Equal(t, byte(0), work[i][j])
				}
			}
		}
	}
}

func TestGaussJordanSwapsRows(t *testing.T) {
	f := Default()
	coeffs := [][]byte{{0, 1}, {1, 0}}
	payloads := [][]byte{{0xAA}, {0xBB}}
	require.NoError(t, f.GaussJordan(coeffs, payloads))
	assert.Equal(t, [][]byte{{0xBB}, {0xAA}}, payloads)
}

func TestGaussJordanSingular(t *testing.T) {
	f := Default()
	coeffs := [][]byte{{1, 2}, {2, 4}} // second row = 2 * first row
	payloads := [][]byte{{1}, {2}}
	err := f.GaussJordan(coeffs, payloads)
	assert.True(t, xerrors.Is(err, ErrSingular))

	err = f.GaussJordan([][]byte{{1}}, nil)
	assert.Error(t, err)
}

func TestInvert(t *testing.T) {
	f := Default()
	rng := rand.New(rand.NewSource(11))

	var m [][]byte
	for {
		m = randomMatrix(rng, 6, 6)
		if f.Rank(m) == 6 {
			break
		}
	}
	orig := CopyMatrix(m)
	inv, err := f.Invert(m)
	require.NoError(t, err)
	assert.Equal(t, orig, m)

	prod := f.MulMatrix(m, inv)
	for i := range prod {
		for j := range prod[i] {
			want := byte(0)
			if i == j {
				want = 1
			}
			assert.Equal(t, want, prod[i][j])
		}
	}

	_, err = f.Invert([][]byte{{0, 0}, {0, 1}})
	assert.True(t, xerrors.Is(err, ErrSingular))
}
