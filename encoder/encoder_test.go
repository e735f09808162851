package encoder

import (
	"math/rand"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"github.com/moratsam/rlnc/gf"
)

func newTestEncoder(t *testing.T, n, p int) *Encoder {
	t.Helper()
	e, err := New(n, p, WithRand(rand.New(rand.NewSource(1))))
	require.NoError(t, err)
	return e
}

func TestNewRejectsSizes(t *testing.T) {
	for _, tc := range []struct{ n, p int }{{0, 16}, {256, 16}, {4, 0}} {
		_, err := New(tc.n, tc.p)
		assert.True(t, xerrors.Is(err, ErrInvalidSize), "n=%d p=%d", tc.n, tc.p)
	}
}

func TestAddPacket(t *testing.T) {
	e := newTestEncoder(t, 2, 4)

	require.NoError(t, e.AddPacket([]byte{1, 2}, 10))
	assert.False(t, e.IsGenerationComplete())

	err := e.AddPacket([]byte{3}, 10)
	assert.True(t, xerrors.Is(err, ErrDuplicateSequence))

	require.NoError(t, e.AddPacket([]byte{1, 2, 3, 4, 5, 6}, 3))
	assert.True(t, e.IsGenerationComplete())
	assert.Equal(t, 2, e.PacketCount())

	err = e.AddPacket([]byte{7}, 4)
	assert.True(t, xerrors.Is(err, ErrGenerationFull))

	// Slots follow insertion order, not sequence number order.
	assert.Equal(t, []uint32{10, 3}, e.SequenceNumbers())
	ix, ok := e.Slot(3)
	assert.True(t, ok)
	assert.Equal(t, 1, ix)
	_, ok = e.Slot(4)
	assert.False(t, ok)
}

func TestAddPacketNormalisesLength(t *testing.T) {
	e := newTestEncoder(t, 2, 4)
	src := []byte{1, 2}
	require.NoError(t, e.AddPacket(src, 0))
	require.NoError(t, e.AddPacket([]byte{1, 2, 3, 4, 5, 6}, 1))
	src[0] = 99 // the encoder keeps its own copy

	p, err := e.GenerateUncodedPacket(0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 0, 0}, p.Payload)

	p, err = e.GenerateUncodedPacket(1)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, p.Payload)
}

func TestGenerateCodedPacket(t *testing.T) {
	f := gf.Default()
	e := newTestEncoder(t, 4, 8)

	_, err := e.GenerateCodedPacket()
	assert.True(t, xerrors.Is(err, ErrEmptyGeneration))

	srcs := [][]byte{
		{1, 2, 3, 4, 5, 6, 7, 8},
		{8, 7, 6, 5, 4, 3, 2, 1},
		{0, 0xFF, 0, 0xFF, 0, 0xFF, 0, 0xFF},
	}
	for i, s := range srcs {
		require.NoError(t, e.AddPacket(s, uint32(i)))
	}

	for round := 0; round < 50; round++ {
		p, err := e.GenerateCodedPacket()
		require.NoError(t, err)
		assert.Equal(t, uint32(0), p.GenerationID)
		assert.Equal(t, uint16(4), p.GenerationSize)
		require.Len(t, p.Coefficients, 4)
		require.Len(t, p.Payload, 8)

		// Buffered slots get nonzero coefficients, the empty one gets zero.
		for i := 0; i < 3; i++ {
			assert.NotZero(t, p.Coefficients[i])
		}
		assert.Zero(t, p.Coefficients[3])

		want := make([]byte, 8)
		for i, s := range srcs {
			f.AddScaled(want, s, p.Coefficients[i])
		}
		assert.Equal(t, want, p.Payload)
	}
	assert.Equal(t, 3, e.PacketCount(), "coding must not touch the buffer")
}

func TestGenerateUncodedPacket(t *testing.T) {
	e := newTestEncoder(t, 3, 2)
	require.NoError(t, e.AddPacket([]byte{5, 5}, 42))
	require.NoError(t, e.AddPacket([]byte{6, 6}, 7))

	p, err := e.GenerateUncodedPacket(7)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0}, p.Coefficients)
	assert.Equal(t, []byte{6, 6}, p.Payload)
	slot, ok := p.IsUncoded()
	assert.True(t, ok)
	assert.Equal(t, 1, slot)

	_, err = e.GenerateUncodedPacket(8)
	assert.True(t, xerrors.Is(err, ErrUnknownSequence))
}

func TestNextGeneration(t *testing.T) {
	e, err := New(2, 2, WithGeneration(41))
	require.NoError(t, err)
	require.NoError(t, e.AddPacket([]byte{1}, 0))
	require.NoError(t, e.AddPacket([]byte{2}, 1))

	e.NextGeneration()
	assert.Equal(t, uint32(42), e.GenerationID())
	assert.Equal(t, 0, e.PacketCount())
	assert.Empty(t, e.SequenceNumbers())

	// Sequence numbers of the previous generation are free again.
	require.NoError(t, e.AddPacket([]byte{3}, 0))
	p, err := e.GenerateCodedPacket()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), p.GenerationID)
}

func TestWithField(t *testing.T) {
	e, err := New(1, 1, WithField(gf.AES()), WithRand(rand.New(rand.NewSource(3))))
	require.NoError(t, err)
	require.NoError(t, e.AddPacket([]byte{0x53}, 0))
	p, err := e.GenerateCodedPacket()
	require.NoError(t, err)
	assert.Equal(t, gf.AES().Mul(0x53, p.Coefficients[0]), p.Payload[0])
}

func TestSeedFailure(t *testing.T) {
	broken := xerrors.New("entropy exhausted")
	saved := entropy
	entropy = iotest.ErrReader(broken)
	defer func() { entropy = saved }()

	_, err := New(2, 2)
	assert.True(t, xerrors.Is(err, broken))

	// An explicit source needs no seed.
	_, err = New(2, 2, WithRand(rand.New(rand.NewSource(1))))
	assert.NoError(t, err)
}

func TestReconfigure(t *testing.T) {
	e, err := New(2, 2, WithGeneration(5), WithRand(rand.New(rand.NewSource(2))))
	require.NoError(t, err)
	require.NoError(t, e.AddPacket([]byte{1, 1}, 0))

	require.NoError(t, e.Reconfigure(3, 4))
	assert.Equal(t, 3, e.GenerationSize())
	assert.Equal(t, 4, e.PacketSize())
	assert.Equal(t, uint32(5), e.GenerationID())
	assert.Equal(t, 0, e.PacketCount())

	for seq := uint32(0); seq < 3; seq++ {
		require.NoError(t, e.AddPacket([]byte{byte(seq + 1)}, seq))
	}
	assert.True(t, e.IsGenerationComplete())
	p, err := e.GenerateCodedPacket()
	require.NoError(t, err)
	assert.Len(t, p.Coefficients, 3)
	assert.Len(t, p.Payload, 4)
	assert.Equal(t, uint16(3), p.GenerationSize)

	err = e.Reconfigure(0, 4)
	assert.True(t, xerrors.Is(err, ErrInvalidSize))
	assert.Equal(t, 3, e.GenerationSize(), "a refused reconfigure keeps the old sizes")
}
