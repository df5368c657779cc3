package round

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitmentLifecycle(t *testing.T) {
	c, err := NewCommitment()
	require.NoError(t, err)

	assert.Len(t, c.Hash, 64)
	assert.Empty(t, c.Secret(), "secret must stay hidden until reveal")

	now := time.Now()
	secret := c.Reveal(now)
	require.NotEmpty(t, secret)
	assert.Equal(t, secret, c.Secret())
	assert.Equal(t, now, c.RevealedAt)

	// A second reveal must not move the timestamp.
	c.Reveal(now.Add(time.Hour))
	assert.Equal(t, now, c.RevealedAt)

	assert.True(t, VerifyCommitment(secret, c.Hash))
	assert.False(t, VerifyCommitment(secret+"x", c.Hash))
}

func TestCommitmentsAreUnique(t *testing.T) {
	a, err := NewCommitment()
	require.NoError(t, err)
	b, err := NewCommitment()
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash, b.Hash)
}

func TestWheelSettle(t *testing.T) {
	in := PublicInputs{RoundID: "r-123", Sequence: 7}

	t.Run("deterministic", func(t *testing.T) {
		s := WheelStrategy{Slots: 37}
		first := s.Settle("secret", in)
		for i := 0; i < 10; i++ {
			assert.Equal(t, first, s.Settle("secret", in))
		}
	})

	t.Run("in range", func(t *testing.T) {
		for _, slots := range []int{2, 10, 37, 54} {
			s := WheelStrategy{Slots: slots}
			for seq := uint64(0); seq < 100; seq++ {
				out := s.Settle("secret", PublicInputs{RoundID: "r", Sequence: seq})
				assert.GreaterOrEqual(t, out.Index, 0)
				assert.Less(t, out.Index, slots)
			}
		}
	})

	t.Run("inputs change the outcome", func(t *testing.T) {
		s := WheelStrategy{Slots: 1 << 16}
		a := s.Settle("secret", PublicInputs{RoundID: "r", Sequence: 1})
		b := s.Settle("secret", PublicInputs{RoundID: "r", Sequence: 2})
		c := s.Settle("other", PublicInputs{RoundID: "r", Sequence: 1})
		assert.NotEqual(t, a, b)
		assert.NotEqual(t, a, c)
	})

	t.Run("zero slots falls back to default", func(t *testing.T) {
		out := WheelStrategy{}.Settle("secret", in)
		assert.Less(t, out.Index, 37)
	})
}

func TestCrashSettle(t *testing.T) {
	s := CrashStrategy{HouseEdge: 0.03, MaxPoint: 1000}

	t.Run("deterministic", func(t *testing.T) {
		in := PublicInputs{RoundID: "r-1", Sequence: 1}
		first := s.Settle("secret", in)
		assert.Equal(t, first, s.Settle("secret", in))
	})

	t.Run("bounded and cent-aligned", func(t *testing.T) {
		for seq := uint64(0); seq < 500; seq++ {
			out := s.Settle("secret", PublicInputs{RoundID: "r", Sequence: seq})
			assert.GreaterOrEqual(t, out.CrashPoint, 1.0)
			assert.LessOrEqual(t, out.CrashPoint, 1000.0)

			cents := out.CrashPoint * 100
			assert.InDelta(t, cents, float64(int64(cents+0.5)), 1e-6)
		}
	})

	t.Run("cap applies", func(t *testing.T) {
		capped := CrashStrategy{HouseEdge: 0.03, MaxPoint: 2}
		for seq := uint64(0); seq < 500; seq++ {
			out := capped.Settle("secret", PublicInputs{RoundID: "r", Sequence: seq})
			assert.LessOrEqual(t, out.CrashPoint, 2.0)
		}
	})
}

func TestGrowthAt(t *testing.T) {
	assert.Equal(t, 1.0, GrowthAt(1.0, 0.01, 0))

	t.Run("strictly increasing", func(t *testing.T) {
		prev := GrowthAt(1.0, 0.01, 0)
		for n := uint64(1); n < 1000; n++ {
			m := GrowthAt(1.0, 0.01, n)
			require.Greater(t, m, prev, "tick %d", n)
			prev = m
		}
	})

	t.Run("floor below one is clamped", func(t *testing.T) {
		assert.Equal(t, 1.0, GrowthAt(0, 0.01, 0))
	})
}
