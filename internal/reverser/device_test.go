package reverser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
)

// observe draws n values of nextInt(bound) from seed.
func observe(seed uint64, bound int32, n int) []Call {
	r := lcg.FromState(lcg.Java, seed)
	calls := make([]Call, n)
	for i := range calls {
		calls[i] = NextInt(bound, r.NextInt(bound))
	}
	return calls
}

func TestDungeonShapedSequenceReplays(t *testing.T) {
	dev := NewDevice().AddCall(
		NextInt(16, 5),
		NextInt(256, 130),
		NextInt(16, 9),
		Consume(2, 1),
		Consume(2, 1),
	)
	require.EqualValues(t, 16, dev.Bits())
	require.EqualValues(t, 5, dev.Steps())

	s, err := dev.Stream(WithLimit(20))
	require.NoError(t, err)
	seeds := s.Take(0)
	require.Len(t, seeds, 20)
	for _, seed := range seeds {
		r := lcg.FromState(lcg.Java, seed)
		assert.EqualValues(t, 5, r.NextInt(16))
		assert.EqualValues(t, 130, r.NextInt(256))
		assert.EqualValues(t, 9, r.NextInt(16))
	}
	assert.False(t, s.Exhausted())
}

func TestRecoversOriginalSeed(t *testing.T) {
	for _, seed := range []uint64{0, 1, 0xDEADBEEF, 0x5DEECE66D, lcg.Mask, 123456789012345} {
		r := lcg.FromState(lcg.Java, seed)
		var calls []Call
		for i := 0; i < 3; i++ {
			calls = append(calls, NextInt(256, r.NextInt(256)))
		}
		r.NextInt(7)
		r.NextInt(7)
		calls = append(calls, Consume(7, 2), NextInt(10, r.NextInt(10)))
		for i := 0; i < 4; i++ {
			calls = append(calls, NextInt(64, r.NextInt(64)))
		}
		calls = append(calls, NextInt(16, r.NextInt(16)))

		dev := NewDevice().AddCall(calls...)
		require.True(t, dev.Verify(seed), "seed %#x", seed)

		s, err := dev.Stream()
		require.NoError(t, err)
		assert.Contains(t, s.Take(0), seed, "seed %#x", seed)
	}
}

func TestUniqueSolution(t *testing.T) {
	const seed = 0x1234_5678_9ABC
	dev := NewDevice().AddCall(observe(seed, 256, 10)...)
	s, err := dev.Stream()
	require.NoError(t, err)
	if diff := cmp.Diff([]uint64{seed}, s.Take(0)); diff != "" {
		t.Fatalf("seeds mismatch (-want +got):\n%s", diff)
	}
}

func TestConflictingCallsYieldNothing(t *testing.T) {
	calls := observe(0xCAFEBABE, 256, 10)
	v := calls[6].Value()
	calls[6] = NextInt(256, (v+1)%256)

	s, err := NewDevice().AddCall(calls...).Stream()
	require.NoError(t, err)
	assert.Empty(t, s.Take(0))
	assert.False(t, s.Exhausted())
}

func TestAlwaysFalseFilterYieldsNothing(t *testing.T) {
	dev := NewDevice().AddCall(observe(42, 256, 8)...)
	dev.AddCall(Filter(4, func(int32) bool { return false }))

	s, err := dev.Stream()
	require.NoError(t, err)
	assert.Empty(t, s.Take(0))
	assert.Positive(t, s.Examined())
}

func TestFilteredSkipDrawLimit(t *testing.T) {
	const seed = 0xABCDEF
	greedy := func(r *lcg.Rand) bool {
		for i := 0; i < 10; i++ {
			r.NextInt(100)
		}
		return true
	}

	base := observe(seed, 256, 8)

	rejected := NewDevice().AddCall(base...).AddCall(FilteredSkip(2, 3, greedy))
	s, err := rejected.Stream()
	require.NoError(t, err)
	assert.Empty(t, s.Take(0))

	accepted := NewDevice().AddCall(base...).AddCall(FilteredSkip(2, 64, greedy))
	require.True(t, accepted.Verify(seed))
	s, err = accepted.Stream()
	require.NoError(t, err)
	assert.Contains(t, s.Take(0), uint64(seed))
}

func TestFilteredSkipAdvancesDeclaredSteps(t *testing.T) {
	const seed = 77
	r := lcg.FromState(lcg.Java, seed)
	r.Skip(5)
	after := r.NextInt(256)

	dev := NewDevice().AddCall(FilteredSkip(5, 1, func(r *lcg.Rand) bool {
		return r.NextInt(2) >= 0
	}), NextInt(256, after))
	assert.True(t, dev.Verify(seed))
}

func TestUnconstrainedRequiresBound(t *testing.T) {
	dev := NewDevice().AddCall(Consume(16, 3), NextInt(1, 0))
	_, err := dev.Stream()
	require.True(t, errors.Is(err, ErrUnconstrained))

	s, err := dev.Stream(WithLimit(3))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, s.Take(0))
}

func TestBudgetExhaustion(t *testing.T) {
	dev := NewDevice().AddCall(Filter(1<<20, func(v int32) bool { return v == 1 }))
	s, err := dev.Stream(WithBudget(50))
	require.NoError(t, err)
	s.Take(0)
	assert.Equal(t, 50, s.Examined())
	assert.True(t, s.Exhausted())
}

func TestOneBitCallsStopWithinBudget(t *testing.T) {
	const seed = 0x1234_5678_9ABC
	const budget = 200_000
	dev := NewDevice().AddCall(observe(seed, 2, 48)...)
	require.Len(t, dev.constraints(), 48)

	s, err := dev.Stream(WithBudget(budget))
	require.NoError(t, err)
	got := s.Take(0)
	assert.LessOrEqual(t, s.Examined(), budget)
	for _, g := range got {
		assert.True(t, dev.Verify(g), "seed %#x", g)
	}
	if !s.Exhausted() {
		assert.Contains(t, got, uint64(seed))
	}
}

func TestEnumerationCountsTowardBudget(t *testing.T) {
	dev := NewDevice().AddCall(observe(0xFEED, 4, 30)...)
	s, err := dev.Stream(WithBudget(40))
	require.NoError(t, err)
	s.Take(0)
	assert.True(t, s.Exhausted())
	assert.LessOrEqual(t, s.Examined(), 40)
	assert.Positive(t, s.Examined())
}

func TestSurplusCallsAreReplayedNotFolded(t *testing.T) {
	const seed = 0x1234_5678_9ABC
	dev := NewDevice().AddCall(observe(seed, 16, 60)...)
	cons := dev.constraints()
	require.Len(t, cons, 14)
	assert.EqualValues(t, 1, cons[0].step)
	assert.EqualValues(t, 14, cons[13].step)

	s, err := dev.Stream(WithBudget(1_000_000))
	require.NoError(t, err)
	assert.Equal(t, []uint64{seed}, s.Take(0))
	assert.False(t, s.Exhausted())
}

func TestFoldPrefersRicherCalls(t *testing.T) {
	calls := observe(5, 2, 10)
	calls = append(calls, observe(6, 256, 7)...)
	dev := NewDevice().AddCall(calls...)
	cons := dev.constraints()
	require.Len(t, cons, 7)
	for i, c := range cons {
		assert.EqualValues(t, 8, c.bits)
		assert.EqualValues(t, 11+i, c.step)
	}
}

func TestStreamIsDeterministic(t *testing.T) {
	build := func() []uint64 {
		dev := NewDevice().AddCall(NextInt(16, 3), NextInt(64, 40), Consume(5, 1), NextInt(32, 17))
		s, err := dev.Stream(WithLimit(25))
		require.NoError(t, err)
		return s.Take(0)
	}
	first := build()
	require.Len(t, first, 25)
	assert.Equal(t, first, build())
}

func TestStreamIgnoresLaterCalls(t *testing.T) {
	dev := NewDevice().AddCall(observe(9, 256, 8)...)
	s, err := dev.Stream()
	require.NoError(t, err)
	dev.AddCall(Filter(2, func(int32) bool { return false }))
	assert.Contains(t, s.Take(0), uint64(9))
}

func TestCallInvariantsPanic(t *testing.T) {
	assert.Panics(t, func() { NextInt(0, 0) })
	assert.Panics(t, func() { NextInt(16, 16) })
	assert.Panics(t, func() { Consume(-1, 1) })
	assert.Panics(t, func() { FilteredSkip(1, 0, func(*lcg.Rand) bool { return true }) })
	assert.Panics(t, func() { NewDevice(WithLCG(lcg.LCG{Multiplier: 2, Addend: 1})) })
}

func TestCallBits(t *testing.T) {
	assert.EqualValues(t, 8, NextInt(256, 1).Bits())
	assert.EqualValues(t, 0, NextInt(10, 1).Bits())
	assert.EqualValues(t, 0, NextInt(1, 0).Bits())
	assert.EqualValues(t, 0, Consume(256, 4).Bits())
	assert.EqualValues(t, 4, Consume(256, 4).Steps())
}
