package relation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

type slice struct {
	vals []uint64
}

func (s *slice) Next() (uint64, bool) {
	if len(s.vals) == 0 {
		return 0, false
	}
	v := s.vals[0]
	s.vals = s.vals[1:]
	return v, true
}

type fixedSalt int64

func (f fixedSalt) Salt(string, mc.Version, mc.Biome) (int64, error) { return int64(f), nil }

func TestZeroSaltIsMultiplierXor(t *testing.T) {
	for _, prev := range []uint64{0, 1, 0xDEADBEEF, lcg.Mask} {
		assert.Equal(t, prev^lcg.Java.Multiplier, PopulationSeed(prev, 0))
	}
}

func TestDecoratorStateInvertsPopulationSeed(t *testing.T) {
	for _, salt := range []int64{0, 20003, 30002} {
		for _, pop := range []uint64{0, 5, 0xFFFF_FFFF_FFFF, 0x1234_5678_9ABC} {
			assert.Equal(t, pop, PopulationSeed(DecoratorState(pop, salt), salt))
		}
	}
}

func TestAttemptsRewindByRetryStep(t *testing.T) {
	var seen []uint64
	v := ValidatorFunc(func(pop uint64, x, z int32, ver mc.Version) (Sequence, error) {
		assert.EqualValues(t, 32, x)
		assert.EqualValues(t, -16, z)
		assert.Equal(t, mc.V1_16, ver)
		seen = append(seen, pop)
		return &slice{vals: []uint64{pop + 1}}, nil
	})
	tr := NewTransformer(fixedSalt(7), v)
	pos := Position{Decorator: "dungeon", ChunkX: 2, ChunkZ: -1, Biome: mc.Plains, Version: mc.V1_16}

	const start = 0xABCDEF
	out, err := tr.Transform(context.Background(), start, pos)
	require.NoError(t, err)
	require.Len(t, seen, DefaultRetries)
	require.Len(t, out, DefaultRetries)

	state := uint64(start)
	for i := 0; i < DefaultRetries; i++ {
		assert.Equal(t, PopulationSeed(state, 7), seen[i], "attempt %d", i)
		assert.Equal(t, seen[i]+1, out[i])
		state = lcg.Java.Advance(state, DefaultRetryStep)
	}
}

func TestStopOnConfirm(t *testing.T) {
	calls := 0
	v := ValidatorFunc(func(pop uint64, x, z int32, ver mc.Version) (Sequence, error) {
		calls++
		if calls == 3 {
			return &slice{vals: []uint64{99}}, nil
		}
		return &slice{}, nil
	})
	tr := &Transformer{Salts: fixedSalt(0), Validator: v, Retries: 8, StopOnConfirm: true}
	attempts, err := tr.Attempts(context.Background(), 1, Position{Version: mc.V1_16})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	require.Len(t, attempts, 3)
	assert.Equal(t, []uint64{99}, attempts[2].Seeds)
}

func TestAcceptFilters(t *testing.T) {
	v := ValidatorFunc(func(uint64, int32, int32, mc.Version) (Sequence, error) {
		return &slice{vals: []uint64{1, 2, 3, 4}}, nil
	})
	tr := &Transformer{Salts: fixedSalt(0), Validator: v, Retries: 1, Accept: func(s uint64) bool { return s%2 == 0 }}
	out, err := tr.Transform(context.Background(), 0, Position{Version: mc.V1_16})
	require.NoError(t, err)
	assert.Equal(t, []uint64{2, 4}, out)
}

func TestMissingSaltIsReported(t *testing.T) {
	v := ValidatorFunc(func(uint64, int32, int32, mc.Version) (Sequence, error) {
		t.Fatal("validator must not run without a salt")
		return nil, nil
	})
	tr := NewTransformer(tuning.Default(), v)
	_, err := tr.Transform(context.Background(), 0, Position{Decorator: "dungeon", Biome: mc.Plains, Version: mc.V1_12})
	require.Error(t, err)
	assert.True(t, errors.Is(err, tuning.ErrNoSalt))

	var gap *tuning.GapError
	require.True(t, errors.As(err, &gap))
	assert.Equal(t, mc.Plains, gap.Biome)
}

func TestValidatorErrorStopsTransform(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	v := ValidatorFunc(func(uint64, int32, int32, mc.Version) (Sequence, error) {
		calls++
		if calls == 2 {
			return nil, boom
		}
		return &slice{vals: []uint64{5}}, nil
	})
	tr := NewTransformer(fixedSalt(1), v)
	attempts, err := tr.Attempts(context.Background(), 0, Position{Version: mc.V1_16})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, attempts, 1)
}

func TestCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := ValidatorFunc(func(uint64, int32, int32, mc.Version) (Sequence, error) {
		return &slice{}, nil
	})
	_, err := NewTransformer(fixedSalt(0), v).Transform(ctx, 0, Position{Version: mc.V1_16})
	assert.ErrorIs(t, err, context.Canceled)
}
