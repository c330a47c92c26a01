package dungeon

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/population"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/reverser"
	"github.com/QingLingXingKong/SeedCracker/internal/timemachine"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

var world = int64(-1234567890123456789)

func structureSeed() uint64 { return uint64(world) & lcg.Mask }

func newStorage() *cracker.DataStorage {
	return cracker.New(relation.NewTransformer(tuning.Default(), population.Validator{}))
}

func TestRecoversStructureSeed(t *testing.T) {
	cases := []struct {
		name    string
		version mc.Version
		biome   mc.Biome
		attempt int
	}{
		{"1.16 plains first attempt", mc.V1_16, mc.Plains, 0},
		{"1.14 desert fourth attempt", mc.V1_14, mc.Desert, 3},
		{"1.16 swamp third attempt", mc.V1_16, mc.Swamp, 2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs, err := Simulate(world, 5, -7, tc.biome, tc.version, nil, SimOptions{Attempt: tc.attempt, Cobblestone: 20})
			require.NoError(t, err)
			data, err := obs.Data(nil)
			require.NoError(t, err)
			require.Equal(t, 40, data.Bits())
			require.True(t, data.UsesFloor())

			ok, err := data.CanStart(structureSeed())
			require.NoError(t, err)
			require.True(t, ok)

			s := newStorage()
			out, err := s.Add(context.Background(), data)
			require.NoError(t, err)
			require.Empty(t, out.Skipped)
			require.Len(t, out.DecoratorStates, 1)
			assert.Contains(t, out.StructureSeeds, structureSeed())

			tm := s.TimeMachine()
			assert.Equal(t, timemachine.Biomes, tm.Phase())
			assert.Contains(t, tm.Results(timemachine.StructureSeeds), structureSeed())
		})
	}
}

func TestConfirmKeepsOnlyStartableSeeds(t *testing.T) {
	obs, err := Simulate(world, 5, -7, mc.Swamp, mc.V1_16, nil, SimOptions{Attempt: 2, Cobblestone: 20})
	require.NoError(t, err)
	data, err := obs.Data(nil)
	require.NoError(t, err)

	plain, err := newStorage().Add(context.Background(), data)
	require.NoError(t, err)

	confirmed := cracker.New(relation.NewTransformer(tuning.Default(), population.Validator{}), cracker.WithConfirm(true))
	out, err := confirmed.Add(context.Background(), data)
	require.NoError(t, err)
	require.NotEmpty(t, out.StructureSeeds)
	assert.Contains(t, out.StructureSeeds, structureSeed())
	assert.Subset(t, plain.StructureSeeds, out.StructureSeeds)
	for _, seed := range out.StructureSeeds {
		ok, err := data.CanStart(seed)
		require.NoError(t, err)
		assert.True(t, ok, "seed %d", seed)
	}
}

func TestStopOnConfirmKeepsFirstAttemptSeed(t *testing.T) {
	obs, err := Simulate(world, 5, -7, mc.Plains, mc.V1_16, nil, SimOptions{Cobblestone: 20})
	require.NoError(t, err)
	data, err := obs.Data(nil)
	require.NoError(t, err)

	plain, err := newStorage().Add(context.Background(), data)
	require.NoError(t, err)

	s := cracker.New(relation.NewTransformer(tuning.Default(), population.Validator{}),
		cracker.WithConfirm(true), cracker.WithStopOnConfirm(true))
	out, err := s.Add(context.Background(), data)
	require.NoError(t, err)
	assert.Contains(t, out.StructureSeeds, structureSeed())
	assert.Subset(t, plain.StructureSeeds, out.StructureSeeds)
}

func TestSecondObservationIsShortCircuited(t *testing.T) {
	obs, err := Simulate(world, 1, 1, mc.Forest, mc.V1_16, nil, SimOptions{Cobblestone: 20})
	require.NoError(t, err)
	data, err := obs.Data(nil)
	require.NoError(t, err)

	s := newStorage()
	s.TimeMachine().RecordResult(timemachine.StructureSeeds, 1)

	out, err := s.Add(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, skipKnown, out.Skipped)
	assert.Equal(t, timemachine.Structures, s.TimeMachine().Phase())
}

func TestSkipsUnusableObservations(t *testing.T) {
	dec := New(mc.V1_16, nil)

	shortFloor := dec.At(10, 40, 10, Size{}, []FloorCall{Cobblestone, Mossy, Cobblestone}, mc.Plains)
	out, err := newStorage().Add(context.Background(), shortFloor)
	require.NoError(t, err)
	assert.Equal(t, skipFloor, out.Skipped)

	floor := make([]FloorCall, 30)
	nether := dec.At(10, 40, 10, Size{}, floor, mc.NetherWastes)
	out, err = newStorage().Add(context.Background(), nether)
	require.NoError(t, err)
	assert.Equal(t, skipBiome, out.Skipped)

	tooMuch := dec.At(10, 40, 10, Size{}, make([]FloorCall, 25), mc.Plains)
	assert.Equal(t, 50, tooMuch.Bits())
	assert.False(t, tooMuch.UsesFloor())
}

func TestMissingSaltLeavesSearchUnattempted(t *testing.T) {
	floor := make([]FloorCall, 15)
	data := New(mc.V1_12, nil).At(3, 30, 3, Size{}, floor, mc.Plains)

	s := newStorage()
	_, err := s.Add(context.Background(), data)
	require.Error(t, err)
	assert.True(t, errors.Is(err, tuning.ErrNoSalt))
	assert.False(t, s.TimeMachine().HasResult(timemachine.StructureSeeds))
}

func TestDeviceCallOrder(t *testing.T) {
	floor := []FloorCall{Cobblestone, Mossy}
	old := New(mc.V1_14, nil).At(17, 200, 34, Size{}, floor, mc.Plains).Device().Calls()
	cur := New(mc.V1_15, nil).At(17, 200, 34, Size{}, floor, mc.Plains).Device().Calls()

	require.Len(t, old, 6)
	assert.EqualValues(t, 256, old[1].Bound())
	assert.EqualValues(t, 200, old[1].Value())
	assert.EqualValues(t, 2, old[2].Value())
	assert.EqualValues(t, 256, cur[2].Bound())
	assert.EqualValues(t, 2, cur[1].Value())

	assert.Equal(t, reverser.KindConsume, cur[3].Kind())
	assert.EqualValues(t, 2, cur[3].Steps())
	assert.Equal(t, reverser.KindExact, cur[4].Kind())
	assert.Equal(t, reverser.KindFilter, cur[5].Kind())
}

func TestIsValidBiome(t *testing.T) {
	dec := New(mc.V1_16, nil)
	assert.True(t, dec.IsValidBiome(mc.Plains))
	assert.True(t, dec.IsValidBiome(mc.SwampHills))
	assert.False(t, dec.IsValidBiome(mc.BasaltDeltas))
	assert.False(t, dec.IsValidBiome(mc.TheEnd))
}

func TestObservationValidation(t *testing.T) {
	good := Observation{Version: "1.16.5", Biome: "plains", X: 100, Y: 30, Z: -20, Floor: "CMMC"}
	data, err := good.Data(nil)
	require.NoError(t, err)
	assert.Equal(t, mc.Plains, data.Biome)
	assert.EqualValues(t, 6, data.ChunkX)
	assert.EqualValues(t, 4, data.OffsetX)
	assert.EqualValues(t, -2, data.ChunkZ)
	assert.EqualValues(t, 12, data.OffsetZ)

	bad := []Observation{
		{Version: "1.7", Biome: "plains", Y: 30},
		{Version: "1.16", Y: 30},
		{Version: "1.16", Biome: "plains", Y: 300},
		{Version: "1.16", Biome: "plains", Y: 30, Floor: "CXM"},
		{Version: "1.16", Biome: "plains", Y: 30, Size: []int32{2, 5}},
	}
	for i, o := range bad {
		assert.Error(t, o.Validate(), "case %d", i)
	}
}

func TestLoadBatch(t *testing.T) {
	p := filepath.Join(t.TempDir(), "batch.yaml")
	body := `observations:
  - version: "1.16"
    biome: plains
    x: 12
    y: 40
    z: -3
    size: [2, 3]
    floor: CMMMCMMC
  - version: "1.14"
    biome: desert
    x: -100
    y: 20
    z: 7
`
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	b, err := LoadBatch(p)
	require.NoError(t, err)
	require.Len(t, b.Observations, 2)
	assert.Equal(t, "CMMMCMMC", b.Observations[0].Floor)

	require.NoError(t, os.WriteFile(p, []byte("observations: []\n"), 0o644))
	_, err = LoadBatch(p)
	assert.Error(t, err)
}

func TestFloorRoundTrip(t *testing.T) {
	floor, err := ParseFloor("C M 0 1 c")
	require.NoError(t, err)
	assert.Equal(t, []FloorCall{Cobblestone, Mossy, Cobblestone, Mossy, Cobblestone}, floor)
	assert.Equal(t, "CMCMC", FormatFloor(floor))
}
