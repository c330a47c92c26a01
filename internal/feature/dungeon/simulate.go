package dungeon

import (
	"fmt"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/population"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

// SimOptions shapes a simulated observation.
type SimOptions struct {
	// Attempt is which of the chunk's attempts produced the dungeon.
	Attempt int
	// Cobblestone is how many cobblestone blocks to observe before the
	// floor record stops.
	Cobblestone int
}

// Simulate generates the observation a player would make of a dungeon in the
// given chunk of a world.
func Simulate(worldSeed int64, chunkX, chunkZ int32, biome mc.Biome, v mc.Version, table *tuning.Table, opt SimOptions) (Observation, error) {
	if opt.Attempt < 0 || opt.Attempt >= Attempts {
		return Observation{}, fmt.Errorf("dungeon: attempt %d outside [0,%d)", opt.Attempt, Attempts)
	}
	if opt.Cobblestone <= 0 {
		opt.Cobblestone = 20
	}
	dec := New(v, table)
	salt, err := dec.Salt(biome)
	if err != nil {
		return Observation{}, err
	}
	pop, err := population.Seed(worldSeed, chunkX<<4, chunkZ<<4, v)
	if err != nil {
		return Observation{}, err
	}

	r := lcg.FromState(lcg.Java, relation.DecoratorState(pop, salt))
	r.Skip(int64(5 * opt.Attempt))
	x, y, z := dec.position(r)
	sx := r.NextInt(2) + 2
	sz := r.NextInt(2) + 2

	var floor []FloorCall
	for cobble := 0; cobble < opt.Cobblestone; {
		if r.NextInt(4) == 0 {
			floor = append(floor, Cobblestone)
			cobble++
		} else {
			floor = append(floor, Mossy)
		}
	}
	return Observation{
		Version: v.String(),
		Biome:   string(biome),
		X:       chunkX*16 + x,
		Y:       y,
		Z:       chunkZ*16 + z,
		Size:    []int32{sx, sz},
		Floor:   FormatFloor(floor),
	}, nil
}
