// Package dungeon turns an observed dungeon into generator calls and runs
// the structure-seed search for it.
//
// A dungeon attempt draws its chunk offset and height, then two size draws.
// The floor is laid with one nextInt(4) per block: zero places cobblestone,
// anything else mossy cobblestone. Cobblestone pins two state bits; mossy
// blocks are only checked by replay.
package dungeon

import (
	"fmt"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/population"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/reverser"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

const Name = "dungeon"

// Attempts is how many dungeons a chunk tries to place.
const Attempts = 8

// Floor bit range for which the floor is worth searching on.
const (
	MinFloorBits = 26
	MaxFloorBits = 48
)

// FloorCall is one observed floor block.
type FloorCall uint8

const (
	Cobblestone FloorCall = iota
	Mossy
)

func (f FloorCall) String() string {
	if f == Cobblestone {
		return "C"
	}
	return "M"
}

// Decorator is the dungeon feature for one game version.
type Decorator struct {
	version mc.Version
	table   *tuning.Table
}

func New(v mc.Version, table *tuning.Table) *Decorator {
	if table == nil {
		table = tuning.Default()
	}
	return &Decorator{version: v, table: table}
}

func (d *Decorator) Name() string        { return Name }
func (d *Decorator) Version() mc.Version { return d.version }

// Salt is the dungeon salt in biome b as of the decorator's version.
func (d *Decorator) Salt(b mc.Biome) (int64, error) {
	return d.table.Salt(Name, d.version, b)
}

// IsValidBiome reports whether dungeons generate in b: overworld only.
func (d *Decorator) IsValidBiome(b mc.Biome) bool {
	return b.Dimension() == mc.Overworld
}

// Size is the dungeon's half-extent in blocks along x and z.
type Size struct {
	X, Z int32
}

// At describes a dungeon whose spawner sits at the given block.
func (d *Decorator) At(blockX, blockY, blockZ int32, size Size, floor []FloorCall, biome mc.Biome) *Data {
	return &Data{
		dec:     d,
		ChunkX:  mc.ChunkCoord(blockX),
		ChunkZ:  mc.ChunkCoord(blockZ),
		OffsetX: mc.ChunkOffset(blockX),
		BlockY:  blockY,
		OffsetZ: mc.ChunkOffset(blockZ),
		Size:    size,
		Floor:   append([]FloorCall(nil), floor...),
		Biome:   biome,
	}
}

// Data is one observed dungeon.
type Data struct {
	dec *Decorator

	ChunkX, ChunkZ   int32
	OffsetX, OffsetZ int32
	BlockY           int32
	Size             Size
	Floor            []FloorCall
	Biome            mc.Biome
}

func (d *Data) Decorator() string { return Name }

// Bits is the floor's information content: two bits per cobblestone.
func (d *Data) Bits() int {
	n := 0
	for _, c := range d.Floor {
		if c == Cobblestone {
			n += 2
		}
	}
	return n
}

// UsesFloor reports whether the floor alone narrows the search enough.
func (d *Data) UsesFloor() bool {
	b := d.Bits()
	return b >= MinFloorBits && b <= MaxFloorBits
}

func (d *Data) Position() relation.Position {
	return relation.Position{
		Decorator: Name,
		ChunkX:    d.ChunkX,
		ChunkZ:    d.ChunkZ,
		Biome:     d.Biome,
		Version:   d.dec.version,
	}
}

// Device encodes the dungeon as calls on the decorator generator.
func (d *Data) Device() *reverser.Device {
	dev := reverser.NewDevice()
	if d.dec.version.IsOlderThan(mc.V1_15) {
		dev.AddCall(
			reverser.NextInt(16, d.OffsetX),
			reverser.NextInt(256, d.BlockY),
			reverser.NextInt(16, d.OffsetZ),
		)
	} else {
		dev.AddCall(
			reverser.NextInt(16, d.OffsetX),
			reverser.NextInt(16, d.OffsetZ),
			reverser.NextInt(256, d.BlockY),
		)
	}
	dev.AddCall(reverser.Consume(2, 2))
	for _, c := range d.Floor {
		if c == Cobblestone {
			dev.AddCall(reverser.NextInt(4, 0))
		} else {
			dev.AddCall(reverser.Filter(4, func(v int32) bool { return v != 0 }))
		}
	}
	return dev
}

// CanStart replays the chunk's dungeon attempts from a structure seed and
// reports whether one of them lands on this dungeon.
func (d *Data) CanStart(structureSeed uint64) (bool, error) {
	salt, err := d.dec.Salt(d.Biome)
	if err != nil {
		return false, err
	}
	pos := d.Position()
	pop, err := population.Seed(int64(structureSeed), pos.BlockX(), pos.BlockZ(), d.dec.version)
	if err != nil {
		return false, err
	}
	r := lcg.FromState(lcg.Java, relation.DecoratorState(pop, salt))
	for i := 0; i < Attempts; i++ {
		x, y, z := d.dec.position(r)
		if x == d.OffsetX && y == d.BlockY && z == d.OffsetZ {
			return true, nil
		}
		r.NextInt(2)
		r.NextInt(2)
	}
	return false, nil
}

// position draws one attempt's offset and height in version order.
func (d *Decorator) position(r *lcg.Rand) (x, y, z int32) {
	if d.version.IsOlderThan(mc.V1_15) {
		x = r.NextInt(16)
		y = r.NextInt(256)
		z = r.NextInt(16)
		return x, y, z
	}
	x = r.NextInt(16)
	z = r.NextInt(16)
	y = r.NextInt(256)
	return x, y, z
}

func (d *Data) String() string {
	return fmt.Sprintf("dungeon(%d,%d,%d) %s %s floor=%dbits",
		d.ChunkX*16+d.OffsetX, d.BlockY, d.ChunkZ*16+d.OffsetZ, d.Biome, d.dec.version, d.Bits())
}
