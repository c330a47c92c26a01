package mc

import (
	"fmt"
	"strings"
)

// Biome is an environment tag. Salt tables and validity gates key on it.
type Biome string

const (
	Plains     Biome = "PLAINS"
	Forest     Biome = "FOREST"
	Desert     Biome = "DESERT"
	Taiga      Biome = "TAIGA"
	Mountains  Biome = "MOUNTAINS"
	Jungle     Biome = "JUNGLE"
	Ocean      Biome = "OCEAN"
	Swamp      Biome = "SWAMP"
	SwampHills Biome = "SWAMP_HILLS"

	NetherWastes   Biome = "NETHER_WASTES"
	SoulSandValley Biome = "SOUL_SAND_VALLEY"
	WarpedForest   Biome = "WARPED_FOREST"
	CrimsonForest  Biome = "CRIMSON_FOREST"
	BasaltDeltas   Biome = "BASALT_DELTAS"

	TheEnd          Biome = "THE_END"
	EndMidlands     Biome = "END_MIDLANDS"
	EndHighlands    Biome = "END_HIGHLANDS"
	EndBarrens      Biome = "END_BARRENS"
	SmallEndIslands Biome = "SMALL_END_ISLANDS"
	TheVoid         Biome = "THE_VOID"
)

type Dimension int

const (
	Overworld Dimension = iota
	Nether
	End
)

func (d Dimension) String() string {
	switch d {
	case Nether:
		return "nether"
	case End:
		return "end"
	default:
		return "overworld"
	}
}

// Dimension classifies the biome. Unknown tags are treated as overworld.
func (b Biome) Dimension() Dimension {
	switch b {
	case NetherWastes, SoulSandValley, WarpedForest, CrimsonForest, BasaltDeltas:
		return Nether
	case TheEnd, EndMidlands, EndHighlands, EndBarrens, SmallEndIslands, TheVoid:
		return End
	default:
		return Overworld
	}
}

// ParseBiome normalises spellings like "swamp_hills" or "Swamp Hills".
func ParseBiome(s string) (Biome, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.ReplaceAll(norm, " ", "_")
	norm = strings.TrimPrefix(norm, "MINECRAFT:")
	if norm == "" {
		return "", fmt.Errorf("mc: empty biome")
	}
	return Biome(norm), nil
}

func (b Biome) Key() string {
	return strings.ToLower(string(b))
}

// ChunkCoord returns the chunk containing a block coordinate.
func ChunkCoord(block int32) int32 {
	return block >> 4
}

// ChunkOffset returns the block's offset inside its chunk.
func ChunkOffset(block int32) int32 {
	return block & 15
}
