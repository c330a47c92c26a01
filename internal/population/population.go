// Package population relates world seeds to the per-chunk population seeds
// that feature decorators are seeded from.
//
// From 1.13 the population seed of the chunk at block (x, z) is
//
//	r.setSeed(w); a := r.nextLong() | 1; b := r.nextLong() | 1
//	pop := (x*a + z*b) ^ w
//
// Only the low 48 bits of w matter (the structure seed), and bit j of pop
// depends on w only through its low 17+j bits for j < 32. Reverse lifts
// candidate structure seeds one bit at a time from that observation.
package population

import (
	"errors"
	"fmt"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
)

// ErrUnsupportedVersion is returned for versions with the legacy chunk
// seeding scheme.
var ErrUnsupportedVersion = errors.New("population: version not supported")

func checkVersion(v mc.Version) error {
	if !v.Valid() || v.IsOlderThan(mc.V1_13) {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, v)
	}
	return nil
}

// Seed returns the population seed of the chunk whose corner is at block
// (blockX, blockZ), masked to 48 bits.
func Seed(worldSeed int64, blockX, blockZ int32, v mc.Version) (uint64, error) {
	if err := checkVersion(v); err != nil {
		return 0, err
	}
	return seed(uint64(worldSeed)&lcg.Mask, int64(blockX), int64(blockZ)), nil
}

// seed runs on a bare state instead of an lcg.Rand; Reverse calls it a few
// million times per search.
func seed(w uint64, x, z int64) uint64 {
	s := w ^ lcg.Java.Multiplier
	a := nextLong(&s) | 1
	b := nextLong(&s) | 1
	return (uint64(x*a+z*b) ^ w) & lcg.Mask
}

func nextLong(s *uint64) int64 {
	*s = lcg.Java.Next(*s)
	hi := int32(*s >> 16)
	*s = lcg.Java.Next(*s)
	lo := int32(*s >> 16)
	return int64(hi)<<32 + int64(lo)
}

// Iterator yields the structure seeds whose population seed matches, in a
// fixed order. It does the search lazily, one Next at a time.
type Iterator struct {
	target uint64
	x, z   int64

	root  uint64
	stack []node
}

type node struct {
	w   uint64
	bit uint
}

const rootBits = 16

// Reverse returns the structure seeds w with Seed(w, blockX, blockZ) == pop.
func Reverse(pop uint64, blockX, blockZ int32, v mc.Version) (*Iterator, error) {
	if err := checkVersion(v); err != nil {
		return nil, err
	}
	return &Iterator{target: pop & lcg.Mask, x: int64(blockX), z: int64(blockZ)}, nil
}

// Next returns the next structure seed, or false when there are none left.
func (it *Iterator) Next() (uint64, bool) {
	for {
		if len(it.stack) == 0 {
			if it.root >= 1<<rootBits {
				return 0, false
			}
			it.stack = append(it.stack, node{w: it.root, bit: rootBits})
			it.root++
		}
		n := it.stack[len(it.stack)-1]
		it.stack = it.stack[:len(it.stack)-1]

		if n.bit == lcg.Bits {
			if seed(n.w, it.x, it.z) == it.target {
				return n.w, true
			}
			continue
		}
		// pop bit j is fixed once w is known up to bit 16+j.
		j := n.bit - rootBits
		mask := uint64(1)<<(j+1) - 1
		hi := n.w | uint64(1)<<n.bit
		if seed(hi, it.x, it.z)&mask == it.target&mask {
			it.stack = append(it.stack, node{w: hi, bit: n.bit + 1})
		}
		if seed(n.w, it.x, it.z)&mask == it.target&mask {
			it.stack = append(it.stack, node{w: n.w, bit: n.bit + 1})
		}
	}
}

// All drains the iterator.
func (it *Iterator) All() []uint64 {
	var out []uint64
	for {
		w, ok := it.Next()
		if !ok {
			return out
		}
		out = append(out, w)
	}
}

// Validator confirms population seeds by reversing them to structure seeds.
type Validator struct{}

func (Validator) Validate(pop uint64, blockX, blockZ int32, v mc.Version) (relation.Sequence, error) {
	it, err := Reverse(pop, blockX, blockZ, v)
	if err != nil {
		return nil, err
	}
	return it, nil
}
