// Package lcg implements the affine algebra of 48-bit linear congruential
// generators and a replaying generator with java.util.Random draw semantics.
//
// An LCG is the map s -> (Multiplier*s + Addend) mod 2^48. Maps compose, so
// "advance by n" is itself an LCG computed in O(log n) by squaring. All
// arithmetic is done in uint64 and masked to 48 bits; since 2^48 divides 2^64
// the native wrap-around preserves the low 48 bits exactly.
package lcg

import "fmt"

const (
	Bits    = 48
	Modulus = uint64(1) << Bits
	Mask    = Modulus - 1
)

// LCG is an affine map modulo 2^48.
type LCG struct {
	Multiplier uint64
	Addend     uint64
}

// Java is the generator behind java.util.Random. Every relation that needs
// "the multiplier" reads it from here.
var Java = LCG{Multiplier: 0x5DEECE66D, Addend: 0xB}

// Identity maps every state to itself.
var Identity = LCG{Multiplier: 1, Addend: 0}

func (l LCG) Next(seed uint64) uint64 {
	return (seed*l.Multiplier + l.Addend) & Mask
}

// Invertible reports whether the map is a permutation of the state space.
func (l LCG) Invertible() bool {
	return l.Multiplier&1 == 1
}

// Combine returns the LCG equivalent to applying l `steps` times. Negative
// steps retreat the generator and require an invertible map: its order
// divides 2^48, so retreating n steps is advancing 2^48-n.
func (l LCG) Combine(steps int64) LCG {
	if steps < 0 && !l.Invertible() {
		panic(fmt.Sprintf("lcg: cannot retreat %d steps with even multiplier %#x", steps, l.Multiplier))
	}
	d := uint64(steps) & Mask

	accMult, accAdd := uint64(1), uint64(0)
	curMult, curAdd := l.Multiplier, l.Addend
	for d != 0 {
		if d&1 != 0 {
			accMult *= curMult
			accAdd = accAdd*curMult + curAdd
		}
		curAdd *= curMult + 1
		curMult *= curMult
		d >>= 1
	}
	return LCG{Multiplier: accMult & Mask, Addend: accAdd & Mask}
}

// Advance returns the state `steps` draws after seed.
func (l LCG) Advance(seed uint64, steps int64) uint64 {
	return l.Combine(steps).Next(seed)
}

// Invert returns the map that undoes one step of l.
func (l LCG) Invert() LCG {
	if !l.Invertible() {
		panic(fmt.Sprintf("lcg: multiplier %#x has no inverse", l.Multiplier))
	}
	inv := inverse(l.Multiplier)
	return LCG{Multiplier: inv & Mask, Addend: (-inv * l.Addend) & Mask}
}

// Then returns the map "l, then o".
func (l LCG) Then(o LCG) LCG {
	return LCG{
		Multiplier: (l.Multiplier * o.Multiplier) & Mask,
		Addend:     (l.Addend*o.Multiplier + o.Addend) & Mask,
	}
}

func (l LCG) String() string {
	return fmt.Sprintf("LCG(a=%#x, c=%#x)", l.Multiplier, l.Addend)
}

// inverse returns a^-1 mod 2^64 for odd a by Newton iteration; each round
// doubles the number of correct low bits starting from 3.
func inverse(a uint64) uint64 {
	x := a
	for i := 0; i < 5; i++ {
		x *= 2 - a*x
	}
	return x
}
