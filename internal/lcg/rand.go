package lcg

import "fmt"

// DrawLimitError is the panic value raised by a Rand whose draw limit is
// exceeded. Whoever sets the limit is expected to recover it.
type DrawLimitError struct {
	Limit int
}

func (e *DrawLimitError) Error() string {
	return fmt.Sprintf("lcg: draw limit %d exceeded", e.Limit)
}

// Rand replays a 48-bit LCG with java.util.Random draw semantics. The zero
// value is not usable; construct with NewRand or FromState.
type Rand struct {
	gen   LCG
	state uint64

	draws int
	limit int
}

// NewRand seeds a Java generator the way Random.setSeed does: the seed is
// scrambled with the multiplier.
func NewRand(seed int64) *Rand {
	r := &Rand{gen: Java}
	r.SetSeed(seed)
	return r
}

// FromState positions a generator at a raw internal state.
func FromState(gen LCG, state uint64) *Rand {
	return &Rand{gen: gen, state: state & Mask}
}

func (r *Rand) SetSeed(seed int64) {
	r.state = (uint64(seed) ^ r.gen.Multiplier) & Mask
}

// State returns the raw internal state.
func (r *Rand) State() uint64 { return r.state }

// Draws returns how many raw draws were made since construction or the last
// call to Limit.
func (r *Rand) Draws() int { return r.draws }

// Limit caps further raw draws at n (n <= 0 removes the cap) and resets the
// draw counter. Exceeding the cap panics with *DrawLimitError.
func (r *Rand) Limit(n int) {
	r.limit = n
	r.draws = 0
}

// Clone returns an independent generator at the same state without a limit.
func (r *Rand) Clone() *Rand {
	return &Rand{gen: r.gen, state: r.state}
}

// Skip advances n raw draws without producing values. Negative n rewinds.
func (r *Rand) Skip(n int64) {
	r.state = r.gen.Advance(r.state, n)
}

func (r *Rand) Next(bits uint) int32 {
	r.draws++
	if r.limit > 0 && r.draws > r.limit {
		panic(&DrawLimitError{Limit: r.limit})
	}
	r.state = r.gen.Next(r.state)
	return int32(r.state >> (Bits - bits))
}

// NextInt returns a value in [0, bound). Power-of-two bounds take the top
// bits of one draw; other bounds use rejection sampling and may draw more
// than once.
func (r *Rand) NextInt(bound int32) int32 {
	if bound <= 0 {
		panic(fmt.Sprintf("lcg: NextInt bound must be positive, got %d", bound))
	}
	v := r.Next(31)
	m := bound - 1
	if bound&m == 0 {
		return int32((int64(bound) * int64(v)) >> 31)
	}
	for u := v; ; u = r.Next(31) {
		v = u % bound
		if u-v+m >= 0 {
			return v
		}
	}
}

func (r *Rand) NextLong() int64 {
	hi := int64(r.Next(32))
	lo := int64(r.Next(32))
	return hi<<32 + lo
}
