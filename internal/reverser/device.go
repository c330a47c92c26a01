// Package reverser recovers the internal state of a 48-bit LCG from a record
// of the calls made on it. Exact power-of-two draws become box constraints on
// a lattice that is reduced and enumerated; every other call is checked by
// replaying candidates.
package reverser

import (
	"cmp"
	"errors"
	"slices"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
)

// ErrUnconstrained is returned by Device.Stream when no call pins down state
// bits and the caller gave neither a limit nor a budget.
var ErrUnconstrained = errors.New("reverser: no constraining calls; refusing unbounded search")

// Device accumulates calls made on a generator, starting at the state to
// recover, and solves for the states consistent with them.
type Device struct {
	gen   lcg.LCG
	calls []Call
}

type DeviceOption func(*Device)

// WithLCG selects the generator; the default is lcg.Java. The multiplier must
// be odd.
func WithLCG(l lcg.LCG) DeviceOption {
	return func(d *Device) { d.gen = l }
}

func NewDevice(opts ...DeviceOption) *Device {
	d := &Device{gen: lcg.Java}
	for _, opt := range opts {
		opt(d)
	}
	if !d.gen.Invertible() {
		panic("reverser: generator must have an odd multiplier")
	}
	return d
}

// AddCall appends calls in the order they were made.
func (d *Device) AddCall(calls ...Call) *Device {
	d.calls = append(d.calls, calls...)
	return d
}

func (d *Device) Calls() []Call {
	return append([]Call(nil), d.calls...)
}

func (d *Device) LCG() lcg.LCG { return d.gen }

// Steps is the number of raw draws all calls consume.
func (d *Device) Steps() int64 {
	var n int64
	for _, c := range d.calls {
		n += c.Steps()
	}
	return n
}

// Bits is the number of state bits the exact power-of-two calls pin down.
// Above 48 the solution is usually unique; well below it the stream is large.
func (d *Device) Bits() uint {
	var n uint
	for _, c := range d.calls {
		n += c.Bits()
	}
	return n
}

// Verify replays every call from seed and reports whether all of them hold.
func (d *Device) Verify(seed uint64) bool {
	return verify(d.gen, d.calls, seed)
}

func verify(gen lcg.LCG, calls []Call, seed uint64) bool {
	r := lcg.FromState(gen, seed)
	for _, c := range calls {
		if !c.check(r) {
			return false
		}
	}
	return true
}

// foldBits caps the state information handed to the lattice. Every folded
// call adds a dimension to enumerate; calls past the cap are checked by
// replay instead.
const foldBits = lcg.Bits + 8

// constraints folds the exact power-of-two calls, richest first, until
// foldBits is reached, and returns them in call order.
func (d *Device) constraints() []constraint {
	var (
		all   []constraint
		total uint
		pos   int64
	)
	for _, c := range d.calls {
		if c.foldable() {
			all = append(all, constraint{step: pos + 1, bits: c.Bits(), value: uint64(c.value)})
			total += c.Bits()
		}
		pos += c.Steps()
	}
	if total <= foldBits {
		return all
	}

	slices.SortStableFunc(all, func(a, b constraint) int { return cmp.Compare(b.bits, a.bits) })
	var got uint
	n := 0
	for got < foldBits {
		got += all[n].bits
		n++
	}
	out := all[:n]
	slices.SortFunc(out, func(a, b constraint) int { return cmp.Compare(a.step, b.step) })
	return out
}

type streamConfig struct {
	limit  int
	budget int
}

type StreamOption func(*streamConfig)

// WithLimit stops the stream after n seeds.
func WithLimit(n int) StreamOption {
	return func(c *streamConfig) { c.limit = n }
}

// WithBudget stops the stream once it has done n units of work: lattice
// nodes visited plus candidates replayed, whether or not they survived.
// Stream.Exhausted then reports true.
func WithBudget(n int) StreamOption {
	return func(c *streamConfig) { c.budget = n }
}

// Stream starts a lazy search over the current calls. Later AddCall calls do
// not affect a stream already started.
func (d *Device) Stream(opts ...StreamOption) (*Stream, error) {
	var cfg streamConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Stream{
		gen:    d.gen,
		calls:  d.Calls(),
		limit:  cfg.limit,
		budget: cfg.budget,
	}
	cons := d.constraints()
	if len(cons) == 0 {
		if cfg.limit <= 0 && cfg.budget <= 0 {
			return nil, ErrUnconstrained
		}
		s.src = &scan{}
		s.back = lcg.Identity
		return s, nil
	}
	s.src = newEnumerator(newLattice(d.gen, cons))
	s.back = d.gen.Combine(-cons[0].step)
	return s, nil
}

// scan walks every state in increasing order.
type scan struct {
	cur  uint64
	done bool
}

func (s *scan) next(int) (uint64, bool) {
	if s.done {
		return 0, false
	}
	v := s.cur
	if v == lcg.Mask {
		s.done = true
	}
	s.cur++
	return v, true
}

func (s *scan) finished() bool { return s.done }

func (s *scan) work() int { return 0 }
