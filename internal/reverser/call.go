package reverser

import (
	"fmt"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mathx"
)

// Kind tags what a Call tells the solver.
type Kind uint8

const (
	// KindExact: the drawn value is known.
	KindExact Kind = iota + 1
	// KindConsume: the draw happened but its value is unknown.
	KindConsume
	// KindFilter: the draw satisfies a predicate, checked by replay.
	KindFilter
)

func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindConsume:
		return "consume"
	case KindFilter:
		return "filter"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Call describes one generator invocation. Calls are values; build them with
// NextInt, Consume, Filter or FilteredSkip.
type Call struct {
	kind  Kind
	bound int32
	value int32
	count int

	valuePred func(int32) bool
	randPred  func(*lcg.Rand) bool
	maxDraws  int
}

// NextInt is an exact nextInt(bound) draw that returned value.
func NextInt(bound, value int32) Call {
	checkBound(bound)
	if value < 0 || value >= bound {
		panic(fmt.Sprintf("reverser: value %d outside [0,%d)", value, bound))
	}
	return Call{kind: KindExact, bound: bound, value: value, count: 1}
}

// Consume is count nextInt(bound) draws whose values are not observed.
func Consume(bound int32, count int) Call {
	checkBound(bound)
	if count < 0 {
		panic(fmt.Sprintf("reverser: negative consume count %d", count))
	}
	return Call{kind: KindConsume, bound: bound, count: count}
}

// Filter is a nextInt(bound) draw whose value satisfies pred. It is never
// folded into the algebra; candidates are replayed against it.
func Filter(bound int32, pred func(int32) bool) Call {
	checkBound(bound)
	if pred == nil {
		panic("reverser: nil filter predicate")
	}
	return Call{kind: KindFilter, bound: bound, count: 1, valuePred: pred}
}

// FilteredSkip runs pred on a private replay positioned at this call and then
// advances the main sequence by steps raw draws. pred may draw at most
// maxDraws times; a predicate that draws more rejects the candidate.
func FilteredSkip(steps, maxDraws int, pred func(*lcg.Rand) bool) Call {
	if steps < 0 {
		panic(fmt.Sprintf("reverser: negative skip %d", steps))
	}
	if maxDraws <= 0 {
		panic(fmt.Sprintf("reverser: filter draw budget must be positive, got %d", maxDraws))
	}
	if pred == nil {
		panic("reverser: nil filter predicate")
	}
	return Call{kind: KindFilter, count: steps, randPred: pred, maxDraws: maxDraws}
}

func checkBound(bound int32) {
	if bound <= 0 {
		panic(fmt.Sprintf("reverser: bound must be positive, got %d", bound))
	}
}

func (c Call) Kind() Kind    { return c.kind }
func (c Call) Bound() int32  { return c.bound }
func (c Call) Value() int32  { return c.value }
func (c Call) MaxDraws() int { return c.maxDraws }

// Steps is the number of raw draws the solver assumes the call consumes.
// Rejection sampling in non power-of-two draws can consume more; replay
// catches those candidates.
func (c Call) Steps() int64 { return int64(c.count) }

// Bits is the number of state bits an exact call pins down algebraically;
// zero for everything that is only checked by replay.
func (c Call) Bits() uint {
	if c.kind != KindExact || !c.foldable() {
		return 0
	}
	return mathx.Log2(uint64(c.bound))
}

func (c Call) foldable() bool {
	return c.kind == KindExact && c.bound > 1 && mathx.IsPowerOfTwo(int64(c.bound))
}

func (c Call) String() string {
	switch {
	case c.kind == KindExact:
		return fmt.Sprintf("nextInt(%d)=%d", c.bound, c.value)
	case c.kind == KindConsume:
		return fmt.Sprintf("nextInt(%d)x%d", c.bound, c.count)
	case c.randPred != nil:
		return fmt.Sprintf("filter(skip=%d,max=%d)", c.count, c.maxDraws)
	default:
		return fmt.Sprintf("filter(nextInt(%d))", c.bound)
	}
}

// check replays the call on r and reports whether the candidate survives.
func (c Call) check(r *lcg.Rand) bool {
	switch c.kind {
	case KindExact:
		return r.NextInt(c.bound) == c.value
	case KindConsume:
		for i := 0; i < c.count; i++ {
			r.NextInt(c.bound)
		}
		return true
	case KindFilter:
		if c.valuePred != nil {
			return c.valuePred(r.NextInt(c.bound))
		}
		ok := runFilter(r.Clone(), c.maxDraws, c.randPred)
		r.Skip(int64(c.count))
		return ok
	}
	return false
}

func runFilter(r *lcg.Rand, maxDraws int, pred func(*lcg.Rand) bool) (ok bool) {
	r.Limit(maxDraws)
	defer func() {
		if v := recover(); v != nil {
			if _, limited := v.(*lcg.DrawLimitError); limited {
				ok = false
				return
			}
			panic(v)
		}
	}()
	return pred(r)
}
