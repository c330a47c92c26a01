package reverser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
)

func TestEnumeratorYieldsOnlyBoxPoints(t *testing.T) {
	const seed = 0xC0FFEE
	cons := NewDevice().AddCall(observe(seed, 256, 5)...).constraints()
	require.Len(t, cons, 5)

	e := newEnumerator(newLattice(lcg.Java, cons))
	var ys []uint64
	for {
		y, ok := e.next(0)
		if !ok {
			break
		}
		ys = append(ys, y)
	}
	assert.True(t, e.finished())
	assert.Contains(t, ys, lcg.Java.Next(seed))
	assert.Less(t, e.work(), 200_000)
	for _, y := range ys {
		for _, c := range cons {
			state := lcg.Java.Combine(c.step - cons[0].step).Next(y)
			assert.Equal(t, c.value, state>>(lcg.Bits-c.bits), "y=%#x step %d", y, c.step)
		}
	}
}

func TestEnumeratorPausesAtAllowance(t *testing.T) {
	cons := NewDevice().AddCall(observe(99, 4, 28)...).constraints()
	e := newEnumerator(newLattice(lcg.Java, cons))

	_, ok := e.next(10)
	assert.False(t, ok)
	assert.False(t, e.finished())
	assert.Equal(t, 10, e.work())
}
