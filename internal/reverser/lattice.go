package reverser

import (
	"math"
	"slices"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mathx"
)

// lllDelta is the Lovász constant.
const lllDelta = 0.99

// constraint pins the top `bits` bits of the state reached after `step`
// draws to value.
type constraint struct {
	step  int64
	bits  uint
	value uint64
}

func (c constraint) interval() (lo, hi uint64) {
	shift := lcg.Bits - c.bits
	lo = c.value << shift
	return lo, lo + (uint64(1) << shift) - 1
}

// lattice is the box-constrained system for a list of constraints. The
// unknown is y, the state at the first constraint; constraint i reads the
// state A_i*y + C_i, so the feasible points are the lattice generated by
// (1, A_1, ..., A_{n-1}) and 2^48*e_i for i >= 1, intersected with a box.
type lattice struct {
	n      int
	basis  [][]int64
	weight []float64
	lo, hi []int64
}

func newLattice(gen lcg.LCG, cons []constraint) *lattice {
	n := len(cons)
	l := &lattice{
		n:      n,
		basis:  make([][]int64, n),
		weight: make([]float64, n),
		lo:     make([]int64, n),
		hi:     make([]int64, n),
	}
	minBits := cons[0].bits
	for _, c := range cons {
		minBits = min(minBits, c.bits)
	}

	first := make([]int64, n)
	for i, c := range cons {
		rel := gen.Combine(c.step - cons[0].step)
		first[i] = int64(rel.Multiplier)
		lo, hi := c.interval()
		l.lo[i] = int64(lo) - int64(rel.Addend)
		l.hi[i] = int64(hi) - int64(rel.Addend)
		l.weight[i] = math.Ldexp(1, int(c.bits-minBits))
	}
	l.basis[0] = first
	for i := 1; i < n; i++ {
		row := make([]int64, n)
		row[i] = int64(lcg.Modulus)
		l.basis[i] = row
	}
	return l
}

// gram holds a weighted Gram-Schmidt orthogonalisation of a basis.
type gram struct {
	mu    [][]float64
	bstar [][]float64
	bb    []float64
}

func newGram(n int) *gram {
	g := &gram{mu: make([][]float64, n), bstar: make([][]float64, n), bb: make([]float64, n)}
	for i := range g.mu {
		g.mu[i] = make([]float64, n)
		g.bstar[i] = make([]float64, n)
	}
	return g
}

func (g *gram) row(b [][]int64, w []float64, k int) {
	v := g.bstar[k]
	for c := range v {
		v[c] = float64(b[k][c]) * w[c]
	}
	for j := 0; j < k; j++ {
		m := dot(v, g.bstar[j]) / g.bb[j]
		g.mu[k][j] = m
		for c := range v {
			v[c] -= m * g.bstar[j][c]
		}
	}
	g.bb[k] = dot(v, v)
}

// reduce LLL-reduces the basis in place under the weighted norm. The basis
// stays exact; only the Gram-Schmidt data is floating point, and every row is
// re-derived from the exact vectors after size reduction so rounding errors
// cannot accumulate.
func (l *lattice) reduce() *gram {
	n, b, w := l.n, l.basis, l.weight
	g := newGram(n)
	if n == 0 {
		return g
	}
	g.row(b, w, 0)

	const maxIter = 1 << 20
	k := 1
	for iter := 0; k < n && iter < maxIter; iter++ {
		g.row(b, w, k)
		for pass := 0; pass < 64; pass++ {
			changed := false
			for j := k - 1; j >= 0; j-- {
				m := g.mu[k][j]
				if math.Abs(m) <= 0.51 {
					continue
				}
				r := math.Round(m)
				ri := int64(r)
				for c := range b[k] {
					b[k][c] -= ri * b[j][c]
				}
				for t := 0; t < j; t++ {
					g.mu[k][t] -= r * g.mu[j][t]
				}
				g.mu[k][j] -= r
				changed = true
			}
			if !changed {
				break
			}
			g.row(b, w, k)
		}

		m := g.mu[k][k-1]
		if g.bb[k] >= (lllDelta-m*m)*g.bb[k-1] {
			k++
			continue
		}
		b[k], b[k-1] = b[k-1], b[k]
		g.row(b, w, k-1)
		k = max(k-1, 1)
	}

	for i := 0; i < n; i++ {
		g.row(b, w, i)
	}
	return g
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

// enumerator walks the lattice points inside the box, one per call to next.
// Every level is bounded twice: by the sphere circumscribing the box and by
// the box itself, widened by what the free coordinates below can still add.
// Values are visited in zig-zag order around the projected centre; the
// innermost level is solved exactly against the box, so every point it yields
// is feasible.
type enumerator struct {
	l *lattice
	g *gram

	tau []float64
	r2  float64

	// xlo, xhi bound each coordinate over the whole box; rlo, rhi[j] hold
	// the extremes coordinates 0..j-1 can add to each box component.
	xlo, xhi []int64
	rlo, rhi [][]float64

	level   int
	x       []int64
	acc     []float64
	partial [][]int64

	centre       []int64
	lower, upper []int64
	k            []int64

	x0, x0hi int64
	nodes    int
	done     bool
}

func newEnumerator(l *lattice) *enumerator {
	g := l.reduce()
	n := l.n
	e := &enumerator{
		l:       l,
		g:       g,
		tau:     make([]float64, n),
		xlo:     make([]int64, n),
		xhi:     make([]int64, n),
		x:       make([]int64, n),
		acc:     make([]float64, n),
		partial: make([][]int64, n+1),
		centre:  make([]int64, n),
		lower:   make([]int64, n),
		upper:   make([]int64, n),
		k:       make([]int64, n),
	}
	for i := range e.partial {
		e.partial[i] = make([]int64, n)
	}

	t := make([]float64, n)
	for c := 0; c < n; c++ {
		mid := (float64(l.lo[c]) + float64(l.hi[c])) / 2
		half := (float64(l.hi[c]) - float64(l.lo[c])) / 2 * l.weight[c]
		t[c] = mid * l.weight[c]
		e.r2 += half * half
	}
	e.r2 = e.r2*(1+1e-9) + 1
	for j := 0; j < n; j++ {
		e.tau[j] = dot(t, g.bstar[j]) / g.bb[j]
	}

	if !e.bounds() {
		e.done = true
		return e
	}
	e.level = n - 1
	e.enter(e.level)
	return e
}

// bounds fills xlo/xhi and rlo/rhi. Coordinate j of a point v is
// <v, d_j> for the dual vector d_j = b*_j/|b*_j|^2 - sum_{i>j} mu_ij d_i, so
// its range over the box is an interval sum. It reports false when some
// coordinate has no integer in range, i.e. the box holds no lattice point.
func (e *enumerator) bounds() bool {
	l, g, n := e.l, e.g, e.l.n
	dual := make([][]float64, n)
	for j := n - 1; j >= 0; j-- {
		d := make([]float64, n)
		for c := range d {
			d[c] = g.bstar[j][c] / g.bb[j]
		}
		for i := j + 1; i < n; i++ {
			m := g.mu[i][j]
			for c := range d {
				d[c] -= m * dual[i][c]
			}
		}
		dual[j] = d
	}

	for j := 0; j < n; j++ {
		var lo, hi, mag float64
		for c := 0; c < n; c++ {
			t := dual[j][c] * l.weight[c]
			a, b := float64(l.lo[c])*t, float64(l.hi[c])*t
			lo += math.Min(a, b)
			hi += math.Max(a, b)
			mag += math.Max(math.Abs(a), math.Abs(b))
		}
		slack := 1e-9 * (1 + mag)
		e.xlo[j] = clampInt(math.Ceil(lo - slack))
		e.xhi[j] = clampInt(math.Floor(hi + slack))
		if e.xlo[j] > e.xhi[j] {
			return false
		}
	}

	e.rlo, e.rhi = make([][]float64, n), make([][]float64, n)
	e.rlo[0], e.rhi[0] = make([]float64, n), make([]float64, n)
	for j := 1; j < n; j++ {
		lo, hi := slices.Clone(e.rlo[j-1]), slices.Clone(e.rhi[j-1])
		for c := 0; c < n; c++ {
			b := float64(l.basis[j-1][c])
			p, q := float64(e.xlo[j-1])*b, float64(e.xhi[j-1])*b
			lo[c] += math.Min(p, q)
			hi[c] += math.Max(p, q)
		}
		e.rlo[j], e.rhi[j] = lo, hi
	}
	return true
}

// next returns the first coordinate of the next feasible lattice point, which
// is the state at the first constraint. With allowance > 0 it gives up after
// visiting that many nodes; finished tells a pause from the end.
func (e *enumerator) next(allowance int) (uint64, bool) {
	start := e.nodes
	for !e.done {
		if allowance > 0 && e.nodes-start >= allowance {
			return 0, false
		}
		if e.level == 0 {
			if e.x0 <= e.x0hi {
				y := e.partial[1][0] + e.x0*e.l.basis[0][0]
				e.x0++
				return uint64(y), true
			}
			e.up()
			continue
		}

		e.nodes++
		j := e.level
		xj, ok := e.zigzag(j)
		if !ok {
			e.up()
			continue
		}
		d := float64(xj) - e.center(j)
		accj := e.acc[j] + d*d*e.g.bb[j]
		if accj > e.r2 {
			continue
		}
		e.x[j] = xj
		row, above, out := e.l.basis[j], e.partial[j+1], e.partial[j]
		for c := range out {
			out[c] = above[c] + xj*row[c]
		}
		e.acc[j-1] = accj
		e.level = j - 1
		e.enter(e.level)
	}
	return 0, false
}

func (e *enumerator) finished() bool { return e.done }

func (e *enumerator) work() int { return e.nodes }

func (e *enumerator) up() {
	e.level++
	if e.level >= e.l.n {
		e.done = true
	}
}

func (e *enumerator) center(j int) float64 {
	c := e.tau[j]
	for i := j + 1; i < e.l.n; i++ {
		c -= e.g.mu[i][j] * float64(e.x[i])
	}
	return c
}

func (e *enumerator) enter(j int) {
	if j == 0 {
		e.x0, e.x0hi = e.boxInterval()
		return
	}
	c := e.center(j)
	rem := e.r2 - e.acc[j]
	if rem < 0 {
		rem = 0
	}
	h := math.Sqrt(rem / e.g.bb[j])
	blo, bhi := e.levelBox(j)
	lo := max(clampInt(math.Floor(c-h)), e.xlo[j], blo)
	hi := min(clampInt(math.Ceil(c+h)), e.xhi[j], bhi)
	e.lower[j], e.upper[j] = lo, hi
	e.centre[j] = min(max(clampInt(math.Round(c)), lo), hi)
	e.k[j] = 0
}

// levelBox bounds x_j so that partial[j+1] + x_j*b_j, plus anything the
// coordinates below j can add, still meets the box. An empty range has
// lo > hi.
func (e *enumerator) levelBox(j int) (int64, int64) {
	lo, hi := math.Inf(-1), math.Inf(1)
	p, row := e.partial[j+1], e.l.basis[j]
	for c := 0; c < e.l.n; c++ {
		a := float64(row[c])
		bl := float64(e.l.lo[c]-p[c]) - e.rhi[j][c]
		bh := float64(e.l.hi[c]-p[c]) - e.rlo[j][c]
		slack := 1e-12*(math.Abs(bl)+math.Abs(bh)) + 1e-6
		if a == 0 {
			if bl > slack || bh < -slack {
				return 1, 0
			}
			continue
		}
		if a < 0 {
			a, bl, bh = -a, -bh, -bl
		}
		lo = math.Max(lo, (bl-slack)/a)
		hi = math.Min(hi, (bh+slack)/a)
		if lo > hi {
			return 1, 0
		}
	}
	return clampInt(math.Ceil(lo)), clampInt(math.Floor(hi))
}

// zigzag yields centre, centre+1, centre-1, centre+2, ... within bounds.
func (e *enumerator) zigzag(j int) (int64, bool) {
	base, lo, hi := e.centre[j], e.lower[j], e.upper[j]
	span := max(hi-base, base-lo)
	for e.k[j] <= 2*span {
		k := e.k[j]
		e.k[j]++
		off := (k + 1) / 2
		if k%2 == 0 {
			off = -k / 2
		}
		if x := base + off; x >= lo && x <= hi {
			return x, true
		}
	}
	return 0, false
}

// boxInterval returns the x0 range for which partial[1] + x0*b0 lies in the
// box. An empty range has lo > hi.
func (e *enumerator) boxInterval() (int64, int64) {
	lo, hi := int64(math.MinInt64), int64(math.MaxInt64)
	p, b0 := e.partial[1], e.l.basis[0]
	for c := 0; c < e.l.n; c++ {
		a, bl, bh := b0[c], e.l.lo[c]-p[c], e.l.hi[c]-p[c]
		switch {
		case a == 0:
			if bl > 0 || bh < 0 {
				return 1, 0
			}
		case a > 0:
			lo = max(lo, mathx.CeilDiv(bl, a))
			hi = min(hi, mathx.FloorDiv(bh, a))
		default:
			lo = max(lo, mathx.CeilDiv(bh, a))
			hi = min(hi, mathx.FloorDiv(bl, a))
		}
		if lo > hi {
			return 1, 0
		}
	}
	return lo, hi
}

func clampInt(f float64) int64 {
	const limit = 1 << 62
	switch {
	case f > limit:
		return limit
	case f < -limit:
		return -limit
	}
	return int64(f)
}
