package reverser

import "github.com/QingLingXingKong/SeedCracker/internal/lcg"

type source interface {
	// next returns the next candidate state. With allowance > 0 it may give
	// up after that much work; finished then reports false.
	next(allowance int) (uint64, bool)
	finished() bool
	// work counts search nodes visited, not counting candidates.
	work() int
}

// Stream yields the seeds consistent with a Device's calls, one at a time.
// Work happens only when Next is called. A Stream is not safe for concurrent
// use.
type Stream struct {
	gen   lcg.LCG
	calls []Call
	src   source
	back  lcg.LCG

	limit, budget int
	yielded       int
	candidates    int
	exhausted     bool
	done          bool
}

// Next returns the next seed, or false when the search is over.
func (s *Stream) Next() (uint64, bool) {
	for !s.done {
		if s.limit > 0 && s.yielded >= s.limit {
			s.done = true
			break
		}
		allowance := 0
		if s.budget > 0 {
			allowance = s.budget - s.Examined()
			if allowance <= 0 {
				s.exhausted = true
				s.done = true
				break
			}
		}
		y, ok := s.src.next(allowance)
		if !ok {
			s.exhausted = !s.src.finished()
			s.done = true
			break
		}
		s.candidates++
		seed := s.back.Next(y)
		if verify(s.gen, s.calls, seed) {
			s.yielded++
			return seed, true
		}
	}
	return 0, false
}

// Take drains up to n seeds; n <= 0 drains the stream.
func (s *Stream) Take(n int) []uint64 {
	var out []uint64
	for n <= 0 || len(out) < n {
		seed, ok := s.Next()
		if !ok {
			break
		}
		out = append(out, seed)
	}
	return out
}

// Examined is the work done so far: candidates replayed, including rejected
// ones, plus lattice nodes visited on the way to them. The budget is spent in
// the same unit.
func (s *Stream) Examined() int { return s.candidates + s.src.work() }

// Exhausted reports whether the stream stopped because the budget ran out
// rather than because the search space was covered.
func (s *Stream) Exhausted() bool { return s.exhausted }
