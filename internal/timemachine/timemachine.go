// Package timemachine tracks how far a cracking session has progressed and
// which result sets it already holds, so expensive searches run at most once.
package timemachine

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// Phase is a pipeline stage. Phases only move forward.
type Phase int

const (
	None Phase = iota
	Structures
	Biomes
	WorldSeeds
)

func (p Phase) String() string {
	switch p {
	case None:
		return "none"
	case Structures:
		return "structures"
	case Biomes:
		return "biomes"
	case WorldSeeds:
		return "world_seeds"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ParsePhase is the inverse of Phase.String.
func ParsePhase(s string) (Phase, error) {
	for p := None; p <= WorldSeeds; p++ {
		if p.String() == s {
			return p, nil
		}
	}
	return None, fmt.Errorf("timemachine: unknown phase %q", s)
}

// Kind names a result set.
type Kind int

const (
	StructureSeeds Kind = iota
	WorldSeedSet
)

func (k Kind) String() string {
	switch k {
	case StructureSeeds:
		return "structure_seeds"
	case WorldSeedSet:
		return "world_seeds"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch s {
	case "structure_seeds":
		return StructureSeeds, nil
	case "world_seeds":
		return WorldSeedSet, nil
	}
	return 0, fmt.Errorf("timemachine: unknown kind %q", s)
}

// TimeMachine is safe for concurrent use. A kind with no entry has not been
// attempted; an entry, even an empty one, means a search produced it.
type TimeMachine struct {
	session string

	mu      sync.Mutex
	phase   Phase
	results map[Kind][]uint64
}

func New() *TimeMachine {
	return &TimeMachine{
		session: uuid.NewString(),
		results: map[Kind][]uint64{},
	}
}

// Session identifies this run in journals and archives.
func (t *TimeMachine) Session() string { return t.session }

// Poke advances the phase to p. Pokes to earlier phases are ignored.
// It reports whether the phase changed.
func (t *TimeMachine) Poke(p Phase) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if p <= t.phase {
		return false
	}
	t.phase = p
	return true
}

func (t *TimeMachine) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

func (t *TimeMachine) HasResult(k Kind) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.results[k]
	return ok
}

// RecordResult appends values to kind k. With no values it only marks the
// set as attempted.
func (t *TimeMachine) RecordResult(k Kind, values ...uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.results[k] = append(t.results[k], values...)
	if t.results[k] == nil {
		t.results[k] = []uint64{}
	}
}

// Results returns a copy of kind k, or nil when it was never attempted.
func (t *TimeMachine) Results(k Kind) []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.results[k]
	if !ok {
		return nil
	}
	return append([]uint64{}, v...)
}
