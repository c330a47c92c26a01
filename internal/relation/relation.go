// Package relation maps a recovered decorator state to the structure seeds it
// can come from.
//
// A decorator is seeded with setSeed(populationSeed + salt), so the state
// recovered from its calls gives the population seed back once the
// multiplier scramble and the salt are undone. The observed feature may not
// have been the decorator's first attempt in the chunk; earlier attempts are
// reached by rewinding the generator a fixed number of draws per attempt.
package relation

import (
	"context"
	"fmt"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
)

const (
	DefaultRetryStep = -5
	DefaultRetries   = 8
)

// PopulationSeed undoes the decorator seeding: (state ^ multiplier) - salt.
func PopulationSeed(decoratorState uint64, salt int64) uint64 {
	return ((decoratorState ^ lcg.Java.Multiplier) - uint64(salt)) & lcg.Mask
}

// DecoratorState is the state setSeed(populationSeed + salt) leaves behind.
func DecoratorState(populationSeed uint64, salt int64) uint64 {
	return ((populationSeed + uint64(salt)) ^ lcg.Java.Multiplier) & lcg.Mask
}

// Sequence is a lazy finite stream of seeds.
type Sequence interface {
	Next() (uint64, bool)
}

// Validator turns a population seed at a chunk corner into the structure
// seeds consistent with it.
type Validator interface {
	Validate(populationSeed uint64, blockX, blockZ int32, v mc.Version) (Sequence, error)
}

type ValidatorFunc func(populationSeed uint64, blockX, blockZ int32, v mc.Version) (Sequence, error)

func (f ValidatorFunc) Validate(populationSeed uint64, blockX, blockZ int32, v mc.Version) (Sequence, error) {
	return f(populationSeed, blockX, blockZ, v)
}

// Salts is satisfied by *tuning.Table.
type Salts interface {
	Salt(decorator string, v mc.Version, b mc.Biome) (int64, error)
}

// Position locates the observed feature.
type Position struct {
	Decorator string
	ChunkX    int32
	ChunkZ    int32
	Biome     mc.Biome
	Version   mc.Version
}

func (p Position) BlockX() int32 { return p.ChunkX << 4 }
func (p Position) BlockZ() int32 { return p.ChunkZ << 4 }

func (p Position) String() string {
	return fmt.Sprintf("%s@(%d,%d) %s %s", p.Decorator, p.ChunkX, p.ChunkZ, p.Biome, p.Version)
}

// Transformer runs the decorator state through every retry attempt. Zero
// RetryStep and Retries select the defaults.
type Transformer struct {
	Salts     Salts
	Validator Validator

	RetryStep int64
	Retries   int
	// StopOnConfirm ends the retries at the first attempt that confirms a
	// seed. By default every attempt runs.
	StopOnConfirm bool
	// Accept, when set, must approve each structure seed.
	Accept func(structureSeed uint64) bool
}

func NewTransformer(salts Salts, v Validator) *Transformer {
	return &Transformer{Salts: salts, Validator: v, RetryStep: DefaultRetryStep, Retries: DefaultRetries}
}

// Attempt is one retry round's outcome.
type Attempt struct {
	Index          int
	DecoratorState uint64
	PopulationSeed uint64
	Seeds          []uint64
}

// Transform returns the structure seeds from all attempts, in attempt order.
// A missing salt fails the whole transform with a *tuning.GapError.
func (t *Transformer) Transform(ctx context.Context, decoratorState uint64, pos Position) ([]uint64, error) {
	attempts, err := t.Attempts(ctx, decoratorState, pos)
	var out []uint64
	for _, a := range attempts {
		out = append(out, a.Seeds...)
	}
	return out, err
}

// Attempts is Transform with the per-attempt breakdown. On error the attempts
// completed so far are returned with it.
func (t *Transformer) Attempts(ctx context.Context, decoratorState uint64, pos Position) ([]Attempt, error) {
	salt, err := t.Salts.Salt(pos.Decorator, pos.Version, pos.Biome)
	if err != nil {
		return nil, err
	}
	step, retries := t.RetryStep, t.Retries
	if step == 0 {
		step = DefaultRetryStep
	}
	if retries <= 0 {
		retries = DefaultRetries
	}
	rewind := lcg.Java.Combine(step)

	var out []Attempt
	state := decoratorState & lcg.Mask
	for i := 0; i < retries; i++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		a := Attempt{Index: i, DecoratorState: state, PopulationSeed: PopulationSeed(state, salt)}
		seq, err := t.Validator.Validate(a.PopulationSeed, pos.BlockX(), pos.BlockZ(), pos.Version)
		if err != nil {
			return out, fmt.Errorf("relation: attempt %d at %s: %w", i, pos, err)
		}
		for s, ok := seq.Next(); ok; s, ok = seq.Next() {
			if t.Accept == nil || t.Accept(s) {
				a.Seeds = append(a.Seeds, s)
			}
		}
		out = append(out, a)
		if t.StopOnConfirm && len(a.Seeds) > 0 {
			break
		}
		state = rewind.Next(state)
	}
	return out, nil
}
