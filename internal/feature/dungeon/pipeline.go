package dungeon

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/reverser"
	"github.com/QingLingXingKong/SeedCracker/internal/timemachine"
)

const (
	skipBiome = "biome cannot host dungeons"
	skipFloor = "floor outside usable bit range"
	skipKnown = "structure seeds already known"
)

// OnDataAdded searches the dungeon's decorator state and turns it into
// structure seeds, unless the session already has them.
func (d *Data) OnDataAdded(ctx context.Context, s *cracker.DataStorage) (cracker.Outcome, error) {
	out := cracker.Outcome{Decorator: Name}
	log := s.Logger().With(zap.Stringer("dungeon", d))

	if err := s.Poke(ctx, timemachine.Structures); err != nil {
		return out, err
	}
	if !d.dec.IsValidBiome(d.Biome) {
		out.Skipped = skipBiome
		return out, nil
	}
	if len(d.Floor) == 0 || !d.UsesFloor() {
		out.Skipped = skipFloor
		return out, nil
	}
	// A missing salt must not mark the structure search as attempted.
	if _, err := d.dec.Salt(d.Biome); err != nil {
		return out, err
	}

	ran, err := s.Search(timemachine.StructureSeeds, func() error {
		return d.search(ctx, s, log, &out)
	})
	if !ran {
		out.Skipped = skipKnown
	}
	return out, err
}

func (d *Data) search(ctx context.Context, s *cracker.DataStorage, log *zap.Logger, out *cracker.Outcome) error {
	log.Warn("short-cutting to dungeons", zap.Int("bits", d.Bits()))

	start := time.Now()
	stream, err := d.Device().Stream(reverser.WithLimit(s.DecoratorLimit()), reverser.WithBudget(s.Budget()))
	if err != nil {
		return err
	}
	out.DecoratorStates = stream.Take(0)
	out.Examined, out.Exhausted = stream.Examined(), stream.Exhausted()

	result := "found"
	switch {
	case len(out.DecoratorStates) > 0:
	case out.Exhausted:
		result = "exhausted"
	default:
		result = "empty"
	}
	s.Metrics().Search(Name, result, out.Examined, time.Since(start))

	if len(out.DecoratorStates) == 0 {
		log.Error("finished dungeon search with no seeds",
			zap.Int("examined", out.Examined), zap.Bool("budget_exhausted", out.Exhausted))
		return nil
	}

	source := d.Position().String()
	if err := s.Record(ctx, timemachine.StructureSeeds, source); err != nil {
		return err
	}
	tr := d.transformer(s)
	for _, state := range out.DecoratorStates {
		seeds, err := tr.Transform(ctx, state, d.Position())
		if err != nil {
			return err
		}
		for _, seed := range seeds {
			log.Info("found structure seed", zap.Uint64("seed", seed), zap.Uint64("decorator_state", state))
		}
		out.StructureSeeds = append(out.StructureSeeds, seeds...)
		if err := s.Record(ctx, timemachine.StructureSeeds, source, seeds...); err != nil {
			return err
		}
	}
	return s.Poke(ctx, timemachine.Biomes)
}

// transformer returns the session's transformer, adjusted for this dungeon
// when the session asks for confirmation or an early stop.
func (d *Data) transformer(s *cracker.DataStorage) *relation.Transformer {
	tr := s.Transformer()
	if !s.Confirm() && !s.StopOnConfirm() {
		return tr
	}
	t := *tr
	t.StopOnConfirm = t.StopOnConfirm || s.StopOnConfirm()
	if s.Confirm() {
		t.Accept = func(seed uint64) bool {
			ok, err := d.CanStart(seed)
			return err == nil && ok
		}
	}
	return &t
}
