// Package cracker holds the state shared by every observation in a cracking
// session and runs observations through it, one at a time or in batches.
package cracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/QingLingXingKong/SeedCracker/internal/metrics"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/timemachine"
)

// DefaultDecoratorLimit is how many decorator states a search keeps.
const DefaultDecoratorLimit = 1

// Event is what sinks receive: a phase change or a recorded seed.
type Event struct {
	Session string    `json:"session"`
	Time    time.Time `json:"time"`
	Type    string    `json:"type"`
	Phase   string    `json:"phase,omitempty"`
	Kind    string    `json:"kind,omitempty"`
	Seed    uint64    `json:"seed"`
	Source  string    `json:"source,omitempty"`
}

const (
	EventPhase = "phase"
	EventSeed  = "seed"
)

// Sink persists events outside the process.
type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Data is an observation that knows how to search for its seeds.
type Data interface {
	Decorator() string
	OnDataAdded(ctx context.Context, s *DataStorage) (Outcome, error)
}

// Outcome summarises what adding one observation did.
type Outcome struct {
	Decorator string
	// Skipped is the reason no search ran; empty when one did.
	Skipped         string
	DecoratorStates []uint64
	StructureSeeds  []uint64
	Examined        int
	Exhausted       bool
	Err             error
}

func (o Outcome) label() string {
	switch {
	case o.Err != nil:
		return "error"
	case o.Skipped != "":
		return "skipped"
	case len(o.StructureSeeds) == 0:
		return "empty"
	default:
		return "found"
	}
}

// DataStorage is passed explicitly to every observation. It is safe for
// concurrent use; reversal searches for one result kind are serialised so a
// kind is searched for at most once at a time.
type DataStorage struct {
	tm          *timemachine.TimeMachine
	transformer *relation.Transformer
	log         *zap.Logger
	sinks       []Sink
	metrics     *metrics.Metrics

	decoratorLimit int
	budget         int
	confirm        bool
	stopOnConfirm  bool

	searchMu sync.Mutex
}

type Option func(*DataStorage)

func WithLogger(l *zap.Logger) Option {
	return func(s *DataStorage) {
		if l != nil {
			s.log = l
		}
	}
}

func WithSinks(sinks ...Sink) Option {
	return func(s *DataStorage) { s.sinks = append(s.sinks, sinks...) }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *DataStorage) { s.metrics = m }
}

// WithTimeMachine reuses an existing time machine, e.g. one restored from an
// archive.
func WithTimeMachine(tm *timemachine.TimeMachine) Option {
	return func(s *DataStorage) {
		if tm != nil {
			s.tm = tm
		}
	}
}

func WithDecoratorLimit(n int) Option {
	return func(s *DataStorage) {
		if n > 0 {
			s.decoratorLimit = n
		}
	}
}

// WithBudget caps the work one reversal search may spend; see
// reverser.WithBudget.
func WithBudget(n int) Option {
	return func(s *DataStorage) { s.budget = n }
}

// WithConfirm makes decorators replay each structure seed against their own
// observation and keep only the seeds that reproduce it.
func WithConfirm(on bool) Option {
	return func(s *DataStorage) { s.confirm = on }
}

// WithStopOnConfirm ends each transform at the first retry attempt that
// yields a seed. Seeds that only a later attempt explains are not reported.
func WithStopOnConfirm(on bool) Option {
	return func(s *DataStorage) { s.stopOnConfirm = on }
}

func New(t *relation.Transformer, opts ...Option) *DataStorage {
	s := &DataStorage{
		tm:             timemachine.New(),
		transformer:    t,
		log:            zap.NewNop(),
		decoratorLimit: DefaultDecoratorLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *DataStorage) TimeMachine() *timemachine.TimeMachine { return s.tm }
func (s *DataStorage) Transformer() *relation.Transformer    { return s.transformer }
func (s *DataStorage) Logger() *zap.Logger                   { return s.log }
func (s *DataStorage) Metrics() *metrics.Metrics             { return s.metrics }
func (s *DataStorage) DecoratorLimit() int                   { return s.decoratorLimit }
func (s *DataStorage) Budget() int                           { return s.budget }
func (s *DataStorage) Confirm() bool                         { return s.confirm }
func (s *DataStorage) StopOnConfirm() bool                   { return s.stopOnConfirm }

// Poke advances the session phase and tells the sinks when it moved.
func (s *DataStorage) Poke(ctx context.Context, p timemachine.Phase) error {
	if !s.tm.Poke(p) {
		return nil
	}
	return s.emit(ctx, Event{Type: EventPhase, Phase: p.String()})
}

// Search runs fn while holding the search lock, unless kind k already has a
// result. It reports whether fn ran.
func (s *DataStorage) Search(k timemachine.Kind, fn func() error) (bool, error) {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()
	if s.tm.HasResult(k) {
		return false, nil
	}
	return true, fn()
}

// Record appends seeds of kind k to the time machine and the sinks. With no
// seeds it marks k as attempted.
func (s *DataStorage) Record(ctx context.Context, k timemachine.Kind, source string, seeds ...uint64) error {
	s.tm.RecordResult(k, seeds...)
	s.metrics.Seeds(k.String(), len(seeds))

	var errs []error
	for _, seed := range seeds {
		e := Event{Type: EventSeed, Kind: k.String(), Seed: seed, Source: source}
		if err := s.emit(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *DataStorage) emit(ctx context.Context, e Event) error {
	e.Session = s.tm.Session()
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("cracker: sink: %w", err)
	}
	return nil
}

// Add runs one observation.
func (s *DataStorage) Add(ctx context.Context, d Data) (Outcome, error) {
	out, err := d.OnDataAdded(ctx, s)
	if out.Decorator == "" {
		out.Decorator = d.Decorator()
	}
	out.Err = err
	s.metrics.Observation(out.Decorator, out.label())
	return out, err
}

// RunBatch adds observations concurrently on up to workers goroutines. A
// failing observation is reported in its Outcome and does not stop the
// others; the returned error is only set when ctx ends the batch.
func (s *DataStorage) RunBatch(ctx context.Context, data []Data, workers int) ([]Outcome, error) {
	if workers <= 0 {
		workers = 1
	}
	outs := make([]Outcome, len(data))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, d := range data {
		i, d := i, d
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				outs[i] = Outcome{Decorator: d.Decorator(), Err: err}
				return err
			}
			o, err := s.Add(gctx, d)
			if err != nil {
				s.log.Warn("observation failed", zap.Int("index", i), zap.String("decorator", o.Decorator), zap.Error(err))
			}
			outs[i] = o
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outs, err
	}
	return outs, ctx.Err()
}
