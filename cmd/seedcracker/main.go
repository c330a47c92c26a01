// Command seedcracker recovers Minecraft structure seeds from observed world
// features.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/metrics"
	"github.com/QingLingXingKong/SeedCracker/internal/persistence/journal"
	"github.com/QingLingXingKong/SeedCracker/internal/persistence/resultdb"
	"github.com/QingLingXingKong/SeedCracker/internal/population"
	"github.com/QingLingXingKong/SeedCracker/internal/relation"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

var (
	// Global flags
	verbose    bool
	tuningPath string
	dbPath     string
	journalDir string
	budget     int
	timeout    time.Duration

	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "seedcracker",
	Short: "Recover structure seeds from observed world features",
	Long: `seedcracker reverses the random calls a world generator made when it
placed an observed feature, and turns the recovered generator state into the
48-bit structure seeds that can produce it.

Seeds found in one run can be journaled (--journal-dir) and archived (--db);
a later run with the same archive skips searches that already have results.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config = zap.NewDevelopmentConfig()
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&tuningPath, "tuning", "", "Decorator salt table (default: built-in)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "sqlite archive of sessions and seeds")
	rootCmd.PersistentFlags().StringVar(&journalDir, "journal-dir", "", "Directory for the hourly seed journal")
	rootCmd.PersistentFlags().IntVar(&budget, "budget", 0, "Max work (lattice nodes plus replayed candidates) one search may spend (0: unlimited)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Minute, "Operation timeout")

	rootCmd.AddCommand(dungeonCmd, simulateCmd, batchCmd, reverseCmd, seedsCmd, journalCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// commandContext bounds a command by --timeout and SIGINT/SIGTERM.
func commandContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	return ctx, func() {
		stop()
		cancel()
	}
}

func loadTuning() (*tuning.Table, error) {
	if tuningPath == "" {
		return tuning.Default(), nil
	}
	return tuning.Load(tuningPath)
}

// session is one cracking run with its sinks opened.
type session struct {
	table   *tuning.Table
	storage *cracker.DataStorage
	journal *journal.Writer
	archive *resultdb.Archive
}

// openSession builds the data storage for a run. When an archive is
// configured its seeds are restored first so known results short-circuit.
func openSession(ctx context.Context, reg prometheus.Registerer) (*session, error) {
	table, err := loadTuning()
	if err != nil {
		return nil, err
	}
	s := &session{table: table}

	opts := []cracker.Option{
		cracker.WithLogger(logger),
		cracker.WithBudget(budget),
		cracker.WithConfirm(confirmSeeds),
		cracker.WithStopOnConfirm(firstAttempt),
	}
	if reg != nil {
		opts = append(opts, cracker.WithMetrics(metrics.New(reg)))
	}
	if journalDir != "" {
		s.journal = journal.NewWriter(journalDir)
		opts = append(opts, cracker.WithSinks(s.journal))
	}
	if dbPath != "" {
		a, err := resultdb.OpenSQLite(dbPath)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("open archive: %w", err)
		}
		s.archive = a
		if err := a.UpsertTuning(ctx, table); err != nil {
			s.close()
			return nil, fmt.Errorf("archive tuning: %w", err)
		}
		opts = append(opts, cracker.WithSinks(a))
	}

	s.storage = cracker.New(relation.NewTransformer(table, population.Validator{}), opts...)
	if s.archive != nil {
		n, err := s.archive.Restore(ctx, s.storage.TimeMachine())
		if err != nil {
			s.close()
			return nil, fmt.Errorf("restore archive: %w", err)
		}
		if n > 0 {
			logger.Info("restored archived seeds", zap.Int("seeds", n), zap.String("db", dbPath))
		}
	}
	return s, nil
}

func (s *session) close() {
	if s.archive != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.archive.Sync(ctx); err != nil {
			logger.Warn("archive sync failed", zap.Error(err))
		}
		cancel()
		if n := s.archive.Dropped(); n > 0 {
			logger.Warn("archive dropped events", zap.Int64("dropped", n))
		}
		_ = s.archive.Close()
	}
	if s.journal != nil {
		if err := s.journal.Close(); err != nil {
			logger.Warn("journal close failed", zap.Error(err))
		}
	}
}
