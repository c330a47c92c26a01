package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/feature/dungeon"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
)

var (
	obs dungeon.Observation

	simWorld  int64
	simChunkX int32
	simChunkZ int32
	simOpts   dungeon.SimOptions

	batchWorkers int
	metricsAddr  string
	confirmSeeds bool
	firstAttempt bool
)

var dungeonCmd = &cobra.Command{
	Use:   "dungeon",
	Short: "Crack structure seeds from one dungeon",
	Long: `Reverses the spawner position and floor pattern of one dungeon.

The floor is read along the dungeon floor in generation order: C for
cobblestone, M for mossy cobblestone. Between 13 and 24 cobblestone blocks
make the search both fast and unique.

Example:
  seedcracker dungeon --version 1.16 --biome plains --x 84 --y 23 --z -108 \
    --floor CMMCMMMCMCCMMMMCMCCMCMMMCMCMMCCMC`,
	RunE: runDungeon,
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Print the dungeon observation a world seed would produce",
	Long: `Generates the dungeon a world places in a chunk and prints it as a batch
file, so it can be fed back into "seedcracker batch".`,
	RunE: runSimulate,
}

var batchCmd = &cobra.Command{
	Use:   "batch [observations.yaml]",
	Short: "Run a file of observations concurrently",
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

func init() {
	f := dungeonCmd.Flags()
	f.StringVar(&obs.Version, "version", mc.Latest.String(), "Minecraft version")
	f.StringVar(&obs.Biome, "biome", mc.Plains.Key(), "Biome at the spawner")
	f.Int32Var(&obs.X, "x", 0, "Spawner block x")
	f.Int32Var(&obs.Y, "y", 0, "Spawner block y")
	f.Int32Var(&obs.Z, "z", 0, "Spawner block z")
	f.Int32SliceVar(&obs.Size, "size", nil, "Dungeon size x,z (2 or 3 each)")
	f.StringVar(&obs.Floor, "floor", "", "Floor pattern (C = cobblestone, M = mossy)")

	sf := simulateCmd.Flags()
	sf.Int64Var(&simWorld, "world", 0, "World seed")
	sf.Int32Var(&simChunkX, "chunk-x", 0, "Chunk x")
	sf.Int32Var(&simChunkZ, "chunk-z", 0, "Chunk z")
	sf.StringVar(&obs.Version, "version", mc.Latest.String(), "Minecraft version")
	sf.StringVar(&obs.Biome, "biome", mc.Plains.Key(), "Biome of the chunk")
	sf.IntVar(&simOpts.Attempt, "attempt", 0, "Decorator attempt that placed the dungeon")
	sf.IntVar(&simOpts.Cobblestone, "cobblestone", 20, "Cobblestone blocks to record")

	batchCmd.Flags().IntVar(&batchWorkers, "workers", 4, "Observations searched concurrently")
	batchCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	for _, c := range []*cobra.Command{dungeonCmd, batchCmd} {
		c.Flags().BoolVar(&confirmSeeds, "confirm", false, "Keep only structure seeds that regenerate the observed dungeon")
		c.Flags().BoolVar(&firstAttempt, "first-attempt", false, "Stop at the first retry attempt that yields structure seeds")
	}
}

func runDungeon(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	s, err := openSession(ctx, nil)
	if err != nil {
		return err
	}
	defer s.close()

	data, err := obs.Data(s.table)
	if err != nil {
		return err
	}
	logger.Info("cracking dungeon", zap.Stringer("dungeon", data), zap.Int("bits", data.Bits()))
	out, err := s.storage.Add(ctx, data)
	printOutcome(cmd.OutOrStdout(), 0, out)
	return err
}

func runSimulate(cmd *cobra.Command, args []string) error {
	v, err := mc.ParseVersion(obs.Version)
	if err != nil {
		return err
	}
	b, err := mc.ParseBiome(obs.Biome)
	if err != nil {
		return err
	}
	table, err := loadTuning()
	if err != nil {
		return err
	}
	o, err := dungeon.Simulate(simWorld, simChunkX, simChunkZ, b, v, table, simOpts)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(cmd.OutOrStdout())
	defer enc.Close()
	return enc.Encode(dungeon.Batch{Observations: []dungeon.Observation{o}})
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := commandContext()
	defer cancel()

	batch, err := dungeon.LoadBatch(args[0])
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	if metricsAddr != "" {
		stop, err := serveMetrics(reg, metricsAddr)
		if err != nil {
			return err
		}
		defer stop()
	}

	s, err := openSession(ctx, reg)
	if err != nil {
		return err
	}
	defer s.close()

	data := make([]cracker.Data, 0, len(batch.Observations))
	for i, o := range batch.Observations {
		d, err := o.Data(s.table)
		if err != nil {
			return fmt.Errorf("observation %d: %w", i, err)
		}
		data = append(data, d)
	}

	start := time.Now()
	outs, err := s.storage.RunBatch(ctx, data, batchWorkers)
	w := cmd.OutOrStdout()
	for i, o := range outs {
		printOutcome(w, i, o)
	}
	logger.Info("batch finished", zap.Int("observations", len(outs)), zap.Duration("took", time.Since(start)))
	return err
}

// serveMetrics exposes reg on addr until stop is called.
func serveMetrics(reg *prometheus.Registry, addr string) (stop func(), err error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listen: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving metrics", zap.String("addr", ln.Addr().String()))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func printOutcome(w io.Writer, i int, o cracker.Outcome) {
	switch {
	case o.Err != nil:
		fmt.Fprintf(w, "#%d %s: error: %v\n", i, o.Decorator, o.Err)
	case o.Skipped != "":
		fmt.Fprintf(w, "#%d %s: skipped: %s\n", i, o.Decorator, o.Skipped)
	case len(o.DecoratorStates) == 0:
		fmt.Fprintf(w, "#%d %s: no decorator state (examined %d, budget exhausted %t)\n", i, o.Decorator, o.Examined, o.Exhausted)
	default:
		for _, st := range o.DecoratorStates {
			fmt.Fprintf(w, "#%d %s: decorator state %d\n", i, o.Decorator, st)
		}
		for _, seed := range o.StructureSeeds {
			fmt.Fprintf(w, "#%d %s: structure seed %d\n", i, o.Decorator, seed)
		}
	}
}
