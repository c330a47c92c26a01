package main

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/QingLingXingKong/SeedCracker/internal/cracker"
	"github.com/QingLingXingKong/SeedCracker/internal/persistence/journal"
	"github.com/QingLingXingKong/SeedCracker/internal/persistence/resultdb"
	"github.com/QingLingXingKong/SeedCracker/internal/timemachine"
)

var (
	seedsKind     string
	seedsSessions bool
)

var seedsCmd = &cobra.Command{
	Use:   "seeds",
	Short: "List seeds and sessions stored in the archive",
	RunE:  runSeeds,
}

var journalCmd = &cobra.Command{
	Use:   "journal [dir]",
	Short: "Replay journal files and print their events",
	Long: `Reads every events-*.jsonl.zst file in dir (default: --journal-dir) in
order and prints one line per event, followed by per-kind seed totals.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runJournal,
}

func init() {
	seedsCmd.Flags().StringVar(&seedsKind, "kind", timemachine.StructureSeeds.String(), "Seed kind (structure_seeds, world_seeds)")
	seedsCmd.Flags().BoolVar(&seedsSessions, "sessions", false, "List sessions instead of seeds")
}

func runSeeds(cmd *cobra.Command, args []string) error {
	if dbPath == "" {
		return errors.New("missing --db")
	}
	kind, err := timemachine.ParseKind(seedsKind)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext()
	defer cancel()

	a, err := resultdb.OpenSQLite(dbPath)
	if err != nil {
		return err
	}
	defer a.Close()

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer tw.Flush()

	if seedsSessions {
		sessions, err := a.Sessions(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(tw, "SESSION\tSTARTED\tPHASE\tSEEDS")
		for _, s := range sessions {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", s.ID, s.StartedAt.Format(time.RFC3339), s.Phase, s.Seeds)
		}
		return nil
	}

	seeds, err := a.Seeds(ctx, kind)
	if err != nil {
		return err
	}
	fmt.Fprintln(tw, "SEED\tSOURCE\tSESSION\tRECORDED")
	for _, s := range seeds {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", s.Seed, s.Source, s.Session, s.RecordedAt.Format(time.RFC3339))
	}
	return nil
}

func runJournal(cmd *cobra.Command, args []string) error {
	dir := journalDir
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		return errors.New("missing journal dir")
	}

	w := cmd.OutOrStdout()
	totals := map[string]int{}
	err := journal.ReadDir(dir, func(e cracker.Event) error {
		at := e.Time.Format(time.RFC3339)
		switch e.Type {
		case cracker.EventPhase:
			fmt.Fprintf(w, "%s %s phase %s\n", at, e.Session, e.Phase)
		case cracker.EventSeed:
			totals[e.Kind]++
			fmt.Fprintf(w, "%s %s %s %d %s\n", at, e.Session, e.Kind, e.Seed, e.Source)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range []timemachine.Kind{timemachine.StructureSeeds, timemachine.WorldSeedSet} {
		if n := totals[k.String()]; n > 0 {
			fmt.Fprintf(w, "total %s: %d\n", k, n)
		}
	}
	return nil
}
