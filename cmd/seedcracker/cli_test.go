package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/mc"
)

func testCmd() (*cobra.Command, *bytes.Buffer) {
	var buf bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&buf)
	return cmd, &buf
}

// useWorkspace points the archive and journal at a temp dir for one test.
func useWorkspace(t *testing.T) string {
	t.Helper()
	logger = zap.NewNop()
	ws := t.TempDir()
	dbPath = filepath.Join(ws, "results.sqlite")
	journalDir = filepath.Join(ws, "journal")
	t.Cleanup(func() {
		dbPath, journalDir, tuningPath = "", "", ""
		budget = 0
		confirmSeeds, firstAttempt = false, false
	})
	return ws
}

func TestSimulateBatchAndResume(t *testing.T) {
	ws := useWorkspace(t)

	const world = int64(987654321987654321)
	simWorld, simChunkX, simChunkZ = world, -3, 11
	obs.Version, obs.Biome = mc.V1_16.String(), "desert"
	simOpts.Attempt, simOpts.Cobblestone = 1, 20

	cmd, out := testCmd()
	require.NoError(t, runSimulate(cmd, nil))
	assert.Contains(t, out.String(), "observations:")

	batchPath := filepath.Join(ws, "batch.yaml")
	require.NoError(t, os.WriteFile(batchPath, out.Bytes(), 0o644))

	batchWorkers = 2
	cmd, out = testCmd()
	require.NoError(t, runBatch(cmd, []string{batchPath}))
	want := fmt.Sprintf("structure seed %d", uint64(world)&lcg.Mask)
	assert.Contains(t, out.String(), want)

	cmd, out = testCmd()
	seedsSessions = false
	seedsKind = "structure_seeds"
	require.NoError(t, runSeeds(cmd, nil))
	assert.Contains(t, out.String(), fmt.Sprint(uint64(world)&lcg.Mask))

	cmd, out = testCmd()
	require.NoError(t, runJournal(cmd, nil))
	assert.Contains(t, out.String(), "phase biomes")
	assert.Contains(t, out.String(), "total structure_seeds:")

	// A second run restores the archive and skips the search.
	cmd, out = testCmd()
	require.NoError(t, runBatch(cmd, []string{batchPath}))
	assert.Contains(t, out.String(), "skipped: structure seeds already known")
}

func TestBatchConfirmKeepsWorldSeed(t *testing.T) {
	ws := useWorkspace(t)
	dbPath = ""

	const world = int64(987654321987654321)
	simWorld, simChunkX, simChunkZ = world, -3, 11
	obs.Version, obs.Biome = mc.V1_16.String(), "desert"
	simOpts.Attempt, simOpts.Cobblestone = 1, 20

	cmd, out := testCmd()
	require.NoError(t, runSimulate(cmd, nil))
	batchPath := filepath.Join(ws, "batch.yaml")
	require.NoError(t, os.WriteFile(batchPath, out.Bytes(), 0o644))

	confirmSeeds = true
	batchWorkers = 1
	cmd, out = testCmd()
	require.NoError(t, runBatch(cmd, []string{batchPath}))
	assert.Contains(t, out.String(), fmt.Sprintf("structure seed %d", uint64(world)&lcg.Mask))
}

func TestDungeonCommandSkipsNether(t *testing.T) {
	useWorkspace(t)
	obs.Version, obs.Biome = "1.16", "nether_wastes"
	obs.X, obs.Y, obs.Z = 10, 40, 10
	obs.Size = nil
	obs.Floor = strings.Repeat("C", 15)

	cmd, out := testCmd()
	require.NoError(t, runDungeon(cmd, nil))
	assert.Contains(t, out.String(), "skipped: biome cannot host dungeons")
}

func TestReverseCommand(t *testing.T) {
	useWorkspace(t)
	const seed = 0x1234_5678_9ABC

	r := lcg.FromState(lcg.Java, seed)
	var b strings.Builder
	b.WriteString("calls:\n")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "  - {op: exact, bound: 256, value: %d}\n", r.NextInt(256))
	}
	r.NextInt(4)
	b.WriteString("  - {op: consume, bound: 4}\n")
	fmt.Fprintf(&b, "  - {op: except, bound: 16, value: %d}\n", (r.NextInt(16)+1)%16)

	p := filepath.Join(t.TempDir(), "calls.yaml")
	require.NoError(t, os.WriteFile(p, []byte(b.String()), 0o644))

	cmd, out := testCmd()
	require.NoError(t, runReverse(cmd, []string{p}))
	assert.Equal(t, fmt.Sprintf("%d\t%#012x\n", seed, seed), out.String())
}

func TestLoadCallFileRejectsBadCalls(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"empty":       "calls: []\n",
		"unknown op":  "calls:\n  - {op: skip, bound: 4}\n",
		"zero bound":  "calls:\n  - {op: exact, bound: 0, value: 0}\n",
		"value range": "calls:\n  - {op: exact, bound: 4, value: 4}\n",
		"even lcg":    "lcg: {multiplier: 4, addend: 1}\ncalls:\n  - {op: exact, bound: 4, value: 1}\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			p := filepath.Join(dir, strings.ReplaceAll(name, " ", "_")+".yaml")
			require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
			_, err := loadCallFile(p)
			assert.Error(t, err)
		})
	}
}

func TestSeedsRequiresDB(t *testing.T) {
	useWorkspace(t)
	dbPath = ""
	cmd, _ := testCmd()
	assert.Error(t, runSeeds(cmd, nil))
}
