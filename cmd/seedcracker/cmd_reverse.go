package main

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/QingLingXingKong/SeedCracker/internal/lcg"
	"github.com/QingLingXingKong/SeedCracker/internal/reverser"
)

var reverseLimit int

var reverseCmd = &cobra.Command{
	Use:   "reverse [calls.yaml]",
	Short: "Find generator states that produce a sequence of nextInt calls",
	Long: `Reads a call sequence and prints every 48-bit state that, when the
generator is seeded with it, reproduces the calls in order.

Call file:
  limit: 5              # optional, overridden by --limit
  calls:
    - {op: exact, bound: 16, value: 5}     # nextInt(16) == 5
    - {op: consume, bound: 2, count: 2}    # two draws, values unknown
    - {op: except, bound: 4, value: 0}     # nextInt(4) != 0
  lcg: {multiplier: 25214903917, addend: 11}   # optional, java.util.Random by default`,
	Args: cobra.ExactArgs(1),
	RunE: runReverse,
}

func init() {
	reverseCmd.Flags().IntVar(&reverseLimit, "limit", 0, "Stop after this many states (0: file value or all)")
}

// callFile is the on-disk form of a call sequence.
type callFile struct {
	Limit int        `yaml:"limit" validate:"gte=0"`
	LCG   *lcgSpec   `yaml:"lcg"`
	Calls []callSpec `yaml:"calls" validate:"required,min=1,dive"`
}

type lcgSpec struct {
	Multiplier uint64 `yaml:"multiplier" validate:"required"`
	Addend     uint64 `yaml:"addend"`
}

type callSpec struct {
	Op    string `yaml:"op" validate:"required,oneof=exact consume except"`
	Bound int32  `yaml:"bound" validate:"gt=0"`
	Value int32  `yaml:"value" validate:"gte=0,ltfield=Bound"`
	Count int    `yaml:"count" validate:"gte=0"`
}

func (c callSpec) call() reverser.Call {
	switch c.Op {
	case "exact":
		return reverser.NextInt(c.Bound, c.Value)
	case "except":
		v := c.Value
		return reverser.Filter(c.Bound, func(got int32) bool { return got != v })
	default:
		n := c.Count
		if n == 0 {
			n = 1
		}
		return reverser.Consume(c.Bound, n)
	}
}

var callValidate = validator.New()

func loadCallFile(path string) (*callFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f callFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := callValidate.Struct(f); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if f.LCG != nil && f.LCG.Multiplier&1 == 0 {
		return nil, fmt.Errorf("%s: lcg multiplier must be odd", path)
	}
	return &f, nil
}

// device builds the reverser device the file describes.
func (f *callFile) device() *reverser.Device {
	var opts []reverser.DeviceOption
	if f.LCG != nil {
		opts = append(opts, reverser.WithLCG(lcg.LCG{Multiplier: f.LCG.Multiplier & lcg.Mask, Addend: f.LCG.Addend & lcg.Mask}))
	}
	d := reverser.NewDevice(opts...)
	for _, c := range f.Calls {
		d.AddCall(c.call())
	}
	return d
}

func runReverse(cmd *cobra.Command, args []string) error {
	f, err := loadCallFile(args[0])
	if err != nil {
		return err
	}
	limit := f.Limit
	if reverseLimit > 0 {
		limit = reverseLimit
	}

	d := f.device()
	logger.Debug("reversing call sequence", zap.Int("calls", len(f.Calls)), zap.Uint("bits", d.Bits()), zap.Int64("steps", d.Steps()))
	stream, err := d.Stream(reverser.WithLimit(limit), reverser.WithBudget(budget))
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	found := 0
	for {
		state, ok := stream.Next()
		if !ok {
			break
		}
		found++
		fmt.Fprintf(w, "%d\t%#012x\n", state, state)
	}
	logger.Info("reverse finished", zap.Int("found", found), zap.Int("examined", stream.Examined()), zap.Bool("budget_exhausted", stream.Exhausted()))
	if stream.Exhausted() && found == 0 {
		return fmt.Errorf("search budget of %d exhausted", budget)
	}
	return nil
}
