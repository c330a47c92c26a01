package dungeon

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/QingLingXingKong/SeedCracker/internal/mc"
	"github.com/QingLingXingKong/SeedCracker/internal/tuning"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	_ = validate.RegisterValidation("floorcalls", validateFloor)
	_ = validate.RegisterValidation("mcversion", validateVersion)
}

// validateFloor accepts strings of C (cobblestone) and M (mossy); 0 and 1
// are accepted as their aliases.
func validateFloor(fl validator.FieldLevel) bool {
	_, err := ParseFloor(fl.Field().String())
	return err == nil
}

func validateVersion(fl validator.FieldLevel) bool {
	_, err := mc.ParseVersion(fl.Field().String())
	return err == nil
}

// Observation is a dungeon as a player records it.
type Observation struct {
	Version string  `yaml:"version" json:"version" validate:"required,mcversion"`
	Biome   string  `yaml:"biome" json:"biome" validate:"required"`
	X       int32   `yaml:"x" json:"x"`
	Y       int32   `yaml:"y" json:"y" validate:"gte=0,lte=255"`
	Z       int32   `yaml:"z" json:"z"`
	Size    []int32 `yaml:"size,omitempty" json:"size,omitempty" validate:"omitempty,len=2,dive,gte=2,lte=3"`
	Floor   string  `yaml:"floor" json:"floor" validate:"omitempty,floorcalls"`
}

// Batch is a file of observations.
type Batch struct {
	Observations []Observation `yaml:"observations" validate:"required,min=1,dive"`
}

func (o Observation) Validate() error {
	return validate.Struct(o)
}

// ParseFloor decodes a floor string, ignoring whitespace.
func ParseFloor(s string) ([]FloorCall, error) {
	var out []FloorCall
	for i, r := range s {
		switch r {
		case 'C', 'c', '0':
			out = append(out, Cobblestone)
		case 'M', 'm', '1':
			out = append(out, Mossy)
		case ' ', '\t', '\n', '\r':
		default:
			return nil, fmt.Errorf("dungeon: floor[%d]: unexpected %q", i, r)
		}
	}
	return out, nil
}

func FormatFloor(floor []FloorCall) string {
	var b strings.Builder
	for _, c := range floor {
		b.WriteString(c.String())
	}
	return b.String()
}

// Data validates the observation and builds the dungeon it describes.
func (o Observation) Data(table *tuning.Table) (*Data, error) {
	if err := o.Validate(); err != nil {
		return nil, fmt.Errorf("dungeon: %w", err)
	}
	v, err := mc.ParseVersion(o.Version)
	if err != nil {
		return nil, err
	}
	b, err := mc.ParseBiome(o.Biome)
	if err != nil {
		return nil, err
	}
	floor, err := ParseFloor(o.Floor)
	if err != nil {
		return nil, err
	}
	var size Size
	if len(o.Size) == 2 {
		size = Size{X: o.Size[0], Z: o.Size[1]}
	}
	return New(v, table).At(o.X, o.Y, o.Z, size, floor, b), nil
}

// LoadBatch reads and validates a YAML batch file.
func LoadBatch(path string) (Batch, error) {
	var b Batch
	raw, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := yaml.Unmarshal(raw, &b); err != nil {
		return b, fmt.Errorf("%s: %w", path, err)
	}
	if err := validate.Struct(b); err != nil {
		return b, fmt.Errorf("%s: %w", path, err)
	}
	return b, nil
}
