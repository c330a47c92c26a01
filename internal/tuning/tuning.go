// Package tuning loads the decorator salt tables. Tables are YAML, checked
// against an embedded JSON schema before they are decoded.
package tuning

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/QingLingXingKong/SeedCracker/internal/mc"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema.json
var schemaJSON string

var schema = jsonschema.MustCompileString("decorators.schema.json", schemaJSON)

// ErrNoSalt matches every *GapError.
var ErrNoSalt = errors.New("tuning: no salt configured")

// GapError reports a lookup that the table does not cover.
type GapError struct {
	Decorator string
	Version   mc.Version
	Biome     mc.Biome
}

func (e *GapError) Error() string {
	return fmt.Sprintf("tuning: no salt for %s as of %s (biome %s)", e.Decorator, e.Version, e.Biome)
}

func (e *GapError) Unwrap() error { return ErrNoSalt }

// Config is a decorator's position in the generation order.
type Config struct {
	Index int `yaml:"index"`
	Step  int `yaml:"step"`
}

// Salt is index + 10000*step.
func (c Config) Salt() int64 {
	return int64(c.Index) + 10000*int64(c.Step)
}

type Override struct {
	Config `yaml:",inline"`
	Biomes []mc.Biome `yaml:"biomes"`
}

type Entry struct {
	Version   mc.Version `yaml:"version"`
	Config    `yaml:",inline"`
	Overrides []Override `yaml:"overrides"`
}

// For returns the config that applies in biome b.
func (e Entry) For(b mc.Biome) Config {
	for _, o := range e.Overrides {
		for _, ob := range o.Biomes {
			if ob == b {
				return o.Config
			}
		}
	}
	return e.Config
}

type Decorator struct {
	Name     string  `yaml:"-"`
	Versions []Entry `yaml:"versions"`
}

// AsOf returns the newest entry not newer than v.
func (d *Decorator) AsOf(v mc.Version) (Entry, bool) {
	i := sort.Search(len(d.Versions), func(i int) bool { return d.Versions[i].Version > v })
	if i == 0 {
		return Entry{}, false
	}
	return d.Versions[i-1], true
}

type Table struct {
	Decorators map[string]*Decorator `yaml:"decorators"`

	// Digest is the sha256 of the raw table bytes.
	Digest string `yaml:"-"`
}

// Load reads and validates a table file.
func Load(path string) (*Table, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Default returns the built-in table.
func Default() *Table {
	t, err := Parse(defaultsYAML)
	if err != nil {
		panic(fmt.Sprintf("tuning: built-in table: %v", err))
	}
	return t
}

// DefaultYAML returns the raw built-in table, for writing a starting file.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultsYAML...)
}

func Parse(raw []byte) (*Table, error) {
	if err := validate(raw); err != nil {
		return nil, err
	}
	var t Table
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("decorators.yaml: %w", err)
	}
	for name, d := range t.Decorators {
		d.Name = name
		sort.SliceStable(d.Versions, func(i, j int) bool { return d.Versions[i].Version < d.Versions[j].Version })
		for i := 1; i < len(d.Versions); i++ {
			if d.Versions[i].Version == d.Versions[i-1].Version {
				return nil, fmt.Errorf("decorators.yaml: %s lists %s twice", name, d.Versions[i].Version)
			}
		}
	}
	t.Digest = sha256Hex(raw)
	return &t, nil
}

// validate runs the schema over the YAML document. The schema validator
// expects JSON-shaped values, so the document takes a trip through JSON.
func validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("decorators.yaml: %w", err)
	}
	js, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decorators.yaml: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(js))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return fmt.Errorf("decorators.yaml: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("decorators.yaml: %w", err)
	}
	return nil
}

func (t *Table) Decorator(name string) (*Decorator, bool) {
	d, ok := t.Decorators[name]
	return d, ok
}

// Names lists the configured decorators in sorted order.
func (t *Table) Names() []string {
	out := make([]string, 0, len(t.Decorators))
	for name := range t.Decorators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Config looks up the decorator's config as of version v in biome b.
func (t *Table) Config(decorator string, v mc.Version, b mc.Biome) (Config, error) {
	d, ok := t.Decorators[decorator]
	if !ok {
		return Config{}, &GapError{Decorator: decorator, Version: v, Biome: b}
	}
	e, ok := d.AsOf(v)
	if !ok {
		return Config{}, &GapError{Decorator: decorator, Version: v, Biome: b}
	}
	return e.For(b), nil
}

// Salt is Config(...).Salt().
func (t *Table) Salt(decorator string, v mc.Version, b mc.Biome) (int64, error) {
	c, err := t.Config(decorator, v, b)
	if err != nil {
		return 0, err
	}
	return c.Salt(), nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}
