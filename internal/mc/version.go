// Package mc holds the game vocabulary shared by the cracking pipeline:
// ordered release versions, biome tags and coordinate helpers.
package mc

import (
	"fmt"
	"strings"
)

// Version is an ordered game release. The zero value is not a valid version.
type Version int

const (
	V1_12 Version = iota + 1
	V1_13
	V1_14
	V1_15
	V1_16
	V1_17
)

var versionNames = map[Version]string{
	V1_12: "1.12",
	V1_13: "1.13",
	V1_14: "1.14",
	V1_15: "1.15",
	V1_16: "1.16",
	V1_17: "1.17",
}

// Latest is the newest version the pipeline knows about.
const Latest = V1_17

func (v Version) String() string {
	if s, ok := versionNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Version(%d)", int(v))
}

func (v Version) Valid() bool {
	_, ok := versionNames[v]
	return ok
}

func (v Version) IsOlderThan(o Version) bool { return v < o }

// ParseVersion accepts "1.16", "1.16.5", "v1_16" and similar spellings. Patch
// releases map to their minor version.
func ParseVersion(s string) (Version, error) {
	norm := strings.TrimSpace(strings.ToLower(s))
	norm = strings.TrimPrefix(norm, "v")
	norm = strings.ReplaceAll(norm, "_", ".")
	if parts := strings.Split(norm, "."); len(parts) > 2 {
		norm = parts[0] + "." + parts[1]
	}
	for v, name := range versionNames {
		if name == norm {
			return v, nil
		}
	}
	return 0, fmt.Errorf("mc: unknown version %q", s)
}

func (v Version) MarshalText() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("mc: invalid version %d", int(v))
	}
	return []byte(v.String()), nil
}

func (v *Version) UnmarshalText(b []byte) error {
	p, err := ParseVersion(string(b))
	if err != nil {
		return err
	}
	*v = p
	return nil
}
