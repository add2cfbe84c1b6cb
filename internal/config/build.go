package config

import "strings"

// Mode selects how the host bundle is optimized.
type Mode string

const (
	ModeNone        Mode = "none"
	ModeDevelopment Mode = "development"
	ModeProduction  Mode = "production"
)

// ValidModes lists all supported build modes.
var ValidModes = []Mode{ModeNone, ModeDevelopment, ModeProduction}

// Valid reports whether m is one of ValidModes.
func (m Mode) Valid() bool {
	for _, v := range ValidModes {
		if m == v {
			return true
		}
	}
	return false
}

// BuildConfig configures the host build.
type BuildConfig struct {
	Mode       Mode   `yaml:"mode"`
	Entry      string `yaml:"entry"`
	Outfile    string `yaml:"outfile"`
	GlobalName string `yaml:"global_name"` // IIFE global holding the entry's exports
	Target     string `yaml:"target"`      // esbuild target, e.g. es2017
	Format     string `yaml:"format"`      // iife, cjs, esm

	// SourceKinds are the extensions eligible for closed-block extraction.
	SourceKinds []string `yaml:"source_kinds"`

	// Concurrency bounds simultaneous satellite builds; 0 means one per CPU.
	Concurrency int `yaml:"concurrency"`

	// TempDir is the parent of the per-build work directory; empty means os.TempDir().
	TempDir string `yaml:"temp_dir"`

	// KeepTemp leaves satellite sources and artifacts on disk for inspection.
	KeepTemp bool `yaml:"keep_temp"`
}

// IsSourceKind reports whether path has one of the configured source extensions.
func (b *BuildConfig) IsSourceKind(path string) bool {
	lower := strings.ToLower(path)
	for _, ext := range b.SourceKinds {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}
