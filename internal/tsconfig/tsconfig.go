// Package tsconfig finds and loads a project's tsconfig.json, following its
// extends chain, and derives the relaxed options used for closed-block emit.
package tsconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tailscale/hujson"
)

// FileName is the file Find looks for.
const FileName = "tsconfig.json"

// Config is a tsconfig document with its extends chain already applied.
type Config struct {
	// Path is the file the config was loaded from; empty for a synthesized config.
	Path string

	CompilerOptions map[string]any
	Other           map[string]any
}

// Relaxations are forced onto the project options for closed-block emit. The
// satellite is a fragment of a host module and must not fail on lint-level checks.
var Relaxations = map[string]any{
	"noUnusedLocals":     false,
	"noUnusedParameters": false,
	"noImplicitAny":      false,
	"noImplicitReturns":  false,
	"allowUnusedLabels":  true,
	"skipLibCheck":       true,
	"sourceMap":          false,
	"declaration":        false,
}

// Find walks up from dir and returns the nearest tsconfig.json.
func Find(dir string) (string, bool) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// Load reads path and merges every config it extends, base first. A config
// may be reached through several branches of the chain; only a config that
// extends itself is a cycle.
func Load(path string) (*Config, error) {
	return load(path, map[string]bool{})
}

// load tracks the configs on the current extends path in active.
func load(path string, active map[string]bool) (*Config, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if active[abs] {
		return nil, fmt.Errorf("tsconfig extends cycle at %s", abs)
	}
	active[abs] = true
	defer delete(active, abs)

	doc, err := readDocument(abs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{Path: abs, CompilerOptions: map[string]any{}, Other: map[string]any{}}
	for _, ref := range extendsOf(doc) {
		basePath, err := resolveExtends(filepath.Dir(abs), ref)
		if err != nil {
			return nil, err
		}
		base, err := load(basePath, active)
		if err != nil {
			return nil, fmt.Errorf("extends %q: %w", ref, err)
		}
		cfg.merge(base)
	}

	cfg.merge(fromDocument(doc))
	return cfg, nil
}

func readDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tsconfig: %w", err)
	}
	std, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(std, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}

// extendsOf accepts both the string and the array form of "extends".
func extendsOf(doc map[string]any) []string {
	switch v := doc["extends"].(type) {
	case string:
		return []string{v}
	case []any:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// resolveExtends resolves a relative path or a package reference found in node_modules.
func resolveExtends(dir, ref string) (string, error) {
	if strings.HasPrefix(ref, ".") || filepath.IsAbs(ref) {
		p := ref
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, ref)
		}
		for _, candidate := range []string{p, p + ".json"} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		return "", fmt.Errorf("tsconfig %q not found from %s", ref, dir)
	}

	for cur := dir; ; cur = filepath.Dir(cur) {
		base := filepath.Join(cur, "node_modules", filepath.FromSlash(ref))
		for _, candidate := range []string{base, base + ".json", filepath.Join(base, FileName)} {
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return candidate, nil
			}
		}
		if filepath.Dir(cur) == cur {
			break
		}
	}
	return "", fmt.Errorf("tsconfig package %q not found from %s", ref, dir)
}

func fromDocument(doc map[string]any) *Config {
	cfg := &Config{CompilerOptions: map[string]any{}, Other: map[string]any{}}
	for k, v := range doc {
		switch k {
		case "extends":
		case "compilerOptions":
			if opts, ok := v.(map[string]any); ok {
				cfg.CompilerOptions = opts
			}
		default:
			cfg.Other[k] = v
		}
	}
	return cfg
}

// merge overlays other onto c. Compiler options merge key by key; every
// other top-level key replaces the base value.
func (c *Config) merge(other *Config) {
	for k, v := range other.CompilerOptions {
		c.CompilerOptions[k] = v
	}
	for k, v := range other.Other {
		c.Other[k] = v
	}
}

// Relaxed returns a copy of c with Relaxations applied.
func (c *Config) Relaxed() *Config {
	out := &Config{Path: c.Path, CompilerOptions: map[string]any{}, Other: map[string]any{}}
	out.merge(c)
	for k, v := range Relaxations {
		out.CompilerOptions[k] = v
	}
	return out
}

// Raw renders the config as a tsconfig JSON document.
func (c *Config) Raw() (string, error) {
	doc := map[string]any{"compilerOptions": c.CompilerOptions}
	for k, v := range c.Other {
		doc[k] = v
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// ErrNotFound is returned by ForEntry when no tsconfig.json encloses the entry
// and no explicit path was configured.
var ErrNotFound = errors.New("tsconfig not found")

// ForEntry loads the configured tsconfig, or the nearest one above entry.
// A missing project config yields an empty config and ErrNotFound.
func ForEntry(entry, configured string) (*Config, error) {
	path := configured
	if path == "" {
		found, ok := Find(filepath.Dir(entry))
		if !ok {
			return &Config{CompilerOptions: map[string]any{}, Other: map[string]any{}}, ErrNotFound
		}
		path = found
	}
	return Load(path)
}

// EmitRaw is the relaxed tsconfig JSON for closed-block emit. A project
// without a tsconfig gets the relaxations alone.
func EmitRaw(entry, configured string) (string, error) {
	cfg, err := ForEntry(entry, configured)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return "", err
	}
	return cfg.Relaxed().Raw()
}
