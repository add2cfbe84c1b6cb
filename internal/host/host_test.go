package host

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"closedfn/internal/config"

	"github.com/dop251/goja"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanReferences(t *testing.T) {
	src := `import { a, b as bee } from './dep'
import type { T } from './types'
import './side'
export { c } from './reexport'

const x: T = a + bee
a()
const lazy = import('./lazy')
const legacy = require("./cjs")
`
	refs, err := scanReferences(context.Background(), "/src/mod.ts", src)
	require.NoError(t, err)

	var got []string
	for _, r := range refs {
		got = append(got, r.request+"->"+r.specifier)
	}
	want := []string{
		"./side->./side",
		"./reexport->./reexport",
		"a->./dep",
		"bee->./dep",
		"a->./dep",
		"./lazy->./lazy",
		"./cjs->./cjs",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("references mismatch (-want +got):\n%s", diff)
	}

	// Every location holds its request token.
	lines := strings.Split(src, "\n")
	for _, r := range refs {
		require.Equal(t, r.loc.Start.Line, r.loc.End.Line)
		line := lines[r.loc.Start.Line-1]
		assert.Contains(t, line[r.loc.Start.Column:r.loc.End.Column], r.request)
	}
}

func TestResolveFile(t *testing.T) {
	dir, err := filepath.Abs("testdata")
	require.NoError(t, err)
	exts := []string{".ts", ".js"}

	assert.Equal(t, filepath.Join(dir, "dep.ts"), resolveFile(dir, "./dep", exts))
	assert.Equal(t, filepath.Join(dir, "dep.ts"), resolveFile(dir, "./dep.js", exts))
	assert.Equal(t, filepath.Join(dir, "lib", "index.ts"), resolveFile(dir, "./lib", exts))
	assert.Equal(t, filepath.Join(dir, "dep.ts"), resolveFile(filepath.Join(dir, "lib"), "../dep", exts))
	assert.Empty(t, resolveFile(dir, "./missing", exts))
	assert.Empty(t, resolveFile(dir, "react", exts))
}

type recorder struct {
	built     []string
	finished  int
	optimized int
	redirect  map[string]string
	finishErr error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Apply(c *Compilation) {
	c.Hooks.TapBuildModule(r.Name(), func(m *Module) error {
		r.built = append(r.built, filepath.Base(m.Identifier()))
		if to, ok := r.redirect[filepath.Base(m.Identifier())]; ok {
			m.Resource = to
		}
		return nil
	})
	c.Hooks.TapFinishModules(r.Name(), func(ctx context.Context, modules []*Module) error {
		r.finished++
		return r.finishErr
	})
	c.Hooks.TapOptimizeDependencies(r.Name(), func(modules []*Module) {
		r.optimized++
	})
}

func hostConfig(t *testing.T, mode config.Mode) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Build.Entry = filepath.Join("testdata", "entry.ts")
	cfg.Build.Outfile = filepath.Join(t.TempDir(), "out", "bundle.js")
	cfg.Build.Mode = mode
	return cfg
}

func evalResult(t *testing.T, output []byte) int64 {
	t.Helper()
	vm := goja.New()
	_, err := vm.RunString(string(output))
	require.NoError(t, err)
	v, err := vm.RunString("closedfnResult.result")
	require.NoError(t, err)
	return v.ToInteger()
}

func TestCompilerRun(t *testing.T) {
	for _, mode := range config.ValidModes {
		t.Run(string(mode), func(t *testing.T) {
			rec := &recorder{}
			c := &Compiler{Config: hostConfig(t, mode), Plugins: []Plugin{rec}}

			res, err := c.Run(context.Background())
			require.NoError(t, err)
			require.Empty(t, res.Errors)

			assert.Equal(t, []string{"entry.ts", "side.ts", "dep.ts", "index.ts"}, rec.built)
			assert.Equal(t, 1, rec.finished)
			assert.Equal(t, 1, rec.optimized)
			require.Len(t, res.Modules, 4)
			assert.Len(t, res.Modules[0].Dependencies, 4)

			assert.EqualValues(t, 42, evalResult(t, res.Output))
			data, err := os.ReadFile(res.Outfile)
			require.NoError(t, err)
			assert.Equal(t, res.Output, data)
			if mode == config.ModeDevelopment {
				assert.Contains(t, string(res.Output), "sourceMappingURL=data:")
			}
		})
	}
}

func TestCompilerRun_RedirectedResource(t *testing.T) {
	replacement, err := filepath.Abs(filepath.Join("testdata", "replacement.ts"))
	require.NoError(t, err)
	rec := &recorder{redirect: map[string]string{"dep.ts": replacement}}
	c := &Compiler{Config: hostConfig(t, config.ModeNone), Plugins: []Plugin{rec}}

	res, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 5, evalResult(t, res.Output))
}

func TestCompilerRun_Loaders(t *testing.T) {
	upper := func(m *Module) error {
		if filepath.Base(m.Identifier()) == "index.ts" {
			m.Source = strings.Replace(m.Source, "= 2", "= 3", 1)
		}
		return nil
	}
	c := &Compiler{Config: hostConfig(t, config.ModeNone), Loaders: []Loader{upper}}

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 43, evalResult(t, res.Output))
}

func TestCompilerRun_FinishModulesAborts(t *testing.T) {
	rec := &recorder{finishErr: errors.New("broken invariant")}
	c := &Compiler{Config: hostConfig(t, config.ModeNone), Plugins: []Plugin{rec}}

	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken invariant")
	assert.Zero(t, rec.optimized)
}

func TestCompilerRun_ModuleErrorsSkipEmit(t *testing.T) {
	cfg := hostConfig(t, config.ModeNone)
	c := &Compiler{Config: cfg, Loaders: []Loader{func(m *Module) error {
		if filepath.Base(m.Identifier()) == "dep.ts" {
			return errors.New("loader failed")
		}
		return nil
	}}}

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Errors, 1)
	assert.Empty(t, res.Output)
	_, statErr := os.Stat(cfg.Build.Outfile)
	assert.True(t, os.IsNotExist(statErr))
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("/a.ts", "x")
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint("/a.ts", "x"))
	assert.NotEqual(t, a, Fingerprint("/b.ts", "x"))
	assert.NotEqual(t, a, Fingerprint("/a.ts", "y"))
}

func TestRemoveDependency(t *testing.T) {
	m := NewModule("/a.ts", "")
	d1, d2 := &Dependency{Request: "x"}, &Dependency{Request: "x"}
	m.Dependencies = []*Dependency{d1, d2}

	m.RemoveDependency(d2)
	assert.Equal(t, []*Dependency{d1}, m.Dependencies)
}
