package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"closedfn/internal/artifact"
	"closedfn/internal/bundle"
	"closedfn/internal/config"
	"closedfn/internal/extract"
	"closedfn/internal/host"
	"closedfn/internal/mount"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func testConfig(t *testing.T, entry string, mode config.Mode) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Build.Entry = filepath.Join("testdata", entry)
	cfg.Build.Mode = mode
	cfg.Build.Outfile = filepath.Join(t.TempDir(), "bundle.js")
	cfg.Build.TempDir = t.TempDir()
	return cfg
}

func build(t *testing.T, cfg *config.Config, plugins ...host.Plugin) *host.Result {
	t.Helper()
	c := &host.Compiler{Config: cfg, Plugins: plugins}
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	return res
}

func evaluate(t *testing.T, res *host.Result, expr string) goja.Value {
	t.Helper()
	require.Empty(t, res.Errors)
	require.NotEmpty(t, res.Output)

	vm := goja.New()
	_, err := vm.RunString(string(res.Output))
	require.NoError(t, err)
	v, err := vm.RunString(expr)
	require.NoError(t, err)
	return v
}

func moduleIDs(res *host.Result) []string {
	var ids []string
	for _, m := range res.Modules {
		ids = append(ids, filepath.Base(m.Identifier()))
	}
	return ids
}

func TestClosedFunction_AllModes(t *testing.T) {
	for _, mode := range config.ValidModes {
		t.Run(string(mode), func(t *testing.T) {
			cfg := testConfig(t, "entry-module.ts", mode)
			p := New(cfg, WithCache(artifact.NewCache()))

			res := build(t, cfg, p)

			assert.Equal(t, "YES", evaluate(t, res, "closedfnResult.result").String())
			assert.Equal(t, "Hello, i am not a closed function / Hello, bla bla bla",
				evaluate(t, res, "closedfnResult.greeting").String())

			stats := p.Stats()
			assert.Equal(t, 1, stats.Satellites)
			assert.Equal(t, 1, stats.Mounted)
			assert.Equal(t, 1, stats.Pruned)

			data, err := os.ReadFile(res.Outfile)
			require.NoError(t, err)
			assert.Equal(t, res.Output, data)
		})
	}
}

func TestClosedFunction_HostSourceAndGraph(t *testing.T) {
	cfg := testConfig(t, "entry-module.ts", config.ModeNone)
	res := build(t, cfg, New(cfg, WithCache(artifact.NewCache())))
	require.Empty(t, res.Errors)

	original, err := os.ReadFile(filepath.Join("testdata", "module-with-closed.ts"))
	require.NoError(t, err)

	var hostModule *host.Module
	for _, m := range res.Modules {
		if filepath.Base(m.Identifier()) == "module-with-closed.ts" {
			hostModule = m
		}
	}
	require.NotNil(t, hostModule)

	body := string(original)
	body = body[strings.Index(body, "{\n\t$closed"):]
	body = body[:strings.Index(body, "\n}\n")+2]
	assert.NotContains(t, hostModule.Source, body)
	assert.Equal(t, hostModule.Identifier(), hostModule.Resource)
	assert.Equal(t, strings.Count(string(original), "\n"), strings.Count(hostModule.Source, "\n"))

	// getMonth is only referenced inside the closed block.
	assert.Equal(t, []string{"entry-module.ts", "module-with-closed.ts"}, moduleIDs(res))
}

func TestClosedFunction_ArtifactEvaluatedOnce(t *testing.T) {
	cfg := testConfig(t, "counter-entry.ts", config.ModeProduction)
	p := New(cfg, WithCache(artifact.NewCache()))
	res := build(t, cfg, p)

	assert.EqualValues(t, 11, evaluate(t, res, "closedfnResult.first").ToInteger())
	assert.EqualValues(t, 12, evaluate(t, res, "closedfnResult.second").ToInteger())
	assert.EqualValues(t, 42, evaluate(t, res, "closedfnResult.doubled").ToInteger())
	assert.EqualValues(t, 1, evaluate(t, res, "closedfnResult.materializations").ToInteger())
	assert.Equal(t, 2, p.Stats().Mounted)
}

func TestClosedFunction_NoMarkerIsNoop(t *testing.T) {
	cfg := testConfig(t, "plain-entry.ts", config.ModeNone)
	p := New(cfg, WithCache(artifact.NewCache()))
	with := build(t, cfg, p)

	plain := testConfig(t, "plain-entry.ts", config.ModeNone)
	without := build(t, plain)

	assert.Equal(t, Stats{}, p.Stats())
	assert.Equal(t, string(without.Output), string(with.Output))
	require.Len(t, with.Modules, len(without.Modules))
	for i, m := range with.Modules {
		original, err := os.ReadFile(m.Identifier())
		require.NoError(t, err)
		assert.Equal(t, string(original), m.Source)
		assert.Len(t, m.Dependencies, len(without.Modules[i].Dependencies))
	}
	assert.Equal(t, "n=3", evaluate(t, with, "closedfnResult.value").String())

	entries, err := os.ReadDir(cfg.Build.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no work directory without closed functions")
}

func TestClosedFunction_CaptureViolation(t *testing.T) {
	cfg := testConfig(t, "capture-entry.ts", config.ModeNone)
	res := build(t, cfg, New(cfg, WithCache(artifact.NewCache())))

	require.Len(t, res.Errors, 1)
	var ce *mount.CaptureError
	require.True(t, errors.As(res.Errors[0], &ce))
	assert.Contains(t, ce.Error(), "Cannot find name 'variableOutsideClosedScope'.")
	assert.Empty(t, res.Output)
	assert.Empty(t, res.Outfile)

	entries, err := os.ReadDir(cfg.Build.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "work directory removed")
}

func TestClosedFunction_StructuralError(t *testing.T) {
	cfg := testConfig(t, "misplaced-entry.ts", config.ModeNone)
	p := New(cfg, WithCache(artifact.NewCache()))
	res := build(t, cfg, p)

	require.Len(t, res.Errors, 1)
	var se *extract.StructuralError
	require.True(t, errors.As(res.Errors[0], &se))
	assert.Equal(t, 3, se.Line)
	assert.Zero(t, p.Stats().Satellites)
}

func TestClosedFunction_KeepTemp(t *testing.T) {
	cfg := testConfig(t, "entry-module.ts", config.ModeNone)
	cfg.Build.KeepTemp = true
	res := build(t, cfg, New(cfg, WithCache(artifact.NewCache())))
	require.Empty(t, res.Errors)

	dirs, err := os.ReadDir(cfg.Build.TempDir)
	require.NoError(t, err)
	require.Len(t, dirs, 1)
	assert.True(t, strings.HasPrefix(dirs[0].Name(), Name+"-"))

	satellites, err := filepath.Glob(filepath.Join(cfg.Build.TempDir, dirs[0].Name(), "satellite-*.ts"))
	require.NoError(t, err)
	assert.Len(t, satellites, 1)
}

type brokenBundler struct{}

func (brokenBundler) Bundle(ctx context.Context, req bundle.Request) (*bundle.Output, error) {
	return &bundle.Output{Path: req.OutputPath()}, nil
}

func TestClosedFunction_MissingArtifact(t *testing.T) {
	cfg := testConfig(t, "entry-module.ts", config.ModeNone)
	res := build(t, cfg, New(cfg, WithCache(artifact.NewCache()), WithBundler(brokenBundler{})))

	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0].Error(), "failed to read artifact")
}

func TestClosedFunction_Generator(t *testing.T) {
	cfg := testConfig(t, "generator-entry.ts", config.ModeNone)
	p := New(cfg, WithCache(artifact.NewCache()))
	res := build(t, cfg, p)

	assert.Equal(t, "5,6", evaluate(t, res, "closedfnResult.values").String())
	assert.Equal(t, 1, p.Stats().Mounted)
}

func TestClosedFunction_FailureIsolatedWithinBatch(t *testing.T) {
	cfg := testConfig(t, "mixed-entry.ts", config.ModeNone)
	cfg.Build.Concurrency = 2
	p := New(cfg, WithCache(artifact.NewCache()))
	res := build(t, cfg, p)

	require.Len(t, res.Errors, 1)
	var ce *mount.CaptureError
	require.True(t, errors.As(res.Errors[0], &ce))
	assert.Equal(t, "capture-host.ts", filepath.Base(ce.File))

	stats := p.Stats()
	assert.Equal(t, 2, stats.Satellites)
	assert.Equal(t, 1, stats.Mounted)

	var clean *host.Module
	for _, m := range res.Modules {
		if filepath.Base(m.Identifier()) == "counter-host.ts" {
			clean = m
		}
	}
	require.NotNil(t, clean)
	assert.Contains(t, clean.Source, "__closedArtifacts__")
	assert.Equal(t, clean.Identifier(), clean.Resource)
}

func TestClosedFunction_RebuildSeesChangedImport(t *testing.T) {
	dir := t.TempDir()
	writeFile := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	writeFile("dep.ts", "export const base = 1\n")
	writeFile("host.ts", "import { base } from './dep'\n\nexport function read() {\n\t$closed: {\n\t\treturn base\n\t}\n}\n")
	writeFile("entry.ts", "import { read } from './host'\n\nexport const value = read()\n")

	cache := artifact.NewCache()
	rebuild := func() int64 {
		cfg := testConfig(t, "", config.ModeNone)
		cfg.Build.Entry = filepath.Join(dir, "entry.ts")
		res := build(t, cfg, New(cfg, WithCache(cache)))
		return evaluate(t, res, "closedfnResult.value").ToInteger()
	}

	assert.EqualValues(t, 1, rebuild())
	assert.EqualValues(t, 1, rebuild())
	assert.Equal(t, 1, cache.Len(), "unchanged inputs reuse the artifact")

	writeFile("dep.ts", "export const base = 2\n")
	assert.EqualValues(t, 2, rebuild())
	assert.Equal(t, 2, cache.Len())
}

func TestClosedFunction_EdgeAfterBodyOnClosingLine(t *testing.T) {
	cfg := testConfig(t, "trailing-entry.ts", config.ModeNone)
	p := New(cfg, WithCache(artifact.NewCache()))
	res := build(t, cfg, p)

	assert.Equal(t, "inlined/kept", evaluate(t, res, "closedfnResult.value").String())
	assert.Equal(t, 1, p.Stats().Pruned)

	var hostModule *host.Module
	for _, m := range res.Modules {
		if filepath.Base(m.Identifier()) == "trailing-host.ts" {
			hostModule = m
		}
	}
	require.NotNil(t, hostModule)
	require.Len(t, hostModule.Dependencies, 1)
	assert.Equal(t, "a", hostModule.Dependencies[0].Request)
	assert.Contains(t, moduleIDs(res), "trailing-dep.ts")
}
