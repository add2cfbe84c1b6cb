// Package plugin taps the host pipeline hooks to extract, mount and prune
// closed functions.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"closedfn/internal/artifact"
	"closedfn/internal/bundle"
	"closedfn/internal/compiler"
	"closedfn/internal/config"
	"closedfn/internal/extract"
	"closedfn/internal/host"
	"closedfn/internal/logging"
	"closedfn/internal/mount"
	"closedfn/internal/prune"
	"closedfn/internal/satellite"
	"closedfn/internal/syntax"
	"closedfn/internal/tsconfig"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
)

// Name is the tap name on every hook.
const Name = "ClosedFunctionPlugin"

// Option customizes a ClosedFunctionPlugin.
type Option func(*ClosedFunctionPlugin)

// WithCompiler replaces the default tree-sitter compiler.
func WithCompiler(c compiler.Compiler) Option {
	return func(p *ClosedFunctionPlugin) { p.compiler = c }
}

// WithBundler replaces the esbuild bundler.
func WithBundler(b bundle.Bundler) Option {
	return func(p *ClosedFunctionPlugin) { p.bundler = b }
}

// WithCache replaces the process-wide artifact cache.
func WithCache(c *artifact.Cache) Option {
	return func(p *ClosedFunctionPlugin) { p.cache = c }
}

// Stats counts what one build did.
type Stats struct {
	Satellites int
	Mounted    int
	Pruned     int
}

// ClosedFunctionPlugin moves each closed function body into an isolated
// bundle and splices the bundle back in its place.
type ClosedFunctionPlugin struct {
	cfg      *config.Config
	compiler compiler.Compiler
	bundler  bundle.Bundler
	cache    *artifact.Cache

	mu      sync.Mutex
	queue   []*satellite.Unit
	mounted []*host.Module
	stats   Stats

	workDir string
	mounter *mount.Mounter
}

// New creates the plugin for cfg.
func New(cfg *config.Config, opts ...Option) *ClosedFunctionPlugin {
	p := &ClosedFunctionPlugin{
		cfg:     cfg,
		bundler: bundle.Esbuild{},
		cache:   artifact.Process(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name implements host.Plugin.
func (p *ClosedFunctionPlugin) Name() string { return Name }

// Apply implements host.Plugin.
func (p *ClosedFunctionPlugin) Apply(c *host.Compilation) {
	c.Hooks.TapBuildModule(Name, p.buildModule)
	c.Hooks.TapFinishModules(Name, func(ctx context.Context, modules []*host.Module) error {
		return p.finishModules(ctx, c)
	})
	c.Hooks.TapOptimizeDependencies(Name, p.optimizeDependencies)
}

// Stats returns the counters of the last build.
func (p *ClosedFunctionPlugin) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *ClosedFunctionPlugin) buildModule(m *host.Module) error {
	if !p.cfg.Build.IsSourceKind(m.Identifier()) || !extract.HasMarker([]byte(m.Source)) {
		return nil
	}

	unit, err := syntax.Parse(context.Background(), m.Identifier(), []byte(m.Source))
	if err != nil {
		return err
	}
	defer unit.Close()

	res, err := extract.Extract(unit)
	if err != nil {
		return err
	}
	if res.Function == nil {
		return nil
	}

	if err := p.prepare(m); err != nil {
		return err
	}
	u, err := satellite.Synthesize(m, res, p.workDir)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.queue = append(p.queue, u)
	p.stats.Satellites++
	p.mu.Unlock()
	return nil
}

// prepare creates the work directory and the mounter on the first closed function.
func (p *ClosedFunctionPlugin) prepare(m *host.Module) error {
	if p.mounter != nil {
		return nil
	}

	parent := p.cfg.Build.TempDir
	if parent == "" {
		parent = os.TempDir()
	}
	dir := filepath.Join(parent, Name+"-"+uuid.NewString())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	raw, err := tsconfig.EmitRaw(m.Identifier(), p.cfg.Compiler.Tsconfig)
	if err != nil {
		os.RemoveAll(dir)
		return fmt.Errorf("tsconfig: %w", err)
	}

	c := p.compiler
	if c == nil {
		c = compiler.New(compiler.Options{
			Globals:  p.cfg.Compiler.Globals,
			Tsconfig: raw,
			Target:   p.cfg.Build.Target,
		})
	}

	p.workDir = dir
	p.mounter = &mount.Mounter{
		Compiler: c,
		Bundler:  p.bundler,
		Cache:    p.cache,
		WorkDir:  dir,
		Resolve:  p.cfg.Resolve,
		Target:   p.cfg.Build.Target,
		Tsconfig: raw,
	}
	logging.PipelineDebug("closed functions: work directory %s", dir)
	return nil
}

// finishModules mounts every queued unit concurrently. Module-scoped failures
// are recorded on the compilation; an invariant failure is returned.
func (p *ClosedFunctionPlugin) finishModules(ctx context.Context, c *host.Compilation) error {
	p.mu.Lock()
	queue := p.queue
	p.queue = nil
	p.mu.Unlock()

	if len(queue) == 0 {
		return nil
	}
	defer p.cleanup()

	limit := p.cfg.Build.Concurrency
	if limit <= 0 {
		limit = runtime.NumCPU()
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for _, u := range queue {
		g.Go(func() error {
			err := p.mounter.Mount(ctx, u)
			var invariant *mount.InvariantError
			if errors.As(err, &invariant) {
				return invariant
			}
			if err != nil {
				for _, e := range multierr.Errors(err) {
					c.AddError(fmt.Errorf("module %s: %w", u.OriginalResource, e))
				}
				return nil
			}

			p.mu.Lock()
			p.mounted = append(p.mounted, u.Module)
			p.stats.Mounted++
			p.mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	logging.Pipeline("closed functions: %d of %d mounted", p.Stats().Mounted, len(queue))
	return err
}

func (p *ClosedFunctionPlugin) optimizeDependencies(modules []*host.Module) {
	p.mu.Lock()
	mounted := p.mounted
	p.mounted = nil
	p.mu.Unlock()

	pruned := 0
	for _, m := range mounted {
		pruned += len(prune.Prune(m))
	}

	p.mu.Lock()
	p.stats.Pruned += pruned
	p.mu.Unlock()
}

func (p *ClosedFunctionPlugin) cleanup() {
	dir := p.workDir
	p.workDir = ""
	p.mounter = nil
	if dir == "" || p.cfg.Build.KeepTemp {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logging.PipelineWarn("closed functions: failed to remove %s: %v", dir, err)
	}
}
