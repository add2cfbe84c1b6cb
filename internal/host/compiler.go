package host

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"closedfn/internal/config"
	"closedfn/internal/logging"
	"closedfn/internal/syntax"
)

// Loader transforms a module's Source after the build-module hook.
type Loader func(m *Module) error

// Compiler runs a host build from Config.Build.Entry.
type Compiler struct {
	Config  *config.Config
	Plugins []Plugin
	Loaders []Loader
}

// Result is the outcome of a host build. Output is empty when Errors is not.
type Result struct {
	Output   []byte
	Outfile  string
	Modules  []*Module // final module graph, entry first
	Errors   []error
	Warnings []string
}

// Run builds the module graph, drives the plugin hooks and emits the bundle.
// Module-scoped failures are returned in Result.Errors; the returned error is
// reserved for failures that abort the whole build.
func (c *Compiler) Run(ctx context.Context) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryPipeline, "host build")
	defer timer.Stop()

	entry, err := filepath.Abs(c.Config.Build.Entry)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entry: %w", err)
	}

	comp := NewCompilation(c.Config)
	for _, p := range c.Plugins {
		logging.PipelineDebug("applying plugin %s", p.Name())
		p.Apply(comp)
	}

	if err := c.buildGraph(ctx, comp, entry); err != nil {
		return nil, err
	}

	if err := comp.Hooks.callFinishModules(ctx, comp.Modules()); err != nil {
		logging.PipelineError("finish-modules aborted the build: %v", err)
		return nil, err
	}

	comp.Hooks.callOptimizeDependencies(comp.Modules())

	res := &Result{
		Modules: reachable(comp.Module(entry)),
		Errors:  comp.Errors(),
	}
	logging.Pipeline("module graph: %d modules, %d errors", len(res.Modules), len(res.Errors))
	if len(res.Errors) > 0 {
		return res, nil
	}

	if err := c.emit(comp, entry, res); err != nil {
		return nil, err
	}
	return res, nil
}

// buildGraph discovers modules breadth-first from the entry.
func (c *Compiler) buildGraph(ctx context.Context, comp *Compilation, entry string) error {
	if _, err := c.load(comp, entry); err != nil {
		return err
	}

	for i := 0; i < len(comp.modules); i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		m := comp.modules[i]
		if err := c.buildModule(ctx, comp, m); err != nil {
			m.failed = true
			comp.AddError(fmt.Errorf("module %s: %w", m.Identifier(), err))
		}
	}
	return nil
}

// load reads a module once; later requests for the same path share it.
func (c *Compiler) load(comp *Compilation, path string) (*Module, error) {
	if m := comp.Module(path); m != nil {
		return m, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read module: %w", err)
	}
	m := NewModule(path, string(data))
	comp.add(m)
	return m, nil
}

func (c *Compiler) buildModule(ctx context.Context, comp *Compilation, m *Module) error {
	if isParsable(m.Identifier()) {
		refs, err := scanReferences(ctx, m.Identifier(), m.Source)
		if err != nil {
			return err
		}
		dir := filepath.Dir(m.Identifier())
		for _, r := range refs {
			dep := &Dependency{Loc: r.loc, Request: r.request, Specifier: r.specifier}
			if target := resolveFile(dir, r.specifier, c.Config.Resolve.Extensions); target != "" {
				t, err := c.load(comp, target)
				if err != nil {
					return fmt.Errorf("import %q: %w", r.specifier, err)
				}
				dep.Module = t
			}
			m.Dependencies = append(m.Dependencies, dep)
		}
	}

	if err := comp.Hooks.callBuildModule(m); err != nil {
		return err
	}

	if m.Resource != m.Identifier() {
		data, err := os.ReadFile(m.Resource)
		if err != nil {
			return fmt.Errorf("failed to read redirected resource: %w", err)
		}
		m.Source = string(data)
	}

	for _, load := range c.Loaders {
		if err := load(m); err != nil {
			return fmt.Errorf("loader: %w", err)
		}
	}
	return nil
}

func isParsable(path string) bool {
	ext := filepath.Ext(path)
	for _, e := range syntax.SupportedExtensions() {
		if e == ext {
			return true
		}
	}
	return false
}

// reachable walks live edges from the entry.
func reachable(entry *Module) []*Module {
	if entry == nil {
		return nil
	}
	seen := map[*Module]bool{entry: true}
	order := []*Module{entry}
	for i := 0; i < len(order); i++ {
		for _, dep := range order[i].Dependencies {
			if dep.Module != nil && !seen[dep.Module] {
				seen[dep.Module] = true
				order = append(order, dep.Module)
			}
		}
	}
	return order
}
