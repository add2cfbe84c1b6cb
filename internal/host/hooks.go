package host

import (
	"context"
	"fmt"
)

// Plugin taps a compilation's hooks.
type Plugin interface {
	Name() string
	Apply(c *Compilation)
}

// BuildModuleFunc runs once per discovered module, after its dependency edges
// are recorded and before loaders run. An error is scoped to that module.
type BuildModuleFunc func(m *Module) error

// FinishModulesFunc runs once every module is built. An error aborts the build.
type FinishModulesFunc func(ctx context.Context, modules []*Module) error

// OptimizeDependenciesFunc runs before the final module graph is computed.
type OptimizeDependenciesFunc func(modules []*Module)

type tap[F any] struct {
	name string
	fn   F
}

// Hooks holds the taps registered on a compilation, called in registration order.
type Hooks struct {
	buildModule          []tap[BuildModuleFunc]
	finishModules        []tap[FinishModulesFunc]
	optimizeDependencies []tap[OptimizeDependenciesFunc]
}

// TapBuildModule registers fn on the build-module hook.
func (h *Hooks) TapBuildModule(name string, fn BuildModuleFunc) {
	h.buildModule = append(h.buildModule, tap[BuildModuleFunc]{name, fn})
}

// TapFinishModules registers fn on the finish-modules hook.
func (h *Hooks) TapFinishModules(name string, fn FinishModulesFunc) {
	h.finishModules = append(h.finishModules, tap[FinishModulesFunc]{name, fn})
}

// TapOptimizeDependencies registers fn on the optimize-dependencies hook.
func (h *Hooks) TapOptimizeDependencies(name string, fn OptimizeDependenciesFunc) {
	h.optimizeDependencies = append(h.optimizeDependencies, tap[OptimizeDependenciesFunc]{name, fn})
}

func (h *Hooks) callBuildModule(m *Module) error {
	for _, t := range h.buildModule {
		if err := t.fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hooks) callFinishModules(ctx context.Context, modules []*Module) error {
	for _, t := range h.finishModules {
		if err := t.fn(ctx, modules); err != nil {
			return fmt.Errorf("%s: %w", t.name, err)
		}
	}
	return nil
}

func (h *Hooks) callOptimizeDependencies(modules []*Module) {
	for _, t := range h.optimizeDependencies {
		t.fn(modules)
	}
}
