package host

import (
	"sync"

	"closedfn/internal/config"
)

// Compilation is the state of one host build. Errors are module-scoped and
// collected here rather than aborting the build.
type Compilation struct {
	Config *config.Config
	Hooks  Hooks

	modules []*Module
	byID    map[string]*Module

	mu     sync.Mutex
	errors []error
}

// NewCompilation creates an empty compilation.
func NewCompilation(cfg *config.Config) *Compilation {
	return &Compilation{Config: cfg, byID: make(map[string]*Module)}
}

// AddError records a module-scoped error. Safe for concurrent use.
func (c *Compilation) AddError(err error) {
	if err == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

// Errors returns a copy of the collected errors.
func (c *Compilation) Errors() []error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]error(nil), c.errors...)
}

// Modules returns the modules in discovery order.
func (c *Compilation) Modules() []*Module {
	return c.modules
}

// Module looks a module up by its original identifier.
func (c *Compilation) Module(id string) *Module {
	return c.byID[id]
}

func (c *Compilation) add(m *Module) {
	c.modules = append(c.modules, m)
	c.byID[m.Identifier()] = m
}
