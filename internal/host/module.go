// Package host is a small module-graph build pipeline: it discovers TypeScript
// and JavaScript modules from an entry, records their static dependency edges,
// exposes build-module / finish-modules / optimize-dependencies hooks to
// plugins, and emits the final bundle with esbuild.
package host

import (
	"fmt"

	"github.com/zeebo/xxh3"
)

// Position is a point in a module's source text. Line is 1-based, Column is a
// 0-based byte offset within the line.
type Position struct {
	Line   int
	Column int
}

// SourceLocation is a half-open range; End.Column is exclusive.
type SourceLocation struct {
	Start Position
	End   Position
}

func (l SourceLocation) String() string {
	return fmt.Sprintf("%d:%d-%d:%d", l.Start.Line, l.Start.Column, l.End.Line, l.End.Column)
}

// Dependency is one static reference from a module to another.
type Dependency struct {
	// Module is the resolved target; nil for external or unresolved requests.
	Module *Module

	// Loc is where the reference was recorded, against the text as first read.
	Loc SourceLocation

	// Request is the raw token found at Loc: the specifier for import sites,
	// the local binding name for use sites.
	Request string

	// Specifier is the module request the edge resolves through.
	Specifier string
}

// Module is one unit undergoing the host build. The pipeline owns it; plugins
// mutate Resource, Source and Dependencies in place.
type Module struct {
	id string

	// Resource is the path loaders read from. Plugins may redirect it.
	Resource string

	// Source is the module's current text.
	Source string

	// Fingerprint is a stable hash of the module's identity and original text.
	Fingerprint string

	// Dependencies is ordered by discovery and never deduplicated.
	Dependencies []*Dependency

	failed bool
}

// NewModule creates a module identified by its absolute path and original text.
func NewModule(path, text string) *Module {
	return &Module{
		id:          path,
		Resource:    path,
		Source:      text,
		Fingerprint: Fingerprint(path, text),
	}
}

// Identifier returns the module's original absolute path. It never changes,
// whatever Resource is redirected to.
func (m *Module) Identifier() string { return m.id }

// Failed reports whether a module-scoped error was recorded for m.
func (m *Module) Failed() bool { return m.failed }

// RemoveDependency drops the first occurrence of d (by identity).
func (m *Module) RemoveDependency(d *Dependency) {
	for i, dep := range m.Dependencies {
		if dep == d {
			m.Dependencies = append(m.Dependencies[:i], m.Dependencies[i+1:]...)
			return
		}
	}
}

// Fingerprint hashes a module identity with its text.
func Fingerprint(path, text string) string {
	return fmt.Sprintf("%016x", xxh3.HashString(path+"\x00"+text))
}
