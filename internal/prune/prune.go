// Package prune drops dependency edges that the closed-block transform made stale.
package prune

import (
	"strings"

	"closedfn/internal/host"
	"closedfn/internal/logging"
)

// Prune removes every resolved edge of m whose recorded location no longer
// holds its request token in m.Source, then every remaining edge recorded at
// the same start position as a removed one. Edges are evaluated against a
// snapshot taken before any removal. The removed edges are returned in order.
func Prune(m *host.Module) []*host.Dependency {
	snapshot := append([]*host.Dependency(nil), m.Dependencies...)
	lines := strings.Split(m.Source, "\n")

	var removed []*host.Dependency
	gone := make(map[*host.Dependency]bool)
	starts := make(map[host.Position]bool)

	for _, dep := range snapshot {
		if dep.Module == nil {
			continue
		}
		text, ok := Slice(lines, dep.Loc)
		if ok && strings.Contains(text, dep.Request) {
			continue
		}
		m.RemoveDependency(dep)
		removed = append(removed, dep)
		gone[dep] = true
		starts[dep.Loc.Start] = true
		logging.PruneDebug("prune: %s drops %q at %s", m.Identifier(), dep.Request, dep.Loc)
	}

	for _, dep := range snapshot {
		if gone[dep] || !starts[dep.Loc.Start] {
			continue
		}
		m.RemoveDependency(dep)
		removed = append(removed, dep)
		gone[dep] = true
		logging.PruneDebug("prune: %s drops duplicate %q at %s", m.Identifier(), dep.Request, dep.Loc)
	}

	if len(removed) > 0 {
		logging.Prune("prune: %s - %d of %d edges removed", m.Identifier(), len(removed), len(snapshot))
	}
	return removed
}

// Slice returns the text covered by loc. A range that is empty or falls
// outside lines reports false.
func Slice(lines []string, loc host.SourceLocation) (string, bool) {
	s, e := loc.Start, loc.End
	if s.Line < 1 || e.Line < s.Line || e.Line > len(lines) {
		return "", false
	}

	first, last := lines[s.Line-1], lines[e.Line-1]
	if s.Line == e.Line {
		if s.Column < 0 || e.Column <= s.Column || e.Column > len(first) {
			return "", false
		}
		return first[s.Column:e.Column], true
	}

	if s.Column < 0 || s.Column > len(first) || e.Column < 0 || e.Column > len(last) {
		return "", false
	}
	parts := make([]string, 0, e.Line-s.Line+1)
	parts = append(parts, first[s.Column:])
	parts = append(parts, lines[s.Line:e.Line-1]...)
	parts = append(parts, last[:e.Column])
	return strings.Join(parts, "\n"), true
}
