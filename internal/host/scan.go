package host

import (
	"context"

	"closedfn/internal/syntax"

	sitter "github.com/smacker/go-tree-sitter"
)

// reference is an edge before resolution.
type reference struct {
	loc       SourceLocation
	request   string
	specifier string
}

func locOf(n *sitter.Node) SourceLocation {
	s, e := n.StartPoint(), n.EndPoint()
	return SourceLocation{
		Start: Position{Line: int(s.Row) + 1, Column: int(s.Column)},
		End:   Position{Line: int(e.Row) + 1, Column: int(e.Column)},
	}
}

// scanReferences records the static dependency edges of a module's text:
// one edge per use site of each imported binding, one per side-effect import,
// re-export, require() and dynamic import(). Type-only imports carry no edge.
func scanReferences(ctx context.Context, path, text string) ([]reference, error) {
	unit, err := syntax.Parse(ctx, path, []byte(text))
	if err != nil {
		return nil, err
	}
	defer unit.Close()

	root := unit.Root()
	bindings := make(map[string]string) // local name -> specifier
	var refs []reference

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		src := stmt.ChildByFieldName("source")
		if src == nil {
			continue
		}
		spec := syntax.StringValue(src, unit.Source)

		switch stmt.Type() {
		case "import_statement":
			if isTypeOnly(stmt) {
				continue
			}
			names := importBindings(unit, stmt)
			if len(names) == 0 {
				refs = append(refs, reference{loc: locOf(src), request: spec, specifier: spec})
			}
			for _, name := range names {
				bindings[name] = spec
			}
		case "export_statement":
			refs = append(refs, reference{loc: locOf(src), request: spec, specifier: spec})
		}
	}

	syntax.Walk(root, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_statement":
			return false
		case "identifier", "shorthand_property_identifier":
			name := unit.Text(n)
			if spec, ok := bindings[name]; ok {
				refs = append(refs, reference{loc: locOf(n), request: name, specifier: spec})
			}
		case "call_expression":
			if r, ok := dynamicRequest(unit, n); ok {
				refs = append(refs, r)
			}
		}
		return true
	})

	return refs, nil
}

func isTypeOnly(stmt *sitter.Node) bool {
	for i := 0; i < int(stmt.ChildCount()); i++ {
		if stmt.Child(i).Type() == "type" {
			return true
		}
	}
	return false
}

// importBindings lists the local names an import declaration introduces.
func importBindings(unit *syntax.Unit, stmt *sitter.Node) []string {
	var names []string
	syntax.Walk(stmt, func(n *sitter.Node) bool {
		switch n.Type() {
		case "import_clause":
			// The default binding is a direct identifier child.
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "identifier" {
					names = append(names, unit.Text(c))
				}
			}
		case "namespace_import":
			for i := 0; i < int(n.NamedChildCount()); i++ {
				if c := n.NamedChild(i); c.Type() == "identifier" {
					names = append(names, unit.Text(c))
				}
			}
			return false
		case "import_specifier":
			if isTypeOnly(n) {
				return false
			}
			local := n.ChildByFieldName("alias")
			if local == nil {
				local = n.ChildByFieldName("name")
			}
			if local != nil {
				names = append(names, unit.Text(local))
			}
			return false
		}
		return true
	})
	return names
}

// dynamicRequest matches require("x") and import("x").
func dynamicRequest(unit *syntax.Unit, call *sitter.Node) (reference, bool) {
	fn := call.ChildByFieldName("function")
	args := call.ChildByFieldName("arguments")
	if fn == nil || args == nil || args.NamedChildCount() == 0 {
		return reference{}, false
	}
	if name := unit.Text(fn); name != "require" && name != "import" {
		return reference{}, false
	}
	arg := args.NamedChild(0)
	if arg.Type() != "string" {
		return reference{}, false
	}
	spec := syntax.StringValue(arg, unit.Source)
	return reference{loc: locOf(arg), request: spec, specifier: spec}, true
}
