package compiler

import (
	"fmt"
	"unicode"

	"closedfn/internal/syntax"

	sitter "github.com/smacker/go-tree-sitter"
)

// Nodes that open a lexical scope.
var scopeKinds = map[string]bool{
	"program":                        true,
	"statement_block":                true,
	"for_statement":                  true,
	"for_in_statement":               true,
	"catch_clause":                   true,
	"switch_body":                    true,
	"class":                          true,
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// Subtrees that only describe types. Identifiers inside them never need a value binding.
var typeKinds = map[string]bool{
	"type_annotation":           true,
	"type_arguments":            true,
	"type_parameters":           true,
	"interface_declaration":     true,
	"type_alias_declaration":    true,
	"implements_clause":         true,
	"type_predicate_annotation": true,
	"asserts_annotation":        true,
	"type_query":                true,
	"import_statement":          true,
	"export_clause":             true,
}

var jsxNameParents = map[string]bool{
	"jsx_opening_element":      true,
	"jsx_closing_element":      true,
	"jsx_self_closing_element": true,
}

// resolver binds every value reference in a unit to a declaration.
type resolver struct {
	unit     *syntax.Unit
	globals  map[string]bool
	scopes   map[syntax.Key]map[string]bool
	declared map[syntax.Key]bool
}

// resolve reports one CodeCannotFindName diagnostic per reference that no
// enclosing scope or ambient global declares.
func resolve(unit *syntax.Unit, globals map[string]bool) []Diagnostic {
	r := &resolver{
		unit:     unit,
		globals:  globals,
		scopes:   make(map[syntax.Key]map[string]bool),
		declared: make(map[syntax.Key]bool),
	}
	syntax.Walk(unit.Root(), r.collect)

	var diags []Diagnostic
	syntax.Walk(unit.Root(), func(n *sitter.Node) bool {
		if typeKinds[n.Type()] {
			return false
		}
		if !isReference(n) || r.declared[syntax.KeyOf(n)] {
			return true
		}
		name := unit.Text(n)
		if r.bound(n, name) {
			return true
		}
		p := n.StartPoint()
		diags = append(diags, Diagnostic{
			File:     unit.Path,
			Line:     int(p.Row) + 1,
			Column:   int(p.Column) + 1,
			Category: CategoryError,
			Code:     CodeCannotFindName,
			Message:  fmt.Sprintf("Cannot find name '%s'.", name),
		})
		return true
	})
	return diags
}

func isReference(n *sitter.Node) bool {
	switch n.Type() {
	case "identifier", "shorthand_property_identifier":
		return true
	}
	return false
}

// bound walks outward from n looking for a scope declaring name.
func (r *resolver) bound(n *sitter.Node, name string) bool {
	// Lowercase JSX tags are intrinsic elements.
	if parent := n.Parent(); parent != nil && jsxNameParents[parent.Type()] {
		if first := []rune(name); len(first) > 0 && unicode.IsLower(first[0]) {
			return true
		}
	}
	for cur := n; cur != nil; cur = cur.Parent() {
		if names, ok := r.scopes[syntax.KeyOf(cur)]; ok && names[name] {
			return true
		}
	}
	return r.globals[name]
}

// collect records declarations. It returns false for subtrees it fully handles.
func (r *resolver) collect(n *sitter.Node) bool {
	switch n.Type() {
	case "import_statement":
		r.collectImport(n)
		return false

	case "function_declaration", "generator_function_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			r.declare(enclosingScope(n.Parent()), name)
		}
		r.collectParams(n)

	case "function", "function_expression", "generator_function":
		if name := n.ChildByFieldName("name"); name != nil {
			r.declare(n, name)
		}
		r.collectParams(n)

	case "arrow_function", "method_definition":
		r.collectParams(n)

	case "class_declaration", "abstract_class_declaration":
		if name := n.ChildByFieldName("name"); name != nil {
			r.declare(enclosingScope(n.Parent()), name)
		}

	case "class":
		if name := n.ChildByFieldName("name"); name != nil {
			r.declare(n, name)
		}

	case "enum_declaration", "internal_module", "module":
		if name := n.ChildByFieldName("name"); name != nil && name.Type() == "identifier" {
			r.declare(enclosingScope(n.Parent()), name)
		}

	case "variable_declarator":
		name := n.ChildByFieldName("name")
		if name == nil {
			break
		}
		scope := enclosingScope(n.Parent())
		if parent := n.Parent(); parent != nil && parent.Type() == "variable_declaration" {
			scope = functionScope(n)
		}
		r.collectPattern(scope, name)

	case "catch_clause":
		if param := n.ChildByFieldName("parameter"); param != nil {
			r.collectPattern(n, param)
		}

	case "for_in_statement":
		left := n.ChildByFieldName("left")
		if left == nil {
			break
		}
		switch declKind(n) {
		case "var":
			r.collectPattern(functionScope(n), left)
		case "let", "const":
			r.collectPattern(n, left)
		}
	}
	return true
}

// declKind returns the declaration keyword of a for-in/of head, if any.
func declKind(n *sitter.Node) string {
	if kind := n.ChildByFieldName("kind"); kind != nil {
		return kind.Type()
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		switch t := n.Child(i).Type(); t {
		case "var", "let", "const":
			return t
		}
	}
	return ""
}

func (r *resolver) collectImport(n *sitter.Node) {
	program := enclosingScope(n.Parent())
	syntax.Walk(n, func(c *sitter.Node) bool {
		if c.Type() == "string" {
			return false
		}
		if c.Type() == "import_specifier" {
			name := c.ChildByFieldName("alias")
			if name == nil {
				name = c.ChildByFieldName("name")
			}
			if name != nil && name.Type() == "identifier" {
				r.declare(program, name)
			}
			return false
		}
		if c.Type() == "identifier" {
			r.declare(program, c)
		}
		return true
	})
}

func (r *resolver) collectParams(fn *sitter.Node) {
	if param := fn.ChildByFieldName("parameter"); param != nil {
		r.collectPattern(fn, param)
	}
	params := fn.ChildByFieldName("parameters")
	if params == nil {
		return
	}
	for i := 0; i < int(params.NamedChildCount()); i++ {
		r.collectPattern(fn, params.NamedChild(i))
	}
}

// collectPattern declares every binding introduced by a destructuring pattern.
func (r *resolver) collectPattern(scope, n *sitter.Node) {
	if n == nil {
		return
	}
	switch n.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		r.declare(scope, n)
	case "object_pattern", "array_pattern", "rest_pattern":
		for i := 0; i < int(n.NamedChildCount()); i++ {
			r.collectPattern(scope, n.NamedChild(i))
		}
	case "pair_pattern":
		r.collectPattern(scope, n.ChildByFieldName("value"))
	case "assignment_pattern", "object_assignment_pattern":
		r.collectPattern(scope, n.ChildByFieldName("left"))
	case "required_parameter", "optional_parameter":
		r.collectPattern(scope, n.ChildByFieldName("pattern"))
	}
}

func (r *resolver) declare(scope, name *sitter.Node) {
	if scope == nil {
		return
	}
	key := syntax.KeyOf(scope)
	names, ok := r.scopes[key]
	if !ok {
		names = make(map[string]bool)
		r.scopes[key] = names
	}
	names[r.unit.Text(name)] = true
	r.declared[syntax.KeyOf(name)] = true
}

// enclosingScope returns n itself when it opens a scope, else its nearest scoped ancestor.
func enclosingScope(n *sitter.Node) *sitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if scopeKinds[cur.Type()] {
			return cur
		}
	}
	return nil
}

// functionScope returns the scope var declarations hoist to.
func functionScope(n *sitter.Node) *sitter.Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if cur.Type() == "program" || syntax.IsFunctionLike(cur) {
			return cur
		}
	}
	return nil
}

// syntaxDiagnostics reports each ERROR or MISSING node of a tree with parse errors.
func syntaxDiagnostics(unit *syntax.Unit) []Diagnostic {
	var diags []Diagnostic
	syntax.Walk(unit.Root(), func(n *sitter.Node) bool {
		if !n.IsError() && !n.IsMissing() {
			return n.HasError()
		}
		p := n.StartPoint()
		diags = append(diags, Diagnostic{
			File:     unit.Path,
			Line:     int(p.Row) + 1,
			Column:   int(p.Column) + 1,
			Category: CategoryError,
			Code:     CodeSyntaxError,
			Message:  "Syntax error.",
		})
		return false
	})
	return diags
}
