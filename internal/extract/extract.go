// Package extract locates the $closed marker in a parsed source unit, validates
// its placement and returns the enclosing function together with the unit's
// top-level imports.
package extract

import (
	"fmt"
	"regexp"
	"time"

	"closedfn/internal/logging"
	"closedfn/internal/syntax"

	sitter "github.com/smacker/go-tree-sitter"
)

// Marker is the reserved label that declares a function body closed.
const Marker = "$closed"

// markerPattern is the cheap textual gate in front of parsing.
var markerPattern = regexp.MustCompile(`(?m)^\s*\$closed\s*:\s*\{`)

// HasMarker reports whether src may contain a closed block. False positives are
// resolved by Extract; false negatives are impossible for well-formed markers.
func HasMarker(src []byte) bool {
	return markerPattern.Match(src)
}

// Import is one top-level import declaration, kept verbatim.
type Import struct {
	Span      syntax.Span
	Text      string
	Specifier string
}

// Function is the function-like node whose body is the closed block.
type Function struct {
	Kind string
	Name string
	Text string

	Span   syntax.Span // whole function node
	Body   syntax.Span // the statement block, braces included
	Params syntax.Span // parameter list (or the bare parameter of an arrow)

	// SignatureStart is where a method's type parameters or parameters begin.
	SignatureStart int

	Async     bool
	Generator bool
}

// IsArrow reports whether the closed function is an arrow function.
func (f *Function) IsArrow() bool { return f.Kind == "arrow_function" }

// IsMethod reports whether the closed function is a class or object method.
func (f *Function) IsMethod() bool { return f.Kind == "method_definition" }

// Result is the outcome of Extract. Function is nil when the unit has no marker.
type Result struct {
	Imports  []Import
	Function *Function
}

// StructuralError reports a misplaced or duplicated marker.
type StructuralError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Column, e.Msg)
}

const (
	msgNotSole   = Marker + " must be the sole statement of a function body"
	msgDuplicate = Marker + " may appear at most once per file"
)

// extractor threads the traversal state through the walk.
type extractor struct {
	unit    *syntax.Unit
	imports []Import
	fn      *Function
	err     error
}

// Extract walks unit depth-first, collecting top-level imports and the single
// closed function. A structural violation aborts the walk.
func Extract(unit *syntax.Unit) (*Result, error) {
	start := time.Now()

	x := &extractor{unit: unit}
	x.visit(unit.Root())
	if x.err != nil {
		logging.ExtractWarn("extract: %v", x.err)
		return nil, x.err
	}

	logging.ExtractDebug("extract: %s - %d imports, closed=%v in %v",
		unit.Path, len(x.imports), x.fn != nil, time.Since(start))
	return &Result{Imports: x.imports, Function: x.fn}, nil
}

func (x *extractor) visit(container *sitter.Node) {
	for i := 0; i < int(container.NamedChildCount()) && x.err == nil; i++ {
		node := container.NamedChild(i)

		switch {
		case node.Type() == "import_statement" && container.Type() == "program":
			x.recordImport(node)

		case x.isMarker(node):
			x.recordClosed(container, node)
			// The labeled body belongs to the satellite; nothing inside it is host structure.

		default:
			x.visit(node)
		}
	}
}

func (x *extractor) isMarker(node *sitter.Node) bool {
	if node.Type() != "labeled_statement" {
		return false
	}
	label := node.ChildByFieldName("label")
	return label != nil && x.unit.Text(label) == Marker
}

func (x *extractor) recordImport(node *sitter.Node) {
	imp := Import{Span: syntax.SpanOf(node), Text: x.unit.Text(node)}
	if src := node.ChildByFieldName("source"); src != nil {
		imp.Specifier = syntax.StringValue(src, x.unit.Source)
	}
	x.imports = append(x.imports, imp)
}

func (x *extractor) recordClosed(container, label *sitter.Node) {
	fn := container.Parent()
	isBody := container.Type() == "statement_block" && syntax.IsFunctionLike(fn) &&
		fn.ChildByFieldName("body") != nil && syntax.KeyOf(fn.ChildByFieldName("body")) == syntax.KeyOf(container)

	if !isBody || len(syntax.Statements(container)) != 1 {
		x.fail(label, msgNotSole)
		return
	}
	if x.fn != nil {
		x.fail(label, msgDuplicate)
		return
	}
	x.fn = x.describe(fn, container)
}

func (x *extractor) fail(node *sitter.Node, msg string) {
	p := node.StartPoint()
	x.err = &StructuralError{File: x.unit.Path, Line: int(p.Row) + 1, Column: int(p.Column) + 1, Msg: msg}
}

func (x *extractor) describe(fn, body *sitter.Node) *Function {
	f := &Function{
		Kind: fn.Type(),
		Text: x.unit.Text(fn),
		Span: syntax.SpanOf(fn),
		Body: syntax.SpanOf(body),
	}
	if name := fn.ChildByFieldName("name"); name != nil {
		f.Name = x.unit.Text(name)
	}

	params := fn.ChildByFieldName("parameters")
	if params == nil {
		params = fn.ChildByFieldName("parameter") // single-identifier arrow
	}
	if params != nil {
		f.Params = syntax.SpanOf(params)
		f.SignatureStart = f.Params.Start
	}
	if tp := fn.ChildByFieldName("type_parameters"); tp != nil {
		f.SignatureStart = int(tp.StartByte())
	}

	for i := 0; i < int(fn.ChildCount()); i++ {
		switch fn.Child(i).Type() {
		case "async":
			f.Async = true
		case "*":
			f.Generator = true
		}
	}
	switch f.Kind {
	case "generator_function_declaration", "generator_function":
		f.Generator = true
	}
	return f
}
