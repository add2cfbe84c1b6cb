package syntax

import sitter "github.com/smacker/go-tree-sitter"

// Node kinds that introduce a function with its own body.
var functionKinds = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function":                       true,
	"function_expression":            true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

// IsFunctionLike reports whether n is a function-like construct with a body.
func IsFunctionLike(n *sitter.Node) bool {
	return n != nil && functionKinds[n.Type()]
}

// IsArrow reports whether n is an arrow function.
func IsArrow(n *sitter.Node) bool {
	return n != nil && n.Type() == "arrow_function"
}

// Statements returns the named, non-comment children of a block.
func Statements(block *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(block.NamedChildCount()); i++ {
		child := block.NamedChild(i)
		if child.Type() == "comment" {
			continue
		}
		out = append(out, child)
	}
	return out
}

// Span is a half-open byte range.
type Span struct {
	Start, End int
}

// SpanOf returns the byte range of n.
func SpanOf(n *sitter.Node) Span {
	return Span{Start: int(n.StartByte()), End: int(n.EndByte())}
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Key identifies a node within one tree.
type Key struct {
	Start, End uint32
	Kind       string
}

// KeyOf returns the identity key of n.
func KeyOf(n *sitter.Node) Key {
	return Key{Start: n.StartByte(), End: n.EndByte(), Kind: n.Type()}
}

// Walk visits n and its descendants depth-first. Returning false from fn skips n's children.
func Walk(n *sitter.Node, fn func(*sitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		Walk(n.Child(i), fn)
	}
}

// StringValue returns the contents of a string literal node without its quotes.
func StringValue(n *sitter.Node, src []byte) string {
	text := string(src[n.StartByte():n.EndByte()])
	if len(text) >= 2 {
		switch text[0] {
		case '"', '\'', '`':
			return text[1 : len(text)-1]
		}
	}
	return text
}
