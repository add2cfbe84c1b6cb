// Package syntax wraps tree-sitter parsing of TypeScript and JavaScript source units.
package syntax

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"closedfn/internal/logging"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Unit is a parsed source file. Close releases the tree.
type Unit struct {
	Path   string
	Source []byte
	Tree   *sitter.Tree
}

// Root returns the tree's root node.
func (u *Unit) Root() *sitter.Node {
	return u.Tree.RootNode()
}

// Text returns the source text covered by n.
func (u *Unit) Text(n *sitter.Node) string {
	return string(u.Source[n.StartByte():n.EndByte()])
}

// Close releases the underlying tree-sitter tree.
func (u *Unit) Close() {
	if u.Tree != nil {
		u.Tree.Close()
	}
}

// SupportedExtensions returns the extensions Parse accepts.
func SupportedExtensions() []string {
	return []string{".ts", ".mts", ".cts", ".tsx", ".js", ".jsx", ".mjs", ".cjs"}
}

// languageFor picks the grammar by extension. TSX and JSX share the tsx grammar.
func languageFor(path string) (*sitter.Language, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return typescript.GetLanguage(), nil
	case ".tsx", ".jsx":
		return tsx.GetLanguage(), nil
	case ".js", ".mjs", ".cjs":
		return javascript.GetLanguage(), nil
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", filepath.Ext(path))
	}
}

// Parse parses content as the language implied by path.
// A fresh parser is created per call; tree-sitter parsers are not safe for concurrent use.
func Parse(ctx context.Context, path string, content []byte) (*Unit, error) {
	start := time.Now()

	lang, err := languageFor(path)
	if err != nil {
		return nil, err
	}

	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang)

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	logging.ExtractDebug("syntax: parsed %s (%d bytes) in %v", filepath.Base(path), len(content), time.Since(start))
	return &Unit{Path: path, Source: content, Tree: tree}, nil
}
