// Package compiler is the type-checker collaborator of the nested build: it
// parses a satellite unit, reports unresolved identifiers as pre-emit
// diagnostics, and emits plain JavaScript for the bundler.
package compiler

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"closedfn/internal/bundle"
	"closedfn/internal/logging"
	"closedfn/internal/syntax"

	"github.com/evanw/esbuild/pkg/api"
)

// Category classifies a diagnostic's severity.
type Category int

const (
	CategoryWarning Category = iota
	CategoryError
)

// Diagnostic codes, numbered after their TypeScript equivalents.
const (
	CodeSyntaxError    = 1005
	CodeCannotFindName = 2304
)

// Diagnostic is one finding about a program's source.
type Diagnostic struct {
	File     string
	Line     int
	Column   int
	Category Category
	Code     int
	Message  string
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s:%d:%d: TS%d: %s", d.File, d.Line, d.Column, d.Code, d.Message)
}

// Compiler creates programs over single source units.
type Compiler interface {
	CreateProgram(ctx context.Context, path string, text []byte) (Program, error)
}

// Program is a parsed unit ready for checking and emit.
type Program interface {
	PreEmitDiagnostics() []Diagnostic
	Emit(outDir string) (string, error)
	Close()
}

// Options configures the default compiler.
type Options struct {
	// Globals extends the ambient names accepted without declaration.
	Globals []string

	// Tsconfig is the raw tsconfig JSON used for emit.
	Tsconfig string

	// Target is the emit target (esbuild name).
	Target string
}

// TreeSitter is the default Compiler: scope resolution over a tree-sitter
// parse, emit through esbuild's transform API.
type TreeSitter struct {
	opts    Options
	globals map[string]bool
}

// New returns the default compiler.
func New(opts Options) *TreeSitter {
	globals := defaultGlobals()
	for _, g := range opts.Globals {
		globals[g] = true
	}
	return &TreeSitter{opts: opts, globals: globals}
}

// ParseUnit parses one source unit.
func (c *TreeSitter) ParseUnit(ctx context.Context, path string, text []byte) (*syntax.Unit, error) {
	return syntax.Parse(ctx, path, text)
}

// CreateProgram implements Compiler.
func (c *TreeSitter) CreateProgram(ctx context.Context, path string, text []byte) (Program, error) {
	unit, err := c.ParseUnit(ctx, path, text)
	if err != nil {
		return nil, err
	}
	return &program{unit: unit, compiler: c}, nil
}

type program struct {
	unit     *syntax.Unit
	compiler *TreeSitter
}

func (p *program) PreEmitDiagnostics() []Diagnostic {
	start := time.Now()
	var diags []Diagnostic
	if p.unit.Root().HasError() {
		diags = append(diags, syntaxDiagnostics(p.unit)...)
	}
	diags = append(diags, resolve(p.unit, p.compiler.globals)...)
	logging.CompileDebug("compile: %s - %d diagnostics in %v", filepath.Base(p.unit.Path), len(diags), time.Since(start))
	return diags
}

// Emit transpiles the unit to JavaScript in outDir and returns the output path.
func (p *program) Emit(outDir string) (string, error) {
	target, err := bundle.Target(p.compiler.opts.Target)
	if err != nil {
		return "", err
	}
	result := api.Transform(string(p.unit.Source), api.TransformOptions{
		Loader:      bundle.LoaderFor(p.unit.Path),
		Format:      api.FormatESModule,
		Target:      target,
		TsconfigRaw: p.compiler.opts.Tsconfig,
		Sourcefile:  p.unit.Path,
	})
	if err := bundle.MessagesError(result.Errors); err != nil {
		return "", fmt.Errorf("emit %s: %w", p.unit.Path, err)
	}

	base := strings.TrimSuffix(filepath.Base(p.unit.Path), filepath.Ext(p.unit.Path))
	out := filepath.Join(outDir, base+".js")
	if err := os.WriteFile(out, result.Code, 0644); err != nil {
		return "", fmt.Errorf("failed to write emit output: %w", err)
	}
	return out, nil
}

func (p *program) Close() {
	p.unit.Close()
}
