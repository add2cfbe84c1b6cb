// Package satellite synthesizes the independently compilable unit for a
// closed function and strips the function body out of its host module.
package satellite

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"closedfn/internal/extract"
	"closedfn/internal/host"
	"closedfn/internal/logging"

	"github.com/google/uuid"
)

// ArgsName is the rest parameter given to stripped arrow functions, which
// have no arguments object of their own.
const ArgsName = "__closedArgs"

var exportPrefix = regexp.MustCompile(`^export\s+(default\s+)?`)

// Unit is a synthesized satellite and the bookkeeping needed to splice its
// artifact back into the host.
type Unit struct {
	Module *host.Module

	// OriginalResource is the host resource before redirection.
	OriginalResource string

	// Path and Text are the satellite source.
	Path string
	Text string

	// StrippedPath holds the host text with the body replaced by Placeholder.
	StrippedPath string
	StrippedText string

	// Token is the unique id embedded in Placeholder.
	Token       string
	Placeholder string

	// Arrow marks a stripped arrow function; its arguments arrive as ArgsName.
	Arrow bool

	// Generator marks a generator host, which must delegate to the artifact.
	Generator bool
}

// Placeholder returns the statement that stands in for a stripped body.
func Placeholder(token string) string {
	return fmt.Sprintf("console.log(%q);", token)
}

// SatelliteText builds the satellite source: the host's imports verbatim,
// then the closed function as the unit's default export.
func SatelliteText(src string, res *extract.Result) string {
	var b strings.Builder
	for _, imp := range res.Imports {
		b.WriteString(imp.Text)
		b.WriteString("\n")
	}
	b.WriteString("export default ")
	b.WriteString(functionExpression(src, res.Function))
	b.WriteString("\n")
	return b.String()
}

// functionExpression renders fn as an expression usable after "export default".
func functionExpression(src string, fn *extract.Function) string {
	if !fn.IsMethod() {
		return exportPrefix.ReplaceAllString(fn.Text, "")
	}
	head := "function"
	if fn.Async {
		head = "async function"
	}
	if fn.Generator {
		head += "*"
	}
	return head + " " + src[fn.SignatureStart:fn.Span.End]
}

// StripHost replaces the closed body with the placeholder, preserving the
// layout of everything outside the body. Arrow functions also get their
// parameters replaced by a rest parameter.
func StripHost(src string, fn *extract.Function, placeholder string) string {
	var b strings.Builder
	cursor := 0
	if fn.IsArrow() && fn.Params.Len() > 0 {
		b.WriteString(src[:fn.Params.Start])
		b.WriteString(fit("(..."+ArgsName, ")", src[fn.Params.Start:fn.Params.End]))
		cursor = fn.Params.End
	}
	b.WriteString(src[cursor:fn.Body.Start])
	b.WriteString(fit("{ "+placeholder, "}", src[fn.Body.Start:fn.Body.End]))
	b.WriteString(src[fn.Body.End:])
	return b.String()
}

// Synthesize writes the satellite and the stripped host into workDir and
// redirects m.Resource to the stripped copy until the closed block is mounted.
func Synthesize(m *host.Module, res *extract.Result, workDir string) (*Unit, error) {
	if res == nil || res.Function == nil {
		return nil, fmt.Errorf("synthesize %s: no closed function", m.Identifier())
	}

	id := uuid.NewString()
	ext := filepath.Ext(m.Identifier())
	u := &Unit{
		Module:           m,
		OriginalResource: m.Resource,
		Path:             filepath.Join(workDir, "satellite-"+id+ext),
		StrippedPath:     filepath.Join(workDir, "stripped-resource-"+id+ext),
		Token:            id,
		Placeholder:      Placeholder(id),
		Arrow:            res.Function.IsArrow(),
		Generator:        res.Function.Generator,
	}
	u.Text = SatelliteText(m.Source, res)
	u.StrippedText = StripHost(m.Source, res.Function, u.Placeholder)

	if err := os.WriteFile(u.Path, []byte(u.Text), 0644); err != nil {
		return nil, fmt.Errorf("failed to write satellite: %w", err)
	}
	if err := os.WriteFile(u.StrippedPath, []byte(u.StrippedText), 0644); err != nil {
		return nil, fmt.Errorf("failed to write stripped resource: %w", err)
	}

	m.Resource = u.StrippedPath
	logging.Synth("synth: %s -> %s (%d imports)", m.Identifier(), filepath.Base(u.Path), len(res.Imports))
	return u, nil
}

// Restore points the module back at its original resource.
func (u *Unit) Restore() {
	u.Module.Resource = u.OriginalResource
}
