// Package bundle drives the nested bundling pass that turns an emitted
// satellite into a self-contained artifact.
package bundle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"closedfn/internal/logging"

	"github.com/evanw/esbuild/pkg/api"
)

// EntryGlobal is the IIFE global the artifact assigns its exports to.
const EntryGlobal = "__closedEntry"

// Request describes one nested bundle.
type Request struct {
	// Entry is the emitted satellite (absolute path).
	Entry string

	// OutDir and Filename select where the artifact is written.
	OutDir   string
	Filename string

	// Importer is the original host module. Relative imports of the entry
	// resolve as if written there.
	Importer string

	// Resolution shared with the host build.
	NodePaths  []string
	Extensions []string

	Target   string
	Tsconfig string // raw tsconfig JSON
}

// OutputPath is where the artifact ends up.
func (r Request) OutputPath() string {
	return filepath.Join(r.OutDir, r.Filename)
}

// Output is a written artifact and the source files it was bundled from.
type Output struct {
	Path string

	// Inputs are absolute paths of every file inlined into the artifact,
	// excluding the entry itself.
	Inputs []string
}

// Bundler produces a dependency-free artifact from a satellite entry. It must
// tolerate concurrent calls with disjoint outputs.
type Bundler interface {
	Bundle(ctx context.Context, req Request) (*Output, error)
}

// BuildError is the aggregated failure of one nested bundle.
type BuildError struct {
	Entry string
	Err   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("nested build of %s failed: %v", e.Entry, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// Esbuild bundles with esbuild's Go API. It never installs the closedfn
// plugin, so synthesized output is not reprocessed.
type Esbuild struct{}

// Bundle implements Bundler.
func (Esbuild) Bundle(ctx context.Context, req Request) (*Output, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()

	target, err := Target(req.Target)
	if err != nil {
		return nil, &BuildError{Entry: req.Entry, Err: err}
	}
	// esbuild resolves relative paths against AbsWorkingDir.
	if req.Entry, err = filepath.Abs(req.Entry); err != nil {
		return nil, &BuildError{Entry: req.Entry, Err: err}
	}
	if req.OutDir, err = filepath.Abs(req.OutDir); err != nil {
		return nil, &BuildError{Entry: req.Entry, Err: err}
	}
	workDir := req.OutDir

	result := api.Build(api.BuildOptions{
		EntryPoints:       []string{req.Entry},
		Bundle:            true,
		Write:             true,
		Outfile:           req.OutputPath(),
		Format:            api.FormatIIFE,
		GlobalName:        EntryGlobal,
		Platform:          api.PlatformBrowser,
		Target:            target,
		NodePaths:         req.NodePaths,
		ResolveExtensions: req.Extensions,
		TsconfigRaw:       req.Tsconfig,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{resolveFromImporter(req)},
		Metafile:          true,
		AbsWorkingDir:     workDir,
	})

	if err := MessagesError(result.Errors); err != nil {
		logging.BundleError("bundle: %s: %d errors", req.Entry, len(result.Errors))
		return nil, &BuildError{Entry: req.Entry, Err: err}
	}

	inputs, err := metafileInputs(result.Metafile, workDir)
	if err != nil {
		return nil, &BuildError{Entry: req.Entry, Err: err}
	}

	logging.BundleDebug("bundle: %s -> %s (%d inputs) in %v", filepath.Base(req.Entry), req.Filename, len(inputs), time.Since(start))
	return &Output{Path: req.OutputPath(), Inputs: inputs}, nil
}

// metafileInputs lists the file inputs recorded in an esbuild metafile as
// absolute paths. Paths in the metafile are relative to workDir, which holds
// only the emitted entry, so inputs inside it are skipped. Inputs from other
// namespaces carry a "namespace:" prefix and are skipped too.
func metafileInputs(metafile, workDir string) ([]string, error) {
	var meta struct {
		Inputs map[string]json.RawMessage `json:"inputs"`
	}
	if err := json.Unmarshal([]byte(metafile), &meta); err != nil {
		return nil, fmt.Errorf("failed to parse metafile: %w", err)
	}

	inputs := make([]string, 0, len(meta.Inputs))
	for p := range meta.Inputs {
		if i := strings.Index(p, ":"); i > 1 {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.FromSlash(p)
			if p != ".." && !strings.HasPrefix(p, ".."+string(filepath.Separator)) {
				continue
			}
			p = filepath.Join(workDir, p)
		}
		inputs = append(inputs, p)
	}
	sort.Strings(inputs)
	return inputs, nil
}

// resolveFromImporter resolves the entry's relative imports against the
// original module's directory; the satellite lives in a temp dir.
func resolveFromImporter(req Request) api.Plugin {
	return api.Plugin{
		Name: "closedfn-satellite-resolve",
		Setup: func(build api.PluginBuild) {
			build.OnResolve(api.OnResolveOptions{Filter: `^\.\.?/`}, func(args api.OnResolveArgs) (api.OnResolveResult, error) {
				if args.Importer != req.Entry {
					return api.OnResolveResult{}, nil
				}
				res := build.Resolve(args.Path, api.ResolveOptions{
					Importer:   req.Importer,
					ResolveDir: filepath.Dir(req.Importer),
					Kind:       args.Kind,
				})
				if len(res.Errors) > 0 {
					return api.OnResolveResult{}, errors.New(res.Errors[0].Text)
				}
				return api.OnResolveResult{Path: res.Path, External: res.External, Namespace: res.Namespace}, nil
			})
		},
	}
}
