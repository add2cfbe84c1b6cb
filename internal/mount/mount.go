// Package mount runs the nested build of one closed function: capture check,
// emit, bundle, then splice of the artifact into the host module.
package mount

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"closedfn/internal/artifact"
	"closedfn/internal/bundle"
	"closedfn/internal/compiler"
	"closedfn/internal/config"
	"closedfn/internal/host"
	"closedfn/internal/logging"
	"closedfn/internal/satellite"
	"closedfn/internal/splice"

	"go.uber.org/multierr"
)

// slowMount is the duration above which a mount is logged as a warning.
const slowMount = 5 * time.Second

// Mounter holds the collaborators shared by every mount of a build.
type Mounter struct {
	Compiler compiler.Compiler
	Bundler  bundle.Bundler
	Cache    *artifact.Cache

	// WorkDir receives emitted satellites and bundle artifacts.
	WorkDir string

	Resolve  config.ResolveConfig
	Target   string
	Tsconfig string
}

// Mount compiles, bundles and splices u. Capture violations and nested build
// failures are module-scoped; an *InvariantError is not. The module's
// resource is restored whatever the outcome.
func (mt *Mounter) Mount(ctx context.Context, u *satellite.Unit) error {
	if u == nil || u.Module == nil {
		return &InvariantError{Module: "<unknown>", Msg: "mount without a satellite unit"}
	}
	defer u.Restore()

	m := u.Module
	timer := logging.StartTimer(logging.CategoryBundle, "mount "+m.Identifier())
	defer timer.StopWithThreshold(slowMount)

	prog, err := mt.Compiler.CreateProgram(ctx, u.Path, []byte(u.Text))
	if err != nil {
		return fmt.Errorf("compile closed block of %s: %w", m.Identifier(), err)
	}
	defer prog.Close()

	if err := CaptureErrors(u.OriginalResource, prog.PreEmitDiagnostics()); err != nil {
		logging.CompileWarn("compile: %s has capture violations", m.Identifier())
		return err
	}

	code, ok := mt.Cache.Get(m.Fingerprint)
	if ok {
		logging.BundleDebug("bundle: cache hit for %s (%s)", m.Identifier(), m.Fingerprint)
	} else {
		var inputs []string
		code, inputs, err = mt.build(ctx, u, prog)
		if err != nil {
			return err
		}
		code, _ = mt.Cache.LoadOrStore(m.Fingerprint, code, inputs)
	}

	injection, err := splice.Injection(m.Fingerprint, code, splice.Call{
		Arrow:     u.Arrow,
		ArgsName:  satellite.ArgsName,
		Generator: u.Generator,
	})
	if err != nil {
		return err
	}
	spliced, err := splice.Splice(m.Source, u.Token, injection)
	if err != nil {
		if errors.Is(err, splice.ErrPlaceholderNotFound) {
			return &InvariantError{Module: m.Identifier(), Msg: "stripped body lost before splice", Err: err}
		}
		return err
	}
	m.Source = spliced

	logging.Splice("splice: mounted closed function of %s (%d byte artifact)", m.Identifier(), len(code))
	return nil
}

// build emits the satellite and bundles it into a self-contained artifact.
// It also returns the source files the artifact was bundled from.
func (mt *Mounter) build(ctx context.Context, u *satellite.Unit, prog compiler.Program) ([]byte, []string, error) {
	outDir := filepath.Join(mt.WorkDir, "out-"+u.Token)
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	entry, err := prog.Emit(outDir)
	if err != nil {
		return nil, nil, fmt.Errorf("emit closed block of %s: %w", u.Module.Identifier(), err)
	}

	out, err := mt.Bundler.Bundle(ctx, bundle.Request{
		Entry:      entry,
		OutDir:     outDir,
		Filename:   "bundle-" + u.Module.Fingerprint + ".js",
		Importer:   u.OriginalResource,
		NodePaths:  host.AbsPaths(mt.Resolve.NodePaths),
		Extensions: mt.Resolve.Extensions,
		Target:     mt.Target,
		Tsconfig:   mt.Tsconfig,
	})
	if err != nil {
		return nil, nil, err
	}

	code, err := os.ReadFile(out.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return code, out.Inputs, nil
}

// CaptureErrors keeps only unresolved-name errors, one CaptureError each.
func CaptureErrors(file string, diags []compiler.Diagnostic) error {
	var err error
	for _, d := range diags {
		if d.Category != compiler.CategoryError || d.Code != compiler.CodeCannotFindName {
			continue
		}
		err = multierr.Append(err, &CaptureError{File: file, Diagnostic: d})
	}
	return err
}
