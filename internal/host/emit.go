package host

import (
	"fmt"
	"os"
	"path/filepath"

	"closedfn/internal/bundle"
	"closedfn/internal/config"
	"closedfn/internal/logging"

	"github.com/evanw/esbuild/pkg/api"
)

// emit bundles the processed module sources into the final output.
func (c *Compiler) emit(comp *Compilation, entry string, res *Result) error {
	cfg := c.Config.Build

	target, err := bundle.Target(cfg.Target)
	if err != nil {
		return err
	}
	format, err := bundle.Format(cfg.Format)
	if err != nil {
		return err
	}
	outfile, err := filepath.Abs(cfg.Outfile)
	if err != nil {
		return fmt.Errorf("failed to resolve outfile: %w", err)
	}

	opts := api.BuildOptions{
		EntryPoints:       []string{entry},
		Bundle:            true,
		Write:             false,
		Outfile:           outfile,
		Format:            format,
		Platform:          api.PlatformBrowser,
		Target:            target,
		NodePaths:         AbsPaths(c.Config.Resolve.NodePaths),
		ResolveExtensions: c.Config.Resolve.Extensions,
		LogLevel:          api.LogLevelSilent,
		Plugins:           []api.Plugin{serveCompiled(comp)},
	}
	if format == api.FormatIIFE {
		opts.GlobalName = cfg.GlobalName
	}
	switch cfg.Mode {
	case config.ModeProduction:
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
	case config.ModeDevelopment:
		opts.Sourcemap = api.SourceMapInline
	}

	result := api.Build(opts)
	if err := bundle.MessagesError(result.Errors); err != nil {
		return fmt.Errorf("final bundle failed: %w", err)
	}
	for _, w := range result.Warnings {
		res.Warnings = append(res.Warnings, w.Text)
	}
	for _, f := range result.OutputFiles {
		if f.Path == outfile {
			res.Output = f.Contents
		}
	}
	if res.Output == nil && len(result.OutputFiles) > 0 {
		res.Output = result.OutputFiles[0].Contents
	}

	if err := os.MkdirAll(filepath.Dir(outfile), 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(outfile, res.Output, 0644); err != nil {
		return fmt.Errorf("failed to write bundle: %w", err)
	}
	res.Outfile = outfile

	logging.Pipeline("emitted %s (%d bytes, mode=%s)", outfile, len(res.Output), cfg.Mode)
	return nil
}

// serveCompiled makes esbuild read each known module's processed Source
// instead of the file on disk.
func serveCompiled(comp *Compilation) api.Plugin {
	return api.Plugin{
		Name: "closedfn-host-sources",
		Setup: func(build api.PluginBuild) {
			build.OnLoad(api.OnLoadOptions{Filter: `.*`, Namespace: "file"}, func(args api.OnLoadArgs) (api.OnLoadResult, error) {
				m := comp.Module(args.Path)
				if m == nil {
					return api.OnLoadResult{}, nil
				}
				contents := m.Source
				return api.OnLoadResult{
					Contents:   &contents,
					ResolveDir: filepath.Dir(args.Path),
					Loader:     bundle.LoaderFor(args.Path),
				}, nil
			})
		},
	}
}

// AbsPaths makes every path absolute against the working directory.
func AbsPaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if abs, err := filepath.Abs(p); err == nil {
			out = append(out, abs)
		}
	}
	return out
}
