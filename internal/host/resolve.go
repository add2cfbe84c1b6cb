package host

import (
	"os"
	"path/filepath"
	"strings"
)

// isRelative reports whether spec names a file rather than a package.
func isRelative(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || filepath.IsAbs(spec)
}

// resolveFile resolves a relative or absolute specifier from importerDir,
// trying the configured extensions and directory index files. Bare package
// specifiers are left to the bundler and resolve to "".
func resolveFile(importerDir, spec string, extensions []string) string {
	if !isRelative(spec) {
		return ""
	}
	base := spec
	if !filepath.IsAbs(base) {
		base = filepath.Join(importerDir, spec)
	}

	candidates := []string{base}
	for _, ext := range extensions {
		candidates = append(candidates, base+ext)
	}
	// "./x.js" may name a TypeScript source.
	if ext := filepath.Ext(base); ext == ".js" || ext == ".mjs" || ext == ".cjs" {
		trimmed := strings.TrimSuffix(base, ext)
		for _, ext := range extensions {
			candidates = append(candidates, trimmed+ext)
		}
	}
	for _, ext := range extensions {
		candidates = append(candidates, filepath.Join(base, "index"+ext))
	}

	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}
