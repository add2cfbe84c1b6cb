// Package splice replaces a stripped body's placeholder with the injection
// that evaluates, caches and invokes the bundled closed function.
package splice

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"closedfn/internal/bundle"
	"closedfn/internal/logging"
)

// RegistryName is the globalThis property holding evaluated closed functions.
const RegistryName = "__closedArtifacts__"

// ErrPlaceholderNotFound means the processed host text no longer contains the placeholder.
var ErrPlaceholderNotFound = errors.New("placeholder not found")

// Pattern matches the placeholder statement for token, whatever quote style a
// loader rewrote it to.
func Pattern(token string) *regexp.Regexp {
	return regexp.MustCompile("console\\.log\\(\\s*[\"'`]" + regexp.QuoteMeta(token) + "[\"'`]\\s*\\)\\s*;?")
}

// Locate returns the byte range of the placeholder for token in source.
func Locate(source, token string) (start, end int, err error) {
	loc := Pattern(token).FindStringIndex(source)
	if loc == nil {
		return 0, 0, fmt.Errorf("%w: %s", ErrPlaceholderNotFound, token)
	}
	return loc[0], loc[1], nil
}

// Call describes how the stripped host body forwards to the artifact.
type Call struct {
	// Arrow hosts have no arguments object; they forward ArgsName instead.
	Arrow    bool
	ArgsName string

	// Generator hosts delegate with yield* so the artifact's values are
	// yielded by the host itself. This also holds for async generators.
	Generator bool
}

// Injection builds the single-line block that replaces the placeholder. On
// first call it evaluates the bundle and registers the resulting function
// under fingerprint; every call then forwards this and the arguments to it.
func Injection(fingerprint string, artifact []byte, call Call) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(string(artifact)); err != nil {
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}
	code := strings.TrimSuffix(buf.String(), "\n")

	args := "arguments"
	if call.Arrow {
		args = call.ArgsName
	}
	ret := "return "
	if call.Generator {
		ret = "return yield* "
	}
	registry := fmt.Sprintf("globalThis[%q]", RegistryName)
	key := fmt.Sprintf("r[%q]", fingerprint)

	return fmt.Sprintf(
		`{ const r = %s || (%s = {}); if (!%s) { %s = new Function(%s + "\nreturn %s.default;")(); } %s%s.apply(this, %s); }`,
		registry, registry, key, key, code, bundle.EntryGlobal, ret, key, args,
	), nil
}

// Splice replaces the placeholder for token with injection.
func Splice(source, token, injection string) (string, error) {
	start, end, err := Locate(source, token)
	if err != nil {
		return "", err
	}
	logging.SpliceDebug("splice: placeholder %s at [%d,%d)", token, start, end)
	return SpliceRange(source, start, end, injection)
}

// SpliceRange replaces source[start:end] with injection. Callers must hold
// offsets into the exact text being spliced.
func SpliceRange(source string, start, end int, injection string) (string, error) {
	if start < 0 || end < start || end > len(source) {
		return "", fmt.Errorf("splice range [%d,%d) out of bounds for %d bytes", start, end, len(source))
	}
	return source[:start] + injection + source[end:], nil
}
