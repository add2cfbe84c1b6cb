package bundle

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"go.uber.org/multierr"
)

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es6":    api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// Target maps a configured target name (case-insensitive) to esbuild's.
func Target(name string) (api.Target, error) {
	if name == "" {
		return api.ESNext, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown target %q", name)
	}
	return t, nil
}

// Format maps iife/cjs/esm to esbuild's output format.
func Format(name string) (api.Format, error) {
	switch name {
	case "", "iife":
		return api.FormatIIFE, nil
	case "cjs":
		return api.FormatCommonJS, nil
	case "esm":
		return api.FormatESModule, nil
	default:
		return api.FormatDefault, fmt.Errorf("unknown format %q", name)
	}
}

// LoaderFor picks the esbuild loader for a source path.
func LoaderFor(path string) api.Loader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ts", ".mts", ".cts":
		return api.LoaderTS
	case ".tsx":
		return api.LoaderTSX
	case ".jsx":
		return api.LoaderJSX
	case ".json":
		return api.LoaderJSON
	default:
		return api.LoaderJS
	}
}

// MessagesError folds esbuild messages into one error, nil when there are none.
func MessagesError(msgs []api.Message) error {
	var err error
	for _, m := range msgs {
		if m.Location != nil {
			err = multierr.Append(err, fmt.Errorf("%s:%d:%d: %s", m.Location.File, m.Location.Line, m.Location.Column, m.Text))
		} else {
			err = multierr.Append(err, errors.New(m.Text))
		}
	}
	return err
}
