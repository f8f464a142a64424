// Package config loads the watc configuration file.
//
// The file is optional. Without --config, the working directory is searched
// for watc.toml, watc.yaml and watc.yml in that order. Command-line flags
// override whatever the file sets.
package config

import (
	"bytes"
	stderrors "errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/watc/errors"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Diagnostic output formats.
const (
	FormatPretty  = "pretty"
	FormatShort   = "short"
	FormatJSON    = "json"
	FormatMsgpack = "msgpack"
)

// FileNames lists the names searched for when no path is given.
var FileNames = []string{"watc.toml", "watc.yaml", "watc.yml"}

// Config holds the CLI settings.
type Config struct {
	OutputDir        string `toml:"output_dir" yaml:"output_dir"`
	Color            string `toml:"color" yaml:"color"`
	Format           string `toml:"format" yaml:"format"`
	MaxDiagnostics   int    `toml:"max_diagnostics" yaml:"max_diagnostics"`
	Jobs             int    `toml:"jobs" yaml:"jobs"`
	WarningsAsErrors bool   `toml:"warnings_as_errors" yaml:"warnings_as_errors"`
	Verify           bool   `toml:"verify" yaml:"verify"`
	ContextLines     int    `toml:"context_lines" yaml:"context_lines"`

	// Path is the file the values came from, empty for defaults.
	Path string `toml:"-" yaml:"-"`
}

// Defaults returns the configuration used when no file exists.
func Defaults() *Config {
	return &Config{
		Color:  ColorAuto,
		Format: FormatPretty,
		Jobs:   runtime.GOMAXPROCS(0),
	}
}

// Find returns the first config file in dir, if any.
func Find(dir string) (string, bool, error) {
	if dir == "" {
		dir = "."
	}
	for _, name := range FileNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !stderrors.Is(err, fs.ErrNotExist) {
			return "", false, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err,
				fmt.Sprintf("stat %s", candidate))
		}
	}
	return "", false, nil
}

// Load reads the file at path over the defaults. An empty path searches the
// working directory and falls back to defaults when nothing is found.
func Load(path string) (*Config, error) {
	cfg := Defaults()
	if path == "" {
		found, ok, err := Find(".")
		if err != nil {
			return nil, err
		}
		if !ok {
			return cfg, nil
		}
		path = found
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return nil, errors.NotFound(errors.PhaseConfig, "config file", path)
		}
		return nil, errors.Load(fmt.Sprintf("read %s", path), err)
	}
	if err := decode(path, data, cfg); err != nil {
		return nil, err
	}
	cfg.Path = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".toml":
		meta, err := toml.Decode(string(data), cfg)
		if err != nil {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err,
				fmt.Sprintf("%s: failed to parse TOML", path))
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
				Path(path).Value(undecoded[0].String()).
				Detail("unknown key %q", undecoded[0].String()).Build()
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document leaves the defaults alone
		if err := dec.Decode(cfg); err != nil && !stderrors.Is(err, io.EOF) {
			return errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err,
				fmt.Sprintf("%s: failed to parse YAML", path))
		}
	default:
		unsupported := errors.Unsupported(errors.PhaseConfig,
			fmt.Sprintf("config format %q, expected .toml or .yaml", ext))
		unsupported.Path = []string{path}
		unsupported.Value = ext
		return unsupported
	}
	return nil
}

// Validate checks enumerated and numeric fields.
func (c *Config) Validate() error {
	switch c.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		return invalid("color", c.Color, "color must be auto, always or never")
	}
	switch c.Format {
	case FormatPretty, FormatShort, FormatJSON, FormatMsgpack:
	default:
		return invalid("format", c.Format, "format must be pretty, short, json or msgpack")
	}
	if c.MaxDiagnostics < 0 {
		return invalid("max_diagnostics", c.MaxDiagnostics, "max_diagnostics must not be negative")
	}
	if c.Jobs < 1 {
		return invalid("jobs", c.Jobs, "jobs must be at least 1")
	}
	if c.ContextLines < 0 {
		return invalid("context_lines", c.ContextLines, "context_lines must not be negative")
	}
	return nil
}

// UseColor resolves the color mode for an output that is or is not a
// terminal.
func (c *Config) UseColor(terminal bool) bool {
	switch c.Color {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	return terminal
}

func invalid(field string, v any, detail string) error {
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Path(field).Value(v).Detail("%s", detail).Build()
}
