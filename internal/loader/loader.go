// Package loader reads verification suites from JSON, YAML, TOML or Markdown
// files and serves the artifacts and schemas they reference from disk.
package loader

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/pendergraft/integrity-verifier/internal/chains"
	"github.com/pendergraft/integrity-verifier/internal/verification/domain"
)

// Errors returned while loading a suite
var (
	ErrUnsupportedFormat = errors.New("unsupported config format")
	ErrMissingEnv        = errors.New("undefined environment variable")
)

// Format is a suite file syntax
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatMarkdown Format = "markdown"
)

// DetectFormat picks the format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".md", ".markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
}

// Config is a loaded suite and where it came from. Relative artifact and
// schema paths resolve against Dir.
type Config struct {
	Suite  *domain.Suite
	Path   string
	Dir    string
	Format Format
}

// Source returns a FileSource rooted at the config directory
func (c *Config) Source() *FileSource {
	return NewFileSource(c.Dir)
}

// Load reads and parses a suite file
func Load(path string) (*Config, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	suite, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if suite.Name == "" {
		suite.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &Config{Suite: suite, Path: abs, Dir: filepath.Dir(abs), Format: format}, nil
}

// Parse expands ${VAR} placeholders, decodes data and fills in the
// well-known chains the suite references but does not declare
func Parse(data []byte, format Format) (*domain.Suite, error) {
	expanded, err := ExpandEnv(data, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	var suite domain.Suite
	switch format {
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(expanded))
		dec.UseNumber()
		if err := dec.Decode(&suite); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
		domain.NormalizeNumbers(&suite)
	case FormatYAML:
		if err := yaml.Unmarshal(expanded, &suite); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(expanded), &suite); err != nil {
			return nil, fmt.Errorf("parsing TOML: %w", err)
		}
	case FormatMarkdown:
		md, err := ParseMarkdown(expanded)
		if err != nil {
			return nil, err
		}
		suite = *md
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	domain.ApplyDefaultChains(&suite, chains.DefaultRegistry())
	return &suite, nil
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ExpandEnv replaces ${VAR} with its value. Bare $VAR is left alone so
// placeholders such as __$hash$__ survive. Undefined variables are an error.
func ExpandEnv(data []byte, lookup func(string) (string, bool)) ([]byte, error) {
	missing := make(map[string]bool)
	out := envPattern.ReplaceAllFunc(data, func(m []byte) []byte {
		name := string(envPattern.FindSubmatch(m)[1])
		v, ok := lookup(name)
		if !ok {
			missing[name] = true
			return m
		}
		return []byte(v)
	})
	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for n := range missing {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("%w: %s", ErrMissingEnv, strings.Join(names, ", "))
	}
	return out, nil
}
