package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"

	"github.com/barnettlynn/mfcrack/pkg/mifare"
)

type ValidationMode int

const (
	ValidationFull ValidationMode = iota
	ValidationEmulator
)

const (
	FormatHex     = "hex"
	FormatFlipper = "flipper"
)

type Config struct {
	Dictionary DictionaryConfig `yaml:"dictionary"`
	Solver     SolverConfig     `yaml:"solver"`
	Output     OutputConfig     `yaml:"output"`
	Runtime    RuntimeConfig    `yaml:"runtime"`
}

type DictionaryConfig struct {
	File      string   `yaml:"file,omitempty"`
	ExtraKeys []string `yaml:"extra_keys,omitempty"`
}

type SolverConfig struct {
	Command        []string `yaml:"command,omitempty"`
	TimeoutSeconds *int     `yaml:"timeout_seconds,omitempty"`
}

type OutputConfig struct {
	DumpFile       string `yaml:"dump_file,omitempty"`
	Format         string `yaml:"format,omitempty"`
	KeysFile       string `yaml:"keys_file,omitempty"`
	CaptureArchive string `yaml:"capture_archive,omitempty"`
}

type RuntimeConfig struct {
	ReaderIndex *int   `yaml:"reader_index"`
	PRNG        string `yaml:"prng,omitempty"`
	Progress    *bool  `yaml:"progress,omitempty"`
}

func Load(path string) (*Config, error) {
	return LoadWithMode(path, ValidationFull)
}

func LoadWithMode(path string, mode ValidationMode) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(content))
	dec.KnownFields(true)

	var cfg Config
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	if err := cfg.resolvePaths(path); err != nil {
		return nil, err
	}
	if err := cfg.ValidateWithMode(mode); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	return c.ValidateWithMode(ValidationFull)
}

func (c *Config) ValidateWithMode(mode ValidationMode) error {
	if err := c.validateCommon(); err != nil {
		return err
	}

	switch mode {
	case ValidationEmulator:
		return nil
	case ValidationFull:
		if c.Runtime.ReaderIndex == nil {
			return fmt.Errorf("config.runtime.reader_index is required")
		}
		if *c.Runtime.ReaderIndex < 0 {
			return fmt.Errorf("config.runtime.reader_index must be >= 0")
		}
		return nil
	default:
		return fmt.Errorf("unsupported validation mode: %d", mode)
	}
}

func (c *Config) validateCommon() error {
	if strings.TrimSpace(c.Dictionary.File) != "" {
		if err := validateReadableFile(c.Dictionary.File, "config.dictionary.file"); err != nil {
			return err
		}
	}
	for i, k := range c.Dictionary.ExtraKeys {
		if _, err := mifare.ParseKey(k); err != nil {
			return fmt.Errorf("config.dictionary.extra_keys[%d]: %w", i, err)
		}
	}

	if c.Solver.TimeoutSeconds != nil && *c.Solver.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.solver.timeout_seconds must be > 0")
	}

	switch c.Output.Format {
	case "":
		c.Output.Format = FormatHex
	case FormatHex, FormatFlipper:
	default:
		return fmt.Errorf("config.output.format must be %q or %q", FormatHex, FormatFlipper)
	}

	if c.Runtime.PRNG != "" && c.Runtime.PRNG != "auto" {
		if _, err := mifare.ParsePRNGType(c.Runtime.PRNG); err != nil {
			return fmt.Errorf("config.runtime.prng: %w", err)
		}
	}
	return nil
}

// PRNGOverride returns the configured PRNG classification, if any.
func (c *Config) PRNGOverride() (mifare.PRNGType, bool) {
	if c.Runtime.PRNG == "" || c.Runtime.PRNG == "auto" {
		return mifare.PRNGUnknown, false
	}
	p, err := mifare.ParsePRNGType(c.Runtime.PRNG)
	return p, err == nil
}

// ExtraKeys returns the parsed extra dictionary keys.
func (c *Config) ExtraKeys() []mifare.Key {
	keys := make([]mifare.Key, 0, len(c.Dictionary.ExtraKeys))
	for _, s := range c.Dictionary.ExtraKeys {
		if k, err := mifare.ParseKey(s); err == nil {
			keys = append(keys, k)
		}
	}
	return keys
}

func (c *Config) resolvePaths(configPath string) error {
	configDir := filepath.Dir(configPath)
	for _, p := range []*string{
		&c.Dictionary.File,
		&c.Output.DumpFile,
		&c.Output.KeysFile,
		&c.Output.CaptureArchive,
	} {
		resolved, err := resolvePath(configDir, *p)
		if err != nil {
			return err
		}
		*p = resolved
	}
	return nil
}

func resolvePath(baseDir, path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(trimmed)
	if err != nil {
		return "", fmt.Errorf("expand %q: %w", trimmed, err)
	}
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Clean(filepath.Join(baseDir, expanded)), nil
}

func validateReadableFile(path string, field string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s must point to a file, got directory", field)
	}
	return nil
}
