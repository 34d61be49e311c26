package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Load reads a YAML configuration document. Field names the current version
// does not know are reported as diagnostics, one per field, while the known
// fields still load; this keeps older code able to read documents written by
// newer versions. The loaded tree is validated before it is returned.
func Load(r io.Reader) (Config, []string, error) {
	var cfg Config

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	err := dec.Decode(&cfg)
	if err == io.EOF {
		// An empty document is a valid everything-disabled config.
		return Config{}, nil, nil
	}

	var diags []string
	if err != nil {
		// yaml.v3 collects unknown-field violations in a TypeError and still
		// decodes the fields it does know.
		diags = unknownFieldDiagnostics(err)
		if diags == nil {
			return Config{}, nil, fmt.Errorf("failed to decode config document: %w", err)
		}
		for _, d := range diags {
			logrus.WithFields(logrus.Fields{
				"function": "config.Load",
				"field":    d,
			}).Warn("Unknown field in config document")
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, diags, fmt.Errorf("invalid config document: %w", err)
	}
	return cfg, diags, nil
}

// unknownFieldDiagnostics returns the per-field messages when every entry in
// the error is an unknown-field violation, or nil when the error carries
// anything else and must fail the load.
func unknownFieldDiagnostics(err error) []string {
	typeErr, ok := err.(*yaml.TypeError)
	if !ok || len(typeErr.Errors) == 0 {
		return nil
	}
	diags := make([]string, 0, len(typeErr.Errors))
	for _, msg := range typeErr.Errors {
		if !strings.Contains(msg, "not found in type") {
			return nil
		}
		diags = append(diags, msg)
	}
	return diags
}

// LoadFile reads a YAML configuration document from disk.
func LoadFile(path string) (Config, []string, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	cfg, diags, err := Load(f)
	if err != nil {
		return Config{}, nil, fmt.Errorf("failed to load %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function":    "config.LoadFile",
		"path":        path,
		"diagnostics": len(diags),
	}).Debug("Config document loaded")
	return cfg, diags, nil
}

// Save writes the tree as a YAML document. Disabled submodules are omitted
// entirely, so a round trip through Save and Load preserves which features
// are enabled.
func Save(w io.Writer, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("refusing to save invalid config: %w", err)
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&cfg); err != nil {
		return fmt.Errorf("failed to encode config document: %w", err)
	}
	return enc.Close()
}

// SaveFile writes the tree as a YAML document to disk.
func SaveFile(path string, cfg Config) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := Save(f, cfg); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
