package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

/* =========================
   Strict load + validate
   ========================= */

// LoadConsole reads a console settings file on top of the defaults. Files
// ending in .yaml or .yml are YAML, everything else is JSON with comments.
// Unknown fields are rejected in both formats.
func LoadConsole(path string) (*Console, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return decodeConsoleYAML(raw)
	default:
		return decodeConsoleJSON(raw)
	}
}

func decodeConsoleJSON(raw []byte) (*Console, error) {
	dec := json.NewDecoder(bytes.NewReader(stripJSONComments(raw)))
	dec.DisallowUnknownFields()

	cfg := DefaultConsole()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func decodeConsoleYAML(raw []byte) (*Console, error) {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	cfg := DefaultConsole()
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// LoadRemote reads a service configuration (JSON with comments) used to seed
// the simulator.
func LoadRemote(path string) (*Remote, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(stripJSONComments(raw)))
	dec.DisallowUnknownFields()

	cfg := DefaultRemote()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

/* =========================
   Comment stripping + utils
   ========================= */

// Only whole-line // comments are removed so URLs inside strings survive.
var (
	lineComments  = regexp.MustCompile(`(?m)^[ \t]*//[^\n\r]*`)
	blockComments = regexp.MustCompile(`(?s)/\*.*?\*/`)
)

func stripJSONComments(in []byte) []byte {
	out := blockComments.ReplaceAll(in, nil)
	return lineComments.ReplaceAll(out, nil)
}

// small multi-error
type multiErr []string

func (m *multiErr) add(s string)            { *m = append(*m, s) }
func (m *multiErr) addf(f string, a ...any) { *m = append(*m, fmt.Sprintf(f, a...)) }
func (m multiErr) Error() string            { return "validation errors: " + strings.Join(m, "; ") }
