package config

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"github.com/valkyrie-scanner/valkyrie/internal/detectors"
	"github.com/valkyrie-scanner/valkyrie/internal/engine"
	"github.com/valkyrie-scanner/valkyrie/internal/logging"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// ErrNotFound is returned by LoadLocal and LoadGlobal when no file exists.
var ErrNotFound = errors.New("no config file")

// LocalNames are the repo-local config file names, in search order.
var LocalNames = []string{".valkyrie.yml", ".valkyrie.yaml", "valkyrie.yml", "valkyrie.yaml"}

// FileConfig is the on-disk YAML configuration. Unset scalars are nil so that
// files can be layered with Merge.
type FileConfig struct {
	Scanner ScannerConfig  `yaml:"scanner" json:"scanner"`
	Rules   RulesConfig    `yaml:"rules" json:"rules"`
	Plugins []PluginConfig `yaml:"plugins" json:"plugins,omitempty"`
	Output  OutputConfig   `yaml:"output" json:"output"`
	Logging LoggingConfig  `yaml:"logging" json:"logging"`

	// Dir is the directory of the file this config was read from. A relative
	// target_path is resolved against it.
	Dir string `yaml:"-" json:"-"`
}

type ScannerConfig struct {
	TargetPath        *string  `yaml:"target_path" json:"target_path,omitempty"`
	IncludePatterns   []string `yaml:"include_patterns" json:"include_patterns,omitempty"`
	ExcludePatterns   []string `yaml:"exclude_patterns" json:"exclude_patterns,omitempty"`
	MaxFileSize       *int64   `yaml:"max_file_size" json:"max_file_size,omitempty"`
	ParallelWorkers   *int     `yaml:"parallel_workers" json:"parallel_workers,omitempty"`
	RuleFilters       []string `yaml:"rule_filters" json:"rule_filters,omitempty"`
	SeverityThreshold *string  `yaml:"severity_threshold" json:"severity_threshold,omitempty"`
	DiffOnly          *bool    `yaml:"diff_only" json:"diff_only,omitempty"`
	FailOnFindings    *bool    `yaml:"fail_on_findings" json:"fail_on_findings,omitempty"`
	FileTimeout       *string  `yaml:"file_timeout" json:"file_timeout,omitempty"`
}

type RulesConfig struct {
	LocalRulesDir *string `yaml:"local_rules_dir" json:"local_rules_dir,omitempty"`
	// IncludeRules is merged into the scan's rule allowlist.
	IncludeRules []string `yaml:"include_rules" json:"include_rules,omitempty"`
	ExcludeRules []string `yaml:"exclude_rules" json:"exclude_rules,omitempty"`
	// Categories maps a category name to whether its rules run.
	Categories map[string]bool `yaml:"categories" json:"categories,omitempty"`
}

type PluginConfig struct {
	Name    string         `yaml:"name" json:"name"`
	Enabled *bool          `yaml:"enabled" json:"enabled,omitempty"`
	Config  map[string]any `yaml:"config" json:"config,omitempty"`
}

type OutputConfig struct {
	Format   *string `yaml:"format" json:"format,omitempty"`
	File     *string `yaml:"file" json:"file,omitempty"`
	Audit    *bool   `yaml:"audit" json:"audit,omitempty"`
	Baseline *string `yaml:"baseline" json:"baseline,omitempty"`
}

type LoggingConfig struct {
	Level  *string `yaml:"level" json:"level,omitempty"`
	Format *string `yaml:"format" json:"format,omitempty"`
	File   *string `yaml:"file" json:"file,omitempty"`
}

//go:embed schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = jsonschema.CompileString("valkyrie-config.json", schemaJSON)
	})
	return schema, schemaErr
}

// Parse validates a YAML (or JSON) document against the configuration schema
// and decodes it. Unknown keys and wrongly typed values are config errors.
func Parse(data []byte) (FileConfig, error) {
	var cfg FileConfig
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return cfg, scanerr.Config("parse", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// The schema validator works on JSON values.
	b, err := json.Marshal(doc)
	if err != nil {
		return cfg, scanerr.Config("parse", err)
	}
	var jv any
	if err := json.Unmarshal(b, &jv); err != nil {
		return cfg, scanerr.Config("parse", err)
	}
	s, err := compiledSchema()
	if err != nil {
		return cfg, scanerr.Config("schema", err)
	}
	if err := s.Validate(jv); err != nil {
		return cfg, scanerr.Config("validate", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, scanerr.Config("decode", err)
	}
	return cfg, nil
}

// LoadFile reads and validates a config file.
func LoadFile(path string) (FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return FileConfig{}, scanerr.Config("read "+path, err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if abs, err := filepath.Abs(filepath.Dir(path)); err == nil {
		cfg.Dir = abs
	} else {
		cfg.Dir = filepath.Dir(path)
	}
	return cfg, nil
}

// LocalPath returns the first repo-local config file present in root.
func LocalPath(root string) (string, bool) {
	for _, name := range LocalNames {
		p := filepath.Join(root, name)
		if st, err := os.Stat(p); err == nil && !st.IsDir() {
			return p, true
		}
	}
	return "", false
}

// LoadLocal loads the repo-local config file in root.
func LoadLocal(root string) (FileConfig, error) {
	p, ok := LocalPath(root)
	if !ok {
		return FileConfig{}, ErrNotFound
	}
	return LoadFile(p)
}

// GlobalPath returns $XDG_CONFIG_HOME/valkyrie/config.yml, falling back to
// ~/.config.
func GlobalPath() (string, error) {
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, _ := os.UserHomeDir()
		if home != "" {
			base = filepath.Join(home, ".config")
		}
	}
	if base == "" {
		return "", errors.New("no config dir")
	}
	return filepath.Join(base, "valkyrie", "config.yml"), nil
}

// LoadGlobal loads the user-wide config file.
func LoadGlobal() (FileConfig, error) {
	p, err := GlobalPath()
	if err != nil {
		return FileConfig{}, ErrNotFound
	}
	if _, err := os.Stat(p); err != nil {
		return FileConfig{}, ErrNotFound
	}
	return LoadFile(p)
}

// Merge returns base overlaid with every value set in over.
func Merge(base, over FileConfig) FileConfig {
	out := base
	s, o := &out.Scanner, over.Scanner
	if o.TargetPath != nil {
		s.TargetPath = o.TargetPath
		out.Dir = over.Dir
	}
	pick(&s.IncludePatterns, o.IncludePatterns)
	pick(&s.ExcludePatterns, o.ExcludePatterns)
	pickPtr(&s.MaxFileSize, o.MaxFileSize)
	pickPtr(&s.ParallelWorkers, o.ParallelWorkers)
	pick(&s.RuleFilters, o.RuleFilters)
	pickPtr(&s.SeverityThreshold, o.SeverityThreshold)
	pickPtr(&s.DiffOnly, o.DiffOnly)
	pickPtr(&s.FailOnFindings, o.FailOnFindings)
	pickPtr(&s.FileTimeout, o.FileTimeout)

	r, or := &out.Rules, over.Rules
	pickPtr(&r.LocalRulesDir, or.LocalRulesDir)
	pick(&r.IncludeRules, or.IncludeRules)
	pick(&r.ExcludeRules, or.ExcludeRules)
	if len(or.Categories) > 0 {
		cats := map[string]bool{}
		for k, v := range r.Categories {
			cats[k] = v
		}
		for k, v := range or.Categories {
			cats[k] = v
		}
		r.Categories = cats
	}
	if over.Plugins != nil {
		out.Plugins = over.Plugins
	}

	pickPtr(&out.Output.Format, over.Output.Format)
	pickPtr(&out.Output.File, over.Output.File)
	pickPtr(&out.Output.Audit, over.Output.Audit)
	pickPtr(&out.Output.Baseline, over.Output.Baseline)

	pickPtr(&out.Logging.Level, over.Logging.Level)
	pickPtr(&out.Logging.Format, over.Logging.Format)
	pickPtr(&out.Logging.File, over.Logging.File)
	return out
}

func pick(dst *[]string, v []string) {
	if v != nil {
		*dst = v
	}
}

func pickPtr[T any](dst **T, v *T) {
	if v != nil {
		*dst = v
	}
}

// EngineConfig converts the scanner and rules sections into an engine.Config
// rooted at root. A target_path in the file overrides root; relative paths
// are resolved against Dir.
func (fc FileConfig) EngineConfig(root string) (engine.Config, error) {
	if fc.Scanner.TargetPath != nil {
		root = *fc.Scanner.TargetPath
		if !filepath.IsAbs(root) && fc.Dir != "" {
			root = filepath.Join(fc.Dir, root)
		}
	}
	cfg := engine.DefaultConfig(root)
	s := fc.Scanner
	if s.IncludePatterns != nil {
		cfg.IncludeGlobs = s.IncludePatterns
	}
	if s.ExcludePatterns != nil {
		cfg.ExcludeGlobs = s.ExcludePatterns
	}
	if s.MaxFileSize != nil {
		cfg.MaxBytes = *s.MaxFileSize
	}
	if s.ParallelWorkers != nil {
		cfg.Threads = *s.ParallelWorkers
	}
	cfg.RuleFilters = append(append([]string(nil), s.RuleFilters...), fc.Rules.IncludeRules...)
	if s.SeverityThreshold != nil {
		sev, err := types.ParseSeverity(*s.SeverityThreshold)
		if err != nil {
			return cfg, scanerr.Config("severity_threshold", err)
		}
		cfg.SeverityThreshold = sev
	}
	if s.DiffOnly != nil {
		cfg.DiffOnly = *s.DiffOnly
	}
	if s.FailOnFindings != nil {
		cfg.FailOnFindings = *s.FailOnFindings
	}
	if s.FileTimeout != nil {
		d, err := time.ParseDuration(*s.FileTimeout)
		if err != nil {
			return cfg, scanerr.Config("file_timeout", err)
		}
		cfg.FileTimeout = d
	}
	cfg.DisabledRules = append([]string(nil), fc.Rules.ExcludeRules...)
	names := make([]string, 0, len(fc.Rules.Categories))
	for name := range fc.Rules.Categories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if fc.Rules.Categories[name] {
			continue
		}
		cat, err := types.ParseCategory(name)
		if err != nil {
			return cfg, scanerr.Config("rules.categories", err)
		}
		cfg.DisabledCategories = append(cfg.DisabledCategories, cat)
	}
	return cfg, nil
}

// PluginSettings converts the plugins section. Plugins default to enabled.
func (fc FileConfig) PluginSettings() []detectors.Setting {
	out := make([]detectors.Setting, 0, len(fc.Plugins))
	for _, p := range fc.Plugins {
		enabled := true
		if p.Enabled != nil {
			enabled = *p.Enabled
		}
		out = append(out, detectors.Setting{Name: p.Name, Enabled: enabled, Config: p.Config})
	}
	return out
}

// LoggingOptions converts the logging section.
func (fc FileConfig) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  deref(fc.Logging.Level),
		Format: deref(fc.Logging.Format),
		File:   deref(fc.Logging.File),
	}
}

// RulesDir returns the local rules directory, resolved against Dir, or "".
func (fc FileConfig) RulesDir() string {
	d := deref(fc.Rules.LocalRulesDir)
	if d != "" && !filepath.IsAbs(d) && fc.Dir != "" {
		d = filepath.Join(fc.Dir, d)
	}
	return d
}

// OutputFormat returns the configured output format, sarif by default.
func (fc FileConfig) OutputFormat() string {
	if f := strings.TrimSpace(deref(fc.Output.Format)); f != "" {
		return f
	}
	return "sarif"
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
