package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

func writeTemp(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return p
}

func TestLoadFile_Basic(t *testing.T) {
	dir := t.TempDir()
	p := writeTemp(t, dir, "valkyrie.yaml", `scanner:
  parallel_workers: 4
  max_file_size: 123
  diff_only: true
  file_timeout: 5s
`)
	cfg, err := LoadFile(p)
	require.NoError(t, err)
	require.NotNil(t, cfg.Scanner.ParallelWorkers)
	assert.Equal(t, 4, *cfg.Scanner.ParallelWorkers)
	require.NotNil(t, cfg.Scanner.MaxFileSize)
	assert.Equal(t, int64(123), *cfg.Scanner.MaxFileSize)
	require.NotNil(t, cfg.Scanner.DiffOnly)
	assert.True(t, *cfg.Scanner.DiffOnly)
	require.NotNil(t, cfg.Scanner.FileTimeout)
	assert.Equal(t, "5s", *cfg.Scanner.FileTimeout)
	assert.Equal(t, dir, cfg.Dir)
}

func TestParse_RejectsUnknownAndMistyped(t *testing.T) {
	cases := map[string]string{
		"unknown top-level":   "scannr:\n  parallel_workers: 2\n",
		"unknown nested":      "scanner:\n  workers: 2\n",
		"wrong type":          "scanner:\n  parallel_workers: many\n",
		"zero workers":        "scanner:\n  parallel_workers: 0\n",
		"bad severity":        "scanner:\n  severity_threshold: urgent\n",
		"bad format":          "output:\n  format: xml\n",
		"plugin without name": "plugins:\n  - enabled: true\n",
		"bad timeout":         "scanner:\n  file_timeout: soon\n",
		"not yaml":            "scanner: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			require.Error(t, err)
			assert.True(t, errors.Is(err, scanerr.ErrConfig), "%v", err)
		})
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Nil(t, cfg.Scanner.ParallelWorkers)
}

func TestTemplateIsValid(t *testing.T) {
	cfg, err := Parse([]byte(Template))
	require.NoError(t, err)
	assert.Len(t, cfg.Plugins, 3)
	assert.Equal(t, "sarif", cfg.OutputFormat())
}

func TestLoadLocal_PrefersDotfile(t *testing.T) {
	dir := t.TempDir()
	// place both, expect the dotfile to be picked first by search order
	writeTemp(t, dir, "valkyrie.yaml", "scanner:\n  parallel_workers: 1\n")
	writeTemp(t, dir, ".valkyrie.yaml", "scanner:\n  parallel_workers: 7\n")
	cfg, err := LoadLocal(dir)
	require.NoError(t, err)
	require.NotNil(t, cfg.Scanner.ParallelWorkers)
	assert.Equal(t, 7, *cfg.Scanner.ParallelWorkers)
}

func TestLoadLocal_NoConfig(t *testing.T) {
	_, err := LoadLocal(t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadGlobal_XDG_Config(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "valkyrie")
	require.NoError(t, os.MkdirAll(cfgDir, 0o755))
	writeTemp(t, cfgDir, "config.yml", "scanner:\n  parallel_workers: 9\n")
	t.Setenv("XDG_CONFIG_HOME", dir)
	cfg, err := LoadGlobal()
	require.NoError(t, err)
	require.NotNil(t, cfg.Scanner.ParallelWorkers)
	assert.Equal(t, 9, *cfg.Scanner.ParallelWorkers)
}

func TestLoadGlobal_NoConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", "")
	// Simulate no HOME as well by clearing HOME; LoadGlobal should error
	t.Setenv("HOME", "")
	_, err := LoadGlobal()
	assert.Error(t, err)
}

func TestMerge(t *testing.T) {
	global, err := Parse([]byte(`scanner:
  parallel_workers: 2
  severity_threshold: medium
rules:
  categories: {secrets: false, iam_config: false}
logging:
  level: info
`))
	require.NoError(t, err)
	local, err := Parse([]byte(`scanner:
  parallel_workers: 8
rules:
  categories: {secrets: true}
`))
	require.NoError(t, err)

	m := Merge(global, local)
	assert.Equal(t, 8, *m.Scanner.ParallelWorkers)
	assert.Equal(t, "medium", *m.Scanner.SeverityThreshold)
	assert.Equal(t, "info", *m.Logging.Level)
	assert.Equal(t, map[string]bool{"secrets": true, "iam_config": false}, m.Rules.Categories)
	// base is untouched
	assert.Equal(t, 2, *global.Scanner.ParallelWorkers)
	assert.False(t, global.Rules.Categories["secrets"])
}

func TestEngineConfig(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "src"), 0o755))
	p := writeTemp(t, dir, ".valkyrie.yml", `scanner:
  target_path: src
  include_patterns: ["**/*.go"]
  max_file_size: 2048
  parallel_workers: 2
  rule_filters: [secrets-001]
  severity_threshold: HIGH
  fail_on_findings: false
  file_timeout: 250ms
rules:
  include_rules: [deps-001]
  exclude_rules: [iam-001]
  categories:
    secrets: true
    dependencies: false
`)
	fc, err := LoadFile(p)
	require.NoError(t, err)
	cfg, err := fc.EngineConfig("/ignored")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "src"), cfg.Root)
	assert.Equal(t, []string{"**/*.go"}, cfg.IncludeGlobs)
	assert.NotEmpty(t, cfg.ExcludeGlobs)
	assert.Equal(t, int64(2048), cfg.MaxBytes)
	assert.Equal(t, 2, cfg.Threads)
	assert.Equal(t, []string{"secrets-001", "deps-001"}, cfg.RuleFilters)
	assert.Equal(t, types.SevHigh, cfg.SeverityThreshold)
	assert.False(t, cfg.FailOnFindings)
	assert.Equal(t, 250*time.Millisecond, cfg.FileTimeout)
	assert.Equal(t, []string{"iam-001"}, cfg.DisabledRules)
	assert.Equal(t, []types.Category{types.CatDependencies}, cfg.DisabledCategories)
	require.NoError(t, cfg.Validate())
}

func TestEngineConfig_Defaults(t *testing.T) {
	cfg, err := FileConfig{}.EngineConfig("/repo")
	require.NoError(t, err)
	assert.Equal(t, "/repo", cfg.Root)
	assert.Equal(t, int64(10*1024*1024), cfg.MaxBytes)
	assert.Equal(t, 4, cfg.Threads)
	assert.Equal(t, types.SevLow, cfg.SeverityThreshold)
	assert.True(t, cfg.FailOnFindings)
	assert.Empty(t, cfg.RuleFilters)
}

func TestPluginSettingsAndHelpers(t *testing.T) {
	fc, err := Parse([]byte(`plugins:
  - name: vulnera
    config: {skip_dev: true}
  - name: iam-scanner
    enabled: false
rules:
  local_rules_dir: custom-rules
logging:
  level: debug
  format: json
`))
	require.NoError(t, err)
	fc.Dir = "/etc/valkyrie"

	ps := fc.PluginSettings()
	require.Len(t, ps, 2)
	assert.Equal(t, "vulnera", ps[0].Name)
	assert.True(t, ps[0].Enabled)
	assert.Equal(t, true, ps[0].Config["skip_dev"])
	assert.False(t, ps[1].Enabled)

	assert.Equal(t, filepath.Join("/etc/valkyrie", "custom-rules"), fc.RulesDir())
	lo := fc.LoggingOptions()
	assert.Equal(t, "debug", lo.Level)
	assert.Equal(t, "json", lo.Format)
}
