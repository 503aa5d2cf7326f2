package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/valkyrie-scanner/valkyrie/internal/plugin"
	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// funcRule adapts a function into a rule.
type funcRule struct {
	rules.Base
	scan func(ctx context.Context, path, content string) ([]types.Finding, error)
}

func (r funcRule) Scan(ctx context.Context, path, content string) ([]types.Finding, error) {
	return r.scan(ctx, path, content)
}

func meta(id string, sev types.Severity, cat types.Category) types.RuleMetadata {
	return types.RuleMetadata{ID: id, Name: id, Category: cat, Severity: sev, Version: "1.0.0", Enabled: true}
}

// tokenRule reports every line containing token.
func tokenRule(id, token string, sev types.Severity) rules.Rule {
	return funcRule{
		Base: rules.Base{Meta: meta(id, sev, types.CatCustom)},
		scan: func(_ context.Context, path, content string) ([]types.Finding, error) {
			var out []types.Finding
			for i, line := range strings.Split(content, "\n") {
				if col := strings.Index(line, token); col >= 0 {
					out = append(out, types.Finding{
						ID:       types.FindingID(path, id, line),
						Title:    "token",
						Severity: sev,
						Category: types.CatCustom,
						RuleID:   id,
						Location: types.Location{FilePath: path, Line: i + 1, ColumnStart: col, ColumnEnd: col + len(token)},
					})
				}
			}
			return out, nil
		},
	}
}

type staticPlugin struct {
	rules    []rules.Rule
	rulesErr error
}

func (p *staticPlugin) Name() string                                     { return "static" }
func (p *staticPlugin) Version() string                                  { return "1.0.0" }
func (p *staticPlugin) Initialize(context.Context, map[string]any) error { return nil }
func (p *staticPlugin) Cleanup(context.Context) error                    { return nil }

func (p *staticPlugin) Rules(context.Context) ([]rules.Rule, error) {
	return p.rules, p.rulesErr
}

func newScanner(t *testing.T, rs ...rules.Rule) *Scanner {
	t.Helper()
	reg := plugin.NewRegistry(nil)
	require.NoError(t, reg.Register(context.Background(), &staticPlugin{rules: rs}, nil))
	return New(reg)
}

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return root
}

func rels(t *testing.T, root string, paths []string) []string {
	t.Helper()
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		r, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out = append(out, filepath.ToSlash(r))
	}
	return out
}

func TestValidate(t *testing.T) {
	root := t.TempDir()
	file := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	cases := map[string]Config{
		"empty root":       {},
		"missing root":     {Root: filepath.Join(root, "nope")},
		"root is file":     {Root: file},
		"negative threads": {Root: root, Threads: -1},
		"negative size":    {Root: root, MaxBytes: -5},
		"negative timeout": {Root: root, FileTimeout: -time.Second},
		"bad glob":         {Root: root, IncludeGlobs: []string{"[a-"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorIs(t, err, scanerr.ErrConfig)
		})
	}
	assert.NoError(t, DefaultConfig(root).Validate())
}

func TestSelect_IncludeExcludeDedupeSize(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"main.go":               "package main",
		"docs/readme.txt":       "hello",
		"node_modules/lib/x.js": "module.exports = 1",
		".git/config":           "[core]",
		"big.bin":               strings.Repeat("a", 100),
		"pkg/__pycache__/m.pyc": "bytes",
	})
	cfg := DefaultConfig(root)
	cfg.IncludeGlobs = []string{"**/*.go", "**/*"}
	cfg.MaxBytes = 50

	files, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "docs/readme.txt"}, rels(t, root, files))
}

func TestSelect_IncludeRestricts(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.py":     "x",
		"b/c.py":   "y",
		"b/d.json": "{}",
	})
	cfg := DefaultConfig(root)
	cfg.IncludeGlobs = []string{"**/*.py"}

	files, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.py", "b/c.py"}, rels(t, root, files))
}

func TestSelect_IgnoreFile(t *testing.T) {
	root := writeFiles(t, map[string]string{
		".valkyrieignore":  "# fixtures\nfixtures/\n*.log\n",
		"app.py":           "x",
		"fixtures/key.pem": "secret",
		"debug.log":        "trace",
	})
	cfg := DefaultConfig(root)
	files, err := Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	got := rels(t, root, files)
	assert.Contains(t, got, "app.py")
	assert.NotContains(t, got, "fixtures/key.pem")
	assert.NotContains(t, got, "debug.log")

	cfg.IgnoreFile = false
	files, err = Select(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Contains(t, rels(t, root, files), "debug.log")
}

func TestSelect_Cancelled(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "x"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Select(ctx, DefaultConfig(root), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestScan_InvalidConfigReturnsError(t *testing.T) {
	s := newScanner(t)
	_, err := s.Scan(context.Background(), Config{Root: filepath.Join(t.TempDir(), "missing")})
	assert.ErrorIs(t, err, scanerr.ErrConfig)
}

func TestScan_NoRulesCompletes(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "token"})
	res, err := New(plugin.NewRegistry(nil)).Scan(context.Background(), DefaultConfig(root))
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Empty(t, res.Findings)
	assert.NotNil(t, res.Findings)
	assert.Len(t, res.ScannedFiles, 1)
	assert.NotEmpty(t, res.ScanID)
}

func TestScan_FindsAndExcludes(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"a.txt":              "line\nTOKEN here\n",
		"node_modules/b.txt": "TOKEN",
		"sub/c.txt":          "nothing",
	})
	s := newScanner(t, tokenRule("tok-001", "TOKEN", types.SevHigh))
	res, err := s.Scan(context.Background(), DefaultConfig(root))
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, res.Status)
	require.Len(t, res.Findings, 1)
	f := res.Findings[0]
	assert.Equal(t, filepath.Join(root, "a.txt"), f.Location.FilePath)
	assert.Equal(t, 2, f.Location.Line)
	assert.Equal(t, 0, f.Location.ColumnStart)
	assert.ElementsMatch(t, []string{"a.txt", "sub/c.txt"}, rels(t, root, res.ScannedFiles))
	assert.True(t, res.HasBlockingIssues())
}

func TestScan_RuleFailureIsolated(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "TOKEN", "b.txt": "TOKEN"})
	failing := funcRule{
		Base: rules.Base{Meta: meta("fail-001", types.SevHigh, types.CatCustom)},
		scan: func(context.Context, string, string) ([]types.Finding, error) {
			return nil, errors.New("boom")
		},
	}
	panicking := funcRule{
		Base: rules.Base{Meta: meta("panic-001", types.SevHigh, types.CatCustom)},
		scan: func(context.Context, string, string) ([]types.Finding, error) {
			panic("kaboom")
		},
	}
	core, logs := observer.New(zap.ErrorLevel)
	reg := plugin.NewRegistry(nil)
	require.NoError(t, reg.Register(context.Background(), &staticPlugin{rules: []rules.Rule{
		failing, panicking, tokenRule("tok-001", "TOKEN", types.SevHigh),
	}}, nil))

	res, err := New(reg, WithLogger(zap.New(core))).Scan(context.Background(), DefaultConfig(root))
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Len(t, res.Findings, 2)
	assert.Equal(t, 4, res.RuleFailures)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 4, logs.FilterMessage("rule failed").Len())
}

func TestScan_RuleLoadFailureFails(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "x"})
	reg := plugin.NewRegistry(nil)
	require.NoError(t, reg.Register(context.Background(), &staticPlugin{rulesErr: errors.New("db gone")}, nil))

	res, err := New(reg).Scan(context.Background(), DefaultConfig(root))
	require.NoError(t, err)
	assert.Equal(t, types.StatusFailed, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "db gone")
	assert.Empty(t, res.ScannedFiles)
}

func TestScanFile_ReadError(t *testing.T) {
	s := New(plugin.NewRegistry(nil))
	missing := filepath.Join(t.TempDir(), "gone.txt")
	out := s.scanFile(context.Background(), DefaultConfig(t.TempDir()), missing, nil)
	assert.True(t, out.attempted)
	require.Error(t, out.err)
	assert.ErrorIs(t, out.err, scanerr.ErrRead)
	assert.Contains(t, out.err.Error(), missing)
}

func TestScan_Filters(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "AAA BBB CCC DDD"})
	disabled := tokenRule("off-001", "AAA", types.SevHigh).(funcRule)
	disabled.Meta.Enabled = false
	iam := tokenRule("iam-001", "DDD", types.SevHigh).(funcRule)
	iam.Meta.Category = types.CatIAMConfig
	s := newScanner(t,
		disabled,
		tokenRule("low-001", "BBB", types.SevInfo),
		tokenRule("high-001", "CCC", types.SevHigh),
		iam,
	)
	ids := func(res types.ScanResult) []string {
		var out []string
		for _, f := range res.Findings {
			out = append(out, f.RuleID)
		}
		return out
	}

	cfg := DefaultConfig(root)
	res, err := s.Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"high-001", "iam-001"}, ids(res), "threshold low drops info, disabled never runs")

	cfg.SeverityThreshold = types.SevInfo
	cfg.RuleFilters = []string{"low-001", "off-001"}
	res, err = s.Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, []string{"low-001"}, ids(res))

	cfg = DefaultConfig(root)
	cfg.DisabledRules = []string{"high-001"}
	cfg.DisabledCategories = []types.Category{types.CatIAMConfig}
	res, err = s.Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Empty(t, ids(res))
}

func TestScan_FileTimeout(t *testing.T) {
	root := writeFiles(t, map[string]string{"slow.txt": "x", "fast.md": "TOKEN"})
	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	slow := funcRule{
		Base: rules.Base{Meta: meta("slow-001", types.SevHigh, types.CatCustom)},
		scan: func(_ context.Context, path, _ string) ([]types.Finding, error) {
			if strings.HasSuffix(path, "slow.txt") {
				<-release
			}
			return nil, nil
		},
	}
	s := newScanner(t, slow, tokenRule("tok-001", "TOKEN", types.SevHigh))
	cfg := DefaultConfig(root)
	cfg.FileTimeout = 50 * time.Millisecond

	res, err := s.Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "slow.txt")
	assert.Contains(t, res.Errors[0], "timeout")
	assert.Len(t, res.Findings, 1)
	assert.Len(t, res.ScannedFiles, 2)
}

func TestScan_CancelledBeforeStart(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "TOKEN"})
	s := newScanner(t, tokenRule("tok-001", "TOKEN", types.SevHigh))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := s.Scan(ctx, DefaultConfig(root))
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, res.Status)
	assert.Empty(t, res.Findings)
}

func TestScan_CancelledMidScan(t *testing.T) {
	files := map[string]string{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files[n+".txt"] = "TOKEN"
	}
	root := writeFiles(t, files)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var once sync.Once
	r := funcRule{
		Base: rules.Base{Meta: meta("cancel-001", types.SevHigh, types.CatCustom)},
		scan: func(ctx context.Context, _, _ string) ([]types.Finding, error) {
			once.Do(cancel)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	cfg := DefaultConfig(root)
	cfg.Threads = 1
	res, err := newScanner(t, r).Scan(ctx, cfg)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCancelled, res.Status)
	assert.Less(t, len(res.ScannedFiles), len(files))
}

func TestScan_DeterministicAcrossWorkers(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[filepath.Join("dir", string(rune('a'+i%26))+strings.Repeat("x", i/26)+".txt")] = "one TOKEN\ntwo\nTOKEN three"
	}
	root := writeFiles(t, files)
	s := newScanner(t, tokenRule("tok-001", "TOKEN", types.SevHigh))

	run := func(workers int) types.ScanResult {
		cfg := DefaultConfig(root)
		cfg.Threads = workers
		res, err := s.Scan(context.Background(), cfg)
		require.NoError(t, err)
		return res
	}
	one, eight := run(1), run(8)
	require.Len(t, one.Findings, 80)
	assert.ElementsMatch(t, one.Findings, eight.Findings)
	assert.Equal(t, one.ScannedFiles, eight.ScannedFiles)

	again := run(4)
	idsOf := func(fs []types.Finding) []string {
		var out []string
		for _, f := range fs {
			out = append(out, f.ID)
		}
		return out
	}
	assert.ElementsMatch(t, idsOf(one.Findings), idsOf(again.Findings))
	assert.NotEqual(t, one.ScanID, again.ScanID)
}

func TestScan_WithClock(t *testing.T) {
	root := writeFiles(t, map[string]string{"a.txt": "x"})
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	calls := 0
	clock := func() time.Time {
		calls++
		return t0.Add(time.Duration(calls-1) * time.Second)
	}
	res, err := New(plugin.NewRegistry(nil), WithClock(clock)).Scan(context.Background(), DefaultConfig(root))
	require.NoError(t, err)
	assert.Equal(t, t0, res.Timestamp)
	assert.Equal(t, time.Second, res.Duration)
	assert.True(t, strings.HasPrefix(res.ScanID, "scan_20240601T100000"))
}

func TestScan_WorkersBoundRuleConcurrency(t *testing.T) {
	files := map[string]string{}
	for i := 0; i < 40; i++ {
		files[fmt.Sprintf("f%02d.txt", i)] = "x"
	}
	root := writeFiles(t, files)

	var inFlight, peak atomic.Int32
	slow := funcRule{
		Base: rules.Base{Meta: meta("slow-001", types.SevLow, types.CatCustom)},
		scan: func(context.Context, string, string) ([]types.Finding, error) {
			n := inFlight.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			inFlight.Add(-1)
			return nil, nil
		},
	}
	cfg := DefaultConfig(root)
	cfg.Threads = 3
	res, err := newScanner(t, slow).Scan(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Len(t, res.ScannedFiles, 40)
	assert.LessOrEqual(t, peak.Load(), int32(3))
	assert.Positive(t, peak.Load())
}

func TestScan_OversizedFileSkippedWithoutError(t *testing.T) {
	root := writeFiles(t, map[string]string{
		"small.txt": "TOKEN",
		"huge.txt":  strings.Repeat("TOKEN\n", 20*1000*1000/6+1),
	})
	core, logs := observer.New(zap.WarnLevel)
	reg := plugin.NewRegistry(nil)
	require.NoError(t, reg.Register(context.Background(), &staticPlugin{rules: []rules.Rule{tokenRule("tok-001", "TOKEN", types.SevHigh)}}, nil))
	s := New(reg, WithLogger(zap.New(core)))

	cfg := DefaultConfig(root)
	require.Equal(t, DefaultMaxBytes, cfg.MaxBytes)
	res, err := s.Scan(context.Background(), cfg)
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, res.Status)
	assert.Equal(t, []string{"small.txt"}, rels(t, root, res.ScannedFiles))
	assert.Empty(t, res.Errors)
	require.Len(t, res.Findings, 1)
	assert.Equal(t, 1, logs.FilterMessage("skipping file larger than max_file_size").Len())
}

func TestFailedResult(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	s := New(plugin.NewRegistry(nil), WithClock(func() time.Time { return t0 }))
	res := s.FailedResult(scanerr.Load("initialize plugin vulnera", errors.New("no such file")))

	assert.Equal(t, types.StatusFailed, res.Status)
	assert.Equal(t, t0, res.Timestamp)
	assert.NotEmpty(t, res.ScanID)
	assert.NotNil(t, res.Findings)
	assert.NotNil(t, res.ScannedFiles)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "initialize plugin vulnera")
}
