package engine

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valkyrie-scanner/valkyrie/internal/plugin"
	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Scanner orchestrates scans over the rule set served by a plugin registry.
// A Scanner is safe for concurrent use; each Scan call is independent.
type Scanner struct {
	registry *plugin.Registry
	log      *zap.Logger
	now      func() time.Time
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithLogger sets the logger for scan events.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scanner) {
		if l != nil {
			s.log = l
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// New returns a Scanner bound to reg.
func New(reg *plugin.Registry, opts ...Option) *Scanner {
	s := &Scanner{registry: reg, log: zap.NewNop(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

var scanSeq atomic.Uint64

func newScanID(t time.Time) string {
	return fmt.Sprintf("scan_%s_%d", t.UTC().Format("20060102T150405.000000000Z"), scanSeq.Add(1))
}

// fileOutcome is what one worker produces for one file. Workers never share
// outcomes; the orchestrator merges them after all workers finish.
type fileOutcome struct {
	attempted    bool
	findings     []types.Finding
	err          error
	ruleFailures int
}

// FailedResult returns the terminal result of a scan that could not start
// because its rules could not be loaded, for example when a plugin fails to
// initialize.
func (s *Scanner) FailedResult(cause error) types.ScanResult {
	now := s.now()
	s.log.Error("scan failed: cannot load rules", zap.Error(cause))
	return types.ScanResult{
		ScanID:       newScanID(now),
		Status:       types.StatusFailed,
		Timestamp:    now,
		Findings:     []types.Finding{},
		ScannedFiles: []string{},
		Errors:       []string{cause.Error()},
	}
}

// Scan runs one scan. The returned error is non-nil only when cfg is invalid,
// in which case no scan is attempted. Every other failure is reported through
// the result: rule-set load failures yield status failed, unreadable files and
// timeouts add entries to Errors, and a failing rule is logged and counted in
// RuleFailures. Cancelling ctx stops dispatching new files and yields status
// cancelled.
func (s *Scanner) Scan(ctx context.Context, cfg Config) (types.ScanResult, error) {
	if err := cfg.Validate(); err != nil {
		return types.ScanResult{}, err
	}
	cfg = cfg.withDefaults()

	started := s.now()
	res := types.ScanResult{
		ScanID:    newScanID(started),
		Status:    types.StatusRunning,
		Timestamp: started,
	}
	finish := func(st types.Status) types.ScanResult {
		res.Status = st
		res.Duration = s.now().Sub(started)
		if res.Findings == nil {
			res.Findings = []types.Finding{}
		}
		if res.ScannedFiles == nil {
			res.ScannedFiles = []string{}
		}
		if res.Errors == nil {
			res.Errors = []string{}
		}
		return res
	}

	all, err := s.registry.Rules(ctx)
	if err != nil {
		s.log.Error("scan failed: cannot load rules", zap.String("scan_id", res.ScanID), zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
		return finish(types.StatusFailed), nil
	}
	active := activeRules(all, cfg)

	files, err := Select(ctx, cfg, s.log)
	if err != nil {
		if ctx.Err() != nil {
			res.Errors = append(res.Errors, "scan cancelled: "+ctx.Err().Error())
			return finish(types.StatusCancelled), nil
		}
		s.log.Error("scan failed: file selection", zap.String("scan_id", res.ScanID), zap.Error(err))
		res.Errors = append(res.Errors, err.Error())
		return finish(types.StatusFailed), nil
	}
	s.log.Info("scan started",
		zap.String("scan_id", res.ScanID), zap.String("root", cfg.Root),
		zap.Int("files", len(files)), zap.Int("rules", len(active)), zap.Int("workers", cfg.Threads))

	outcomes := make([]fileOutcome, len(files))
	var g errgroup.Group
	g.SetLimit(cfg.Threads)
	for i, path := range files {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			outcomes[i] = s.scanFile(ctx, cfg, path, active)
			return nil
		})
	}
	_ = g.Wait()

	for i, o := range outcomes {
		if !o.attempted {
			continue
		}
		res.ScannedFiles = append(res.ScannedFiles, files[i])
		res.Findings = append(res.Findings, o.findings...)
		res.RuleFailures += o.ruleFailures
		if o.err != nil {
			res.Errors = append(res.Errors, o.err.Error())
		}
	}
	sort.Strings(res.ScannedFiles)

	status := types.StatusCompleted
	if err := ctx.Err(); err != nil {
		status = types.StatusCancelled
		res.Errors = append(res.Errors, "scan cancelled: "+err.Error())
	}
	out := finish(status)
	s.log.Info("scan finished",
		zap.String("scan_id", out.ScanID), zap.String("status", string(out.Status)),
		zap.Int("findings", len(out.Findings)), zap.Int("files", len(out.ScannedFiles)),
		zap.Int("errors", len(out.Errors)), zap.Int("rule_failures", out.RuleFailures),
		zap.Duration("duration", out.Duration))
	return out, nil
}

// activeRules applies the per-scan filters that do not depend on the file:
// enabled flag, allowlist, denylists and severity threshold.
func activeRules(all []rules.Rule, cfg Config) []rules.Rule {
	allow := toSet(cfg.RuleFilters)
	deny := toSet(cfg.DisabledRules)
	cats := map[types.Category]bool{}
	for _, c := range cfg.DisabledCategories {
		cats[c] = true
	}
	var out []rules.Rule
	for _, r := range all {
		m := r.Metadata()
		if !m.Enabled {
			continue
		}
		if len(allow) > 0 && !allow[m.ID] {
			continue
		}
		if deny[m.ID] || cats[m.Category] {
			continue
		}
		if m.Severity < cfg.SeverityThreshold {
			continue
		}
		out = append(out, r)
	}
	return out
}

func toSet(ids []string) map[string]bool {
	m := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			m[id] = true
		}
	}
	return m
}

func (s *Scanner) scanFile(ctx context.Context, cfg Config, path string, active []rules.Rule) fileOutcome {
	parent := ctx
	if cfg.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.FileTimeout)
		defer cancel()
	}
	out := fileOutcome{attempted: true}

	b, err := os.ReadFile(path)
	if err != nil {
		out.err = scanerr.Read(path, err)
		s.log.Error("cannot read file", zap.String("file", path), zap.Error(err))
		return out
	}
	content := strings.ToValidUTF8(string(b), "")

	for _, r := range active {
		id := r.Metadata().ID
		fs, err := runRule(ctx, r, path, content)
		if ctx.Err() != nil {
			if parent.Err() != nil {
				return fileOutcome{}
			}
			s.log.Warn("file scan timed out", zap.String("file", path), zap.Duration("timeout", cfg.FileTimeout))
			return fileOutcome{attempted: true, err: scanerr.Timeout(path, ctx.Err()), ruleFailures: out.ruleFailures}
		}
		if err != nil {
			out.ruleFailures++
			s.log.Error("rule failed", zap.String("rule", id), zap.String("file", path), zap.Error(err))
			continue
		}
		out.findings = append(out.findings, fs...)
	}
	return out
}

// runRule isolates one rule invocation: panics become errors and, when ctx
// can be cancelled, a rule that ignores ctx does not hold the worker past
// the deadline.
func runRule(ctx context.Context, r rules.Rule, path, content string) ([]types.Finding, error) {
	if ctx.Done() == nil {
		return callRule(ctx, r, path, content)
	}
	type result struct {
		fs  []types.Finding
		err error
	}
	ch := make(chan result, 1)
	go func() {
		fs, err := callRule(ctx, r, path, content)
		ch <- result{fs, err}
	}()
	select {
	case res := <-ch:
		return res.fs, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func callRule(ctx context.Context, r rules.Rule, path, content string) (fs []types.Finding, err error) {
	defer func() {
		if p := recover(); p != nil {
			fs, err = nil, fmt.Errorf("panic: %v", p)
		}
	}()
	if !r.IsApplicable(path) {
		return nil, nil
	}
	fs, err = r.Scan(ctx, path, content)
	if err != nil {
		return nil, scanerr.Rule(r.Metadata().ID, path, err)
	}
	return fs, nil
}
