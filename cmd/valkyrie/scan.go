package valkyrie

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/audit"
	"github.com/valkyrie-scanner/valkyrie/internal/cache"
	"github.com/valkyrie-scanner/valkyrie/internal/engine"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// artifactGlobs are files Valkyrie writes into the project itself. They hold
// finding snippets and are never scanned.
var artifactGlobs = []string{".valkyrie_last_scan.json", ".valkyrie_audit.jsonl", defaultBaselineFile}

type scanFlags struct {
	path     string
	format   string
	output   string
	include  string
	exclude  string
	maxBytes int64
	threads  int
	rules    string
	disable  string
	severity string
	diffOnly bool
	failOn   bool
	timeout  time.Duration
	rulesDir string
	baseline string
	audit    bool
	noCache  bool
	noIgnore bool
}

func newScanCmd(a *app) *cobra.Command {
	f := &scanFlags{}
	cmd := &cobra.Command{
		Use:   "scan [path]",
		Short: "Scan a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				f.path = args[0]
			}
			return a.runScan(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringVarP(&f.path, "path", "p", ".", "path to scan")
	fl.StringVarP(&f.format, "format", "f", "", "output format: sarif|json|html|table (default from config, else sarif)")
	fl.StringVarP(&f.output, "output", "o", "", "write the report to this file instead of stdout")
	fl.StringVar(&f.include, "include", "", "comma-separated include globs")
	fl.StringVar(&f.exclude, "exclude", "", "comma-separated exclude globs (replaces the defaults)")
	fl.Int64Var(&f.maxBytes, "max-bytes", 0, "skip files larger than this (default 10 MiB)")
	fl.IntVar(&f.threads, "threads", 0, "parallel workers (default 4)")
	fl.StringVar(&f.rules, "rules", "", "only run these rule ids (comma-separated)")
	fl.StringVar(&f.disable, "disable", "", "never run these rule ids (comma-separated)")
	fl.StringVar(&f.severity, "severity", "", "minimum rule severity: info|low|medium|high|critical")
	fl.BoolVar(&f.diffOnly, "diff-only", false, "scan only files changed in the git worktree")
	fl.BoolVar(&f.failOn, "fail-on-findings", true, "exit 1 when critical or high findings are reported")
	fl.DurationVar(&f.timeout, "file-timeout", 0, "abandon a file after this long (0 = no limit)")
	fl.StringVar(&f.rulesDir, "rules-dir", "", "directory of local YAML rule files")
	fl.StringVar(&f.baseline, "baseline", "", "suppress findings listed in this baseline file")
	fl.BoolVar(&f.audit, "audit", false, "append a record of this scan to the audit log")
	fl.BoolVar(&f.noCache, "no-cache", false, "do not store this scan for report/baseline")
	fl.BoolVar(&f.noIgnore, "no-ignore-file", false, "ignore the .valkyrieignore file")
	return cmd
}

func (a *app) runScan(cmd *cobra.Command, f *scanFlags) error {
	ctx := cmd.Context()
	abs, err := filepath.Abs(f.path)
	if err != nil {
		return err
	}
	// CLI > --config or local > global
	fc, err := a.loadConfig(abs)
	if err != nil {
		return err
	}
	log, err := a.newLogger(fc)
	if err != nil {
		return scanerr.Config("logging", err)
	}
	defer func() { _ = log.Sync() }()

	cfg, err := fc.EngineConfig(abs)
	if err != nil {
		return err
	}
	if err := applyScanFlags(cmd, f, abs, &cfg); err != nil {
		return err
	}

	format, err := report.ParseFormat(pickString(f.format, fc.OutputFormat()))
	if err != nil {
		return scanerr.Config("output.format", err)
	}

	reg, regErr := buildRegistry(ctx, fc, f.rulesDir, log)
	defer func() {
		if err := reg.CleanupAll(context.WithoutCancel(ctx)); err != nil {
			log.Warn("plugin cleanup failed", zap.Error(err))
		}
	}()
	if regErr != nil && !errors.Is(regErr, scanerr.ErrLoad) {
		return regErr
	}

	sc := engine.New(reg, engine.WithLogger(log))
	var res types.ScanResult
	if regErr != nil {
		if err := cfg.Validate(); err != nil {
			return err
		}
		res = sc.FailedResult(regErr)
	} else if res, err = sc.Scan(ctx, cfg); err != nil {
		return err
	}

	if !f.noCache {
		if err := cache.SaveResults(cfg.Root, res); err != nil {
			log.Warn("cannot cache scan result", zap.Error(err))
		}
	}

	reported := res
	baselinePath := pickString(f.baseline, deref(fc.Output.Baseline))
	if baselinePath == "" {
		baselinePath = filepath.Join(cfg.Root, defaultBaselineFile)
	}
	base, err := report.LoadBaseline(baselinePath)
	switch {
	case err == nil:
		reported = res.WithFindings(report.FilterNewFindings(res.Findings, base))
	case errors.Is(err, os.ErrNotExist):
		baselinePath = ""
	default:
		a.warnf("warning: ignoring baseline: %v", err)
		baselinePath = ""
	}

	if f.audit || deref(fc.Output.Audit) {
		rec := audit.CreateScanRecord(cfg.Root, res, reported.Findings, baselinePath)
		if err := audit.NewAuditLog(cfg.Root).LogScan(rec); err != nil {
			a.warnf("warning: %v", err)
		}
	}

	w, closeOut, err := a.openOutput(pickString(f.output, deref(fc.Output.File)))
	if err != nil {
		return err
	}
	opts := report.Options{NoColor: !a.colorFor(w), ToolVersion: version}
	if err := report.Write(w, format, reported, opts); err != nil {
		_ = closeOut()
		return fmt.Errorf("write report: %w", err)
	}
	if err := closeOut(); err != nil {
		return err
	}

	for _, e := range res.Errors {
		a.warnf("warning: %s", e)
	}
	if res.RuleFailures > 0 {
		a.warnf("warning: %d rule invocation(s) failed; see logs", res.RuleFailures)
	}
	if res.Status != types.StatusCompleted {
		a.errorf("scan %s", res.Status)
		return exitCodeError(exitError)
	}
	if report.ShouldFail(reported, cfg.FailOnFindings) {
		return exitCodeError(exitFindings)
	}
	return nil
}

// applyScanFlags overlays flags the user set explicitly onto cfg.
func applyScanFlags(cmd *cobra.Command, f *scanFlags, abs string, cfg *engine.Config) error {
	fl := cmd.Flags()
	if fl.Changed("path") || fl.NArg() > 0 {
		cfg.Root = abs
	}
	cfg.IncludeGlobs = pickStrings(f.include, cfg.IncludeGlobs)
	cfg.ExcludeGlobs = pickStrings(f.exclude, cfg.ExcludeGlobs)
	cfg.MaxBytes = pickInt64(f.maxBytes, cfg.MaxBytes)
	cfg.Threads = pickInt(f.threads, cfg.Threads)
	cfg.RuleFilters = pickStrings(f.rules, cfg.RuleFilters)
	cfg.DisabledRules = append(cfg.DisabledRules, splitCSV(f.disable)...)
	if f.severity != "" {
		sev, err := types.ParseSeverity(f.severity)
		if err != nil {
			return scanerr.Config("severity", err)
		}
		cfg.SeverityThreshold = sev
	}
	if fl.Changed("diff-only") {
		cfg.DiffOnly = f.diffOnly
	}
	if fl.Changed("fail-on-findings") {
		cfg.FailOnFindings = f.failOn
	}
	if fl.Changed("file-timeout") {
		cfg.FileTimeout = f.timeout
	}
	if f.noIgnore {
		cfg.IgnoreFile = false
	}
	cfg.ExcludeGlobs = append(cfg.ExcludeGlobs, artifactGlobs...)
	return nil
}
