package valkyrie

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/config"
	"github.com/valkyrie-scanner/valkyrie/internal/detectors"
	"github.com/valkyrie-scanner/valkyrie/internal/logging"
	"github.com/valkyrie-scanner/valkyrie/internal/plugin"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/rules"
)

// loadConfig layers configuration: global, then the --config file or the
// repo-local file found in root. Missing files are not an error; invalid
// ones are.
func (a *app) loadConfig(root string) (config.FileConfig, error) {
	var fc config.FileConfig
	if g, err := config.LoadGlobal(); err == nil {
		fc = g
	} else if !errors.Is(err, config.ErrNotFound) {
		return fc, err
	}
	if a.configPath != "" {
		c, err := config.LoadFile(a.configPath)
		if err != nil {
			return fc, err
		}
		return config.Merge(fc, c), nil
	}
	l, err := config.LoadLocal(root)
	switch {
	case err == nil:
		fc = config.Merge(fc, l)
	case !errors.Is(err, config.ErrNotFound):
		return fc, err
	}
	return fc, nil
}

// newLogger builds the logger from the config, with CLI flags taking
// precedence.
func (a *app) newLogger(fc config.FileConfig) (*zap.Logger, error) {
	opts := fc.LoggingOptions()
	opts.Level = pickString(a.logLevel, opts.Level)
	opts.Format = pickString(a.logFormat, opts.Format)
	opts.File = pickString(a.logFile, opts.File)
	return logging.New(opts)
}

// buildRegistry registers the built-in plugins on top of the local rule
// repository. The registry is returned even on error so the caller can clean
// up the plugins that did register.
func buildRegistry(ctx context.Context, fc config.FileConfig, rulesDir string, log *zap.Logger) (*plugin.Registry, error) {
	var repo rules.Repository
	if dir := pickString(rulesDir, fc.RulesDir()); dir != "" {
		repo = rules.NewLocalRepository(dir)
	}
	reg := plugin.NewRegistry(repo, plugin.WithLogger(log))
	return reg, detectors.RegisterBuiltins(ctx, reg, fc.PluginSettings(), log)
}

// openOutput returns the file at path, or stdout when path is empty.
func (a *app) openOutput(path string) (io.Writer, func() error, error) {
	if path == "" {
		return a.stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}

// colorFor reports whether table output to w may use colour.
func (a *app) colorFor(w io.Writer) bool {
	if a.noColor {
		return false
	}
	f, ok := w.(*os.File)
	return ok && report.ColorEnabled(f)
}

func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func pickString(cli, cfg string) string {
	if cli != "" {
		return cli
	}
	return cfg
}

func pickStrings(cli string, cfg []string) []string {
	if v := splitCSV(cli); len(v) > 0 {
		return v
	}
	return cfg
}

func pickInt(cli int, cfg int) int {
	if cli != 0 {
		return cli
	}
	return cfg
}

func pickInt64(cli int64, cfg int64) int64 {
	if cli != 0 {
		return cli
	}
	return cfg
}

func deref[T any](p *T) T {
	var zero T
	if p != nil {
		return *p
	}
	return zero
}
