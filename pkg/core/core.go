package core

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/detectors"
	"github.com/valkyrie-scanner/valkyrie/internal/engine"
	"github.com/valkyrie-scanner/valkyrie/internal/plugin"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Re-export selected internal types as a stable public API surface.
type (
	Config        = engine.Config
	Result        = types.ScanResult
	Finding       = types.Finding
	Severity      = types.Severity
	PluginSetting = detectors.Setting
)

// DefaultConfig returns the default scan configuration for root.
func DefaultConfig(root string) Config { return engine.DefaultConfig(root) }

type options struct {
	log      *zap.Logger
	rulesDir string
	plugins  []PluginSetting
}

// Option tunes Scan.
type Option func(*options)

// WithLogger routes engine and plugin logs to l.
func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// WithRulesDir loads YAML pattern rules from dir in addition to the built-in
// plugins.
func WithRulesDir(dir string) Option { return func(o *options) { o.rulesDir = dir } }

// WithPlugins configures built-in plugins by name.
func WithPlugins(s ...PluginSetting) Option {
	return func(o *options) { o.plugins = append(o.plugins, s...) }
}

// Scan registers the built-in plugins and runs one scan. The error is
// non-nil only for configuration problems; all other failures, including a
// plugin that fails to initialize, are reported in a FAILED result.
func Scan(ctx context.Context, cfg Config, opts ...Option) (Result, error) {
	o := options{log: zap.NewNop()}
	for _, fn := range opts {
		fn(&o)
	}
	var repo rules.Repository
	if o.rulesDir != "" {
		repo = rules.NewLocalRepository(o.rulesDir)
	}
	reg := plugin.NewRegistry(repo, plugin.WithLogger(o.log))
	defer func() { _ = reg.CleanupAll(context.WithoutCancel(ctx)) }()
	sc := engine.New(reg, engine.WithLogger(o.log))
	if err := detectors.RegisterBuiltins(ctx, reg, o.plugins, o.log); err != nil {
		if !errors.Is(err, scanerr.ErrLoad) {
			return Result{}, err
		}
		if err := cfg.Validate(); err != nil {
			return Result{}, err
		}
		return sc.FailedResult(err), nil
	}
	return sc.Scan(ctx, cfg)
}

// PluginNames lists the built-in plugins.
func PluginNames() []string { return detectors.Names() }

// MarshalResult writes res as the JSON report.
func MarshalResult(w io.Writer, res Result) error { return report.WriteJSON(w, res) }
