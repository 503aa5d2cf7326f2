// Package vulnera provides the dependency vulnerability plugin. Its rule
// parses dependency manifests and reports every dependency whose declared
// version appears in the advisory database.
package vulnera

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/manifest"
	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

const (
	PluginName    = "vulnera"
	PluginVersion = "0.1.0"
	RuleID        = "deps-001"
)

// Rule matches parsed dependencies against a database.
type Rule struct {
	rules.Base
	db      Database
	parsers *manifest.Registry
	skipDev bool
	log     *zap.Logger
}

// NewRule returns the dependency rule. A nil parsers uses manifest.Default.
func NewRule(db Database, parsers *manifest.Registry, skipDev bool, log *zap.Logger) *Rule {
	if parsers == nil {
		parsers = manifest.Default()
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Rule{
		Base: rules.Base{Meta: types.RuleMetadata{
			ID:          RuleID,
			Name:        "Dependency Vulnerability Scanner",
			Description: "Scans dependencies for known vulnerabilities",
			Category:    types.CatDependencies,
			Severity:    types.SevHigh,
			Version:     "1.0.0",
			Author:      "Valkyrie Core Team",
			Tags:        []string{"dependencies", "vulnerabilities", "sbom"},
			Enabled:     true,
		}},
		db:      db,
		parsers: parsers,
		skipDev: skipDev,
		log:     log,
	}
}

func (r *Rule) IsApplicable(path string) bool { return r.parsers.Supports(path) }

// Scan never fails on manifest content: a file that cannot be parsed is
// logged and yields no findings.
func (r *Rule) Scan(ctx context.Context, path, content string) ([]types.Finding, error) {
	deps, err := r.parsers.Parse(path, []byte(content))
	if err != nil {
		r.log.Warn("cannot parse dependency file", zap.String("file", path), zap.Error(err))
		return nil, nil
	}
	versions := map[string]string{}
	for _, d := range deps {
		if r.skipDev && d.Dev {
			continue
		}
		versions[d.Name] = d.Version
	}
	names := make([]string, 0, len(versions))
	for n := range versions {
		names = append(names, n)
	}
	sort.Strings(names)

	var out []types.Finding
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		version := versions[name]
		advisories := r.db[name]
		for i := range advisories {
			v := &advisories[i]
			if !v.Affects(version) {
				continue
			}
			out = append(out, r.finding(path, name, version, v))
		}
	}
	return out, nil
}

func (r *Rule) finding(path, name, version string, v *Vulnerability) types.Finding {
	fixed := "latest"
	if len(v.FixedVersions) > 0 {
		fixed = strings.Join(v.FixedVersions, ", ")
	}
	return types.Finding{
		ID:          types.FindingID(path, name, v.CVE),
		Title:       "Vulnerable dependency: " + name,
		Description: fmt.Sprintf("Dependency %s@%s has vulnerability %s: %s", name, version, v.CVE, v.Description),
		Severity:    v.Severity,
		Category:    r.Meta.Category,
		Location:    types.Location{FilePath: path, Line: 1},
		RuleID:      r.Meta.ID,
		Confidence:  0.9,
		Metadata: map[string]any{
			"dependency":     name,
			"version":        version,
			"cve_id":         v.CVE,
			"fixed_versions": append([]string(nil), v.FixedVersions...),
			"references":     append([]string(nil), v.References...),
		},
		Remediation: fmt.Sprintf("Update %s to version %s", name, fixed),
	}
}

var ErrNotInitialized = errors.New("vulnera: plugin not initialized")

// Plugin owns the advisory database. The database exists from a successful
// Initialize until Cleanup.
//
// Options read from the plugin config:
//
//	database  path to an extra YAML or JSON advisory file
//	skip_dev  ignore development dependencies
type Plugin struct {
	parsers *manifest.Registry
	log     *zap.Logger

	mu      sync.RWMutex
	db      Database
	skipDev bool
}

// Option configures a Plugin.
type Option func(*Plugin)

// WithLogger sets the logger used for unparseable manifests.
func WithLogger(l *zap.Logger) Option {
	return func(p *Plugin) {
		if l != nil {
			p.log = l
		}
	}
}

// WithParsers replaces the manifest parser registry.
func WithParsers(r *manifest.Registry) Option {
	return func(p *Plugin) {
		if r != nil {
			p.parsers = r
		}
	}
}

// New returns an uninitialized vulnera plugin.
func New(opts ...Option) *Plugin {
	p := &Plugin{parsers: manifest.Default(), log: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (*Plugin) Name() string    { return PluginName }
func (*Plugin) Version() string { return PluginVersion }

func (p *Plugin) Initialize(ctx context.Context, cfg map[string]any) error {
	db := BuiltinDatabase()
	skipDev := false
	if v, ok := cfg["skip_dev"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("option skip_dev: want bool, got %T", v)
		}
		skipDev = b
	}
	if v, ok := cfg["database"]; ok {
		path, ok := v.(string)
		if !ok {
			return fmt.Errorf("option database: want string, got %T", v)
		}
		if path != "" {
			extra, err := LoadDatabase(path)
			if err != nil {
				return err
			}
			db.Merge(extra)
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	p.db = db
	p.skipDev = skipDev
	p.mu.Unlock()
	p.log.Debug("vulnerability database loaded", zap.Int("packages", len(db)))
	return nil
}

func (p *Plugin) Rules(context.Context) ([]rules.Rule, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.db == nil {
		return nil, ErrNotInitialized
	}
	return []rules.Rule{NewRule(p.db, p.parsers, p.skipDev, p.log)}, nil
}

func (p *Plugin) Cleanup(context.Context) error {
	p.mu.Lock()
	p.db = nil
	p.mu.Unlock()
	return nil
}
