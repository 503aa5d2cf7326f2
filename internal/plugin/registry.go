package plugin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	semver "github.com/blang/semver/v4"
	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
)

// Plugin is a named, versioned provider of rules with a lifecycle.
// Initialize is called once at registration; Cleanup when the plugin is
// replaced, unregistered or the registry shuts down.
type Plugin interface {
	Name() string
	Version() string
	Initialize(ctx context.Context, cfg map[string]any) error
	Rules(ctx context.Context) ([]rules.Rule, error)
	Cleanup(ctx context.Context) error
}

var (
	ErrUnknownPlugin = errors.New("plugin not registered")
	ErrInvalidPlugin = errors.New("invalid plugin")
)

// Info summarises a registered plugin.
type Info struct {
	Name    string
	Version string
	Enabled bool
}

// Registry owns registered plugins, the enabled set and a memoised merged
// rule list. The cache is dropped on every register, unregister, enable and
// disable, whether or not membership actually changed.
type Registry struct {
	repo rules.Repository
	log  *zap.Logger

	mu      sync.Mutex
	order   []string
	plugins map[string]Plugin
	enabled map[string]bool
	cache   []rules.Rule
	cached  bool
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets the logger used for lifecycle events.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// NewRegistry creates a registry whose merged rule set starts with the rules
// of repo. repo may be nil.
func NewRegistry(repo rules.Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:    repo,
		log:     zap.NewNop(),
		plugins: map[string]Plugin{},
		enabled: map[string]bool{},
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Register initializes p with cfg and stores it under its name, enabled.
// A different plugin already registered under the same name is cleaned up
// and replaced once p initializes; if Initialize fails it stays in place.
// Registering the same instance again cleans it up first and then
// re-initializes it; if that fails the plugin is removed.
func (r *Registry) Register(ctx context.Context, p Plugin, cfg map[string]any) error {
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidPlugin)
	}
	if _, err := semver.ParseTolerant(p.Version()); err != nil {
		return fmt.Errorf("%w: %s version %q: %v", ErrInvalidPlugin, name, p.Version(), err)
	}
	if cfg == nil {
		cfg = map[string]any{}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old, exists := r.plugins[name]
	// The same instance is cleaned up before it is initialized again.
	if exists && old == p {
		r.cleanup(ctx, name, old)
		delete(r.plugins, name)
		delete(r.enabled, name)
		r.invalidate()
	}
	if err := p.Initialize(ctx, cfg); err != nil {
		if exists && old == p {
			r.dropOrder(name)
		}
		return scanerr.Load("initialize plugin "+name, err)
	}
	switch {
	case !exists:
		r.order = append(r.order, name)
	case old != p:
		r.cleanup(ctx, name, old)
	}
	r.plugins[name] = p
	r.enabled[name] = true
	r.invalidate()
	r.log.Info("plugin registered", zap.String("plugin", name), zap.String("version", p.Version()))
	return nil
}

// Unregister cleans up and removes the named plugin. Unknown names are a no-op.
func (r *Registry) Unregister(ctx context.Context, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.plugins[name]
	if !ok {
		r.invalidate()
		return
	}
	r.cleanup(ctx, name, p)
	delete(r.plugins, name)
	delete(r.enabled, name)
	r.dropOrder(name)
	r.invalidate()
	r.log.Info("plugin unregistered", zap.String("plugin", name))
}

// Enable adds a registered plugin to the enabled set.
func (r *Registry) Enable(name string) error { return r.setEnabled(name, true) }

// Disable removes a registered plugin from the enabled set. Its lifecycle is
// untouched.
func (r *Registry) Disable(name string) error { return r.setEnabled(name, false) }

func (r *Registry) setEnabled(name string, on bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.plugins[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPlugin, name)
	}
	r.enabled[name] = on
	r.invalidate()
	return nil
}

// Rules returns the repository rules followed by the rules of every enabled
// plugin in registration order. The result is memoised until the next
// registry mutation. Failures are load errors and are not cached.
func (r *Registry) Rules(ctx context.Context) ([]rules.Rule, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached {
		return append([]rules.Rule(nil), r.cache...), nil
	}
	var merged []rules.Rule
	if r.repo != nil {
		base, err := r.repo.LoadRules(ctx)
		if err != nil {
			return nil, scanerr.Load("load repository rules", err)
		}
		merged = append(merged, base...)
	}
	for _, name := range r.order {
		if !r.enabled[name] {
			continue
		}
		rs, err := r.plugins[name].Rules(ctx)
		if err != nil {
			return nil, scanerr.Load("load rules from plugin "+name, err)
		}
		merged = append(merged, rs...)
	}
	r.cache = merged
	r.cached = true
	return append([]rules.Rule(nil), merged...), nil
}

// CleanupAll calls Cleanup on every registered plugin. All plugins are
// attempted; the failures are joined into the returned error.
func (r *Registry) CleanupAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, name := range r.order {
		if err := r.plugins[name].Cleanup(ctx); err != nil {
			r.log.Error("plugin cleanup failed", zap.String("plugin", name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Plugins lists registered plugins sorted by name.
func (r *Registry) Plugins() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Info, 0, len(r.plugins))
	for name, p := range r.plugins {
		out = append(out, Info{Name: name, Version: p.Version(), Enabled: r.enabled[name]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) invalidate() {
	r.cache = nil
	r.cached = false
}

func (r *Registry) cleanup(ctx context.Context, name string, p Plugin) {
	if err := p.Cleanup(ctx); err != nil {
		r.log.Error("plugin cleanup failed", zap.String("plugin", name), zap.Error(err))
	}
}

func (r *Registry) dropOrder(name string) {
	for i, n := range r.order {
		if n == name {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
