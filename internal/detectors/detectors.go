// Package detectors is the catalog of built-in plugins and the glue that
// registers them with a plugin registry.
package detectors

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/detectors/iam"
	"github.com/valkyrie-scanner/valkyrie/internal/detectors/secrets"
	"github.com/valkyrie-scanner/valkyrie/internal/detectors/vulnera"
	"github.com/valkyrie-scanner/valkyrie/internal/plugin"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
)

// Factory builds a fresh plugin instance.
type Factory func(log *zap.Logger) plugin.Plugin

var builtins = map[string]Factory{
	secrets.PluginName: func(*zap.Logger) plugin.Plugin { return secrets.New() },
	iam.PluginName:     func(*zap.Logger) plugin.Plugin { return iam.New() },
	vulnera.PluginName: func(l *zap.Logger) plugin.Plugin { return vulnera.New(vulnera.WithLogger(l)) },
}

// Names lists the built-in plugin names in sorted order.
func Names() []string {
	out := make([]string, 0, len(builtins))
	for n := range builtins {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the factory for a built-in plugin.
func Lookup(name string) (Factory, bool) {
	f, ok := builtins[name]
	return f, ok
}

// Setting is the user configuration of one plugin.
type Setting struct {
	Name    string
	Enabled bool
	Config  map[string]any
}

// RegisterBuiltins registers every built-in plugin with reg, passing each the
// config from its Setting. Plugins whose Setting has Enabled false stay
// registered but disabled. A Setting naming an unknown plugin is a
// configuration error.
func RegisterBuiltins(ctx context.Context, reg *plugin.Registry, settings []Setting, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	byName := map[string]Setting{}
	for _, s := range settings {
		if _, ok := builtins[s.Name]; !ok {
			return scanerr.Config("plugins", fmt.Errorf("unknown plugin %q (known: %v)", s.Name, Names()))
		}
		byName[s.Name] = s
	}
	for _, name := range Names() {
		s, ok := byName[name]
		if !ok {
			s = Setting{Name: name, Enabled: true}
		}
		if err := reg.Register(ctx, builtins[name](log), s.Config); err != nil {
			return err
		}
		if !s.Enabled {
			if err := reg.Disable(name); err != nil {
				return err
			}
		}
	}
	return nil
}
