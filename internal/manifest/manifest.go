// Package manifest parses dependency manifests and lock files into flat
// dependency lists.
//
// Parsers are looked up by exact base file name through a Registry. The
// registry is built once by the caller and handed to whoever needs it; there
// is no package-level mutable state.
package manifest

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
)

var (
	// ErrMalformed is returned when a manifest cannot be decoded. Parsers never
	// return partial data together with this error.
	ErrMalformed = errors.New("malformed manifest")
	// ErrUnsupported is returned for file names no parser is registered for.
	ErrUnsupported = errors.New("unsupported manifest")
)

// Dependency is one declared or locked package.
type Dependency struct {
	Name    string
	Version string
	Dev     bool
}

func (d Dependency) String() string {
	s := d.Name
	if d.Version != "" {
		s += "@" + d.Version
	}
	if d.Dev {
		s += " (dev)"
	}
	return s
}

// Parser decodes the content of one manifest format.
type Parser interface {
	Parse(data []byte) ([]Dependency, error)
}

// ParserFunc adapts a function to Parser.
type ParserFunc func(data []byte) ([]Dependency, error)

func (f ParserFunc) Parse(data []byte) ([]Dependency, error) { return f(data) }

// Registry maps manifest file names to parsers.
type Registry struct {
	parsers map[string]Parser
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// Default returns a registry with every built-in parser.
func Default() *Registry {
	r := NewRegistry()
	r.Register("package.json", ParserFunc(parsePackageJSON))
	r.Register("package-lock.json", ParserFunc(parsePackageLock))
	r.Register("yarn.lock", ParserFunc(parseYarnLock))
	r.Register("requirements.txt", ParserFunc(parseRequirements))
	r.Register("Pipfile", ParserFunc(parsePipfile))
	r.Register("Pipfile.lock", ParserFunc(parsePipfileLock))
	r.Register("poetry.lock", ParserFunc(parsePoetryLock))
	r.Register("pom.xml", ParserFunc(parsePom))
	r.Register("build.gradle", ParserFunc(parseGradle))
	r.Register("Cargo.toml", ParserFunc(parseCargoToml))
	r.Register("Cargo.lock", ParserFunc(parseCargoLock))
	r.Register("go.mod", ParserFunc(parseGoMod))
	r.Register("composer.json", ParserFunc(parseComposerJSON))
	r.Register("composer.lock", ParserFunc(parseComposerLock))
	return r
}

// Register binds filename to p, replacing any previous parser.
func (r *Registry) Register(filename string, p Parser) {
	r.parsers[filename] = p
}

// Supports reports whether a parser exists for the base name of path.
func (r *Registry) Supports(path string) bool {
	_, ok := r.parsers[filepath.Base(path)]
	return ok
}

// Filenames lists the supported manifest names in sorted order.
func (r *Registry) Filenames() []string {
	out := make([]string, 0, len(r.parsers))
	for name := range r.parsers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Parse decodes data with the parser registered for the base name of path.
// Decoding failures match both ErrMalformed and scanerr.ErrParse.
func (r *Registry) Parse(path string, data []byte) ([]Dependency, error) {
	name := filepath.Base(path)
	p, ok := r.parsers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, name)
	}
	deps, err := p.Parse(data)
	if err != nil {
		return nil, scanerr.Parse(path, fmt.Errorf("%w: %w", ErrMalformed, err))
	}
	return deps, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
