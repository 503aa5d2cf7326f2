package rules

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

var (
	ErrRuleNotFound  = errors.New("rule not found")
	ErrDuplicateRule = errors.New("rule already exists")
	ErrInvalidRule   = errors.New("invalid rule definition")
)

// Repository is a source of rules independent of plugins.
type Repository interface {
	// LoadRules returns a snapshot of every rule. Callers may modify the
	// returned slice without affecting the repository.
	LoadRules(ctx context.Context) ([]Rule, error)
	GetRule(ctx context.Context, id string) (Rule, error)
	AddRule(ctx context.Context, r Rule) error
	UpdateRule(ctx context.Context, r Rule) error
}

// RuleFile is the on-disk shape of a local rule file.
type RuleFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// RuleSpec defines one pattern rule.
type RuleSpec struct {
	ID           string   `yaml:"id"`
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Category     string   `yaml:"category"`
	Severity     string   `yaml:"severity"`
	Author       string   `yaml:"author"`
	Version      string   `yaml:"version"`
	Tags         []string `yaml:"tags"`
	Enabled      *bool    `yaml:"enabled"`
	Pattern      string   `yaml:"pattern"`
	FilePatterns []string `yaml:"file_patterns"`
	Remediation  string   `yaml:"remediation"`
}

// LocalRepository serves rules read from a directory of YAML files plus any
// rules added at runtime. An empty or missing directory yields no rules.
type LocalRepository struct {
	dir string

	mu     sync.RWMutex
	loaded bool
	byID   map[string]Rule
}

// NewLocalRepository returns a repository rooted at dir. dir may be empty.
func NewLocalRepository(dir string) *LocalRepository {
	return &LocalRepository{dir: dir, byID: map[string]Rule{}}
}

func (r *LocalRepository) LoadRules(ctx context.Context) ([]Rule, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.byID))
	for id := range r.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]Rule, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out, nil
}

func (r *LocalRepository) GetRule(ctx context.Context, id string) (Rule, error) {
	if err := r.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	return rule, nil
}

func (r *LocalRepository) AddRule(ctx context.Context, rule Rule) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	id := rule.Metadata().ID
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateRule, id)
	}
	r.byID[id] = rule
	return nil
}

func (r *LocalRepository) UpdateRule(ctx context.Context, rule Rule) error {
	if err := r.ensureLoaded(ctx); err != nil {
		return err
	}
	id := rule.Metadata().ID
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return fmt.Errorf("%w: %s", ErrRuleNotFound, id)
	}
	r.byID[id] = rule
	return nil
}

func (r *LocalRepository) ensureLoaded(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loaded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	loaded, err := loadDir(r.dir)
	if err != nil {
		return err
	}
	for _, rule := range loaded {
		id := rule.Metadata().ID
		if _, dup := r.byID[id]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, id)
		}
		r.byID[id] = rule
	}
	r.loaded = true
	return nil
}

func loadDir(dir string) ([]Rule, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read rules dir: %w", err)
	}
	var out []Rule
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}
		p := filepath.Join(dir, e.Name())
		rs, err := LoadRuleFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, rs...)
	}
	return out, nil
}

// LoadRuleFile parses and compiles every rule in one YAML file.
func LoadRuleFile(path string) ([]Rule, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rf RuleFile
	if err := yaml.Unmarshal(b, &rf); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, path, err)
	}
	out := make([]Rule, 0, len(rf.Rules))
	for _, spec := range rf.Rules {
		rule, err := spec.Compile()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, rule)
	}
	return out, nil
}

// Compile validates the spec and builds a PatternRule.
func (s RuleSpec) Compile() (*PatternRule, error) {
	if s.ID == "" || s.Pattern == "" {
		return nil, fmt.Errorf("%w: id and pattern are required", ErrInvalidRule)
	}
	sev := types.SevMedium
	if s.Severity != "" {
		v, err := types.ParseSeverity(s.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, s.ID, err)
		}
		sev = v
	}
	cat := types.CatCustom
	if s.Category != "" {
		v, err := types.ParseCategory(s.Category)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidRule, s.ID, err)
		}
		cat = v
	}
	name := s.Name
	if name == "" {
		name = s.ID
	}
	version := s.Version
	if version == "" {
		version = "1.0.0"
	}
	enabled := true
	if s.Enabled != nil {
		enabled = *s.Enabled
	}
	meta := types.RuleMetadata{
		ID:          s.ID,
		Name:        name,
		Description: s.Description,
		Category:    cat,
		Severity:    sev,
		Version:     version,
		Author:      s.Author,
		Tags:        append([]string(nil), s.Tags...),
		Enabled:     enabled,
	}
	rule, err := NewPatternRule(meta, s.Pattern, s.FilePatterns, s.Remediation)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return rule, nil
}
