package engine

import (
	"errors"
	"fmt"
	"os"
	"time"

	doublestar "github.com/bmatcuk/doublestar/v4"

	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

const (
	DefaultMaxBytes int64 = 10 * 1024 * 1024
	DefaultThreads        = 4
)

// DefaultIncludeGlobs selects every file under the root.
var DefaultIncludeGlobs = []string{"**/*"}

// DefaultExcludeGlobs skips VCS metadata, editor settings and vendored
// dependency trees.
var DefaultExcludeGlobs = []string{
	"**/.git/**",
	"**/.vscode/**",
	"**/node_modules/**",
	"**/__pycache__/**",
}

// Config controls one scan: scope, concurrency and rule filters.
// Zero values for IncludeGlobs, MaxBytes and Threads fall back to defaults.
type Config struct {
	Root         string
	IncludeGlobs []string
	ExcludeGlobs []string
	MaxBytes     int64
	Threads      int

	// RuleFilters is an allowlist of rule ids; empty allows all.
	RuleFilters        []string
	DisabledRules      []string
	DisabledCategories []types.Category
	SeverityThreshold  types.Severity

	// DiffOnly limits the scan to files changed in the git worktree.
	DiffOnly       bool
	FailOnFindings bool
	// FileTimeout bounds the work on a single file; zero disables it. When it
	// fires the worker slot is released at once, but a rule that ignores its
	// context keeps running in its own goroutine until it returns. Such rules
	// can push the number of rule bodies actually executing above Threads.
	FileTimeout time.Duration
	// IgnoreFile toggles loading of .valkyrieignore from Root.
	IgnoreFile bool
}

// DefaultConfig returns the configuration used when nothing is specified.
func DefaultConfig(root string) Config {
	return Config{
		Root:              root,
		IncludeGlobs:      append([]string(nil), DefaultIncludeGlobs...),
		ExcludeGlobs:      append([]string(nil), DefaultExcludeGlobs...),
		MaxBytes:          DefaultMaxBytes,
		Threads:           DefaultThreads,
		SeverityThreshold: types.SevLow,
		FailOnFindings:    true,
		IgnoreFile:        true,
	}
}

// Validate reports the first invalid option as a configuration error.
func (c Config) Validate() error {
	if c.Root == "" {
		return scanerr.Config("target_path", errors.New("must not be empty"))
	}
	st, err := os.Stat(c.Root)
	if err != nil {
		return scanerr.Config("target_path", err)
	}
	if !st.IsDir() {
		return scanerr.Config("target_path", fmt.Errorf("%s is not a directory", c.Root))
	}
	if c.Threads < 0 {
		return scanerr.Config("parallel_workers", fmt.Errorf("must be >= 1, got %d", c.Threads))
	}
	if c.MaxBytes < 0 {
		return scanerr.Config("max_file_size", fmt.Errorf("must be > 0, got %d", c.MaxBytes))
	}
	if c.FileTimeout < 0 {
		return scanerr.Config("file_timeout", fmt.Errorf("must not be negative, got %s", c.FileTimeout))
	}
	for _, g := range append(append([]string(nil), c.IncludeGlobs...), c.ExcludeGlobs...) {
		if !doublestar.ValidatePattern(g) {
			return scanerr.Config("patterns", fmt.Errorf("invalid glob %q", g))
		}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if len(c.IncludeGlobs) == 0 {
		c.IncludeGlobs = append([]string(nil), DefaultIncludeGlobs...)
	}
	if c.MaxBytes == 0 {
		c.MaxBytes = DefaultMaxBytes
	}
	if c.Threads == 0 {
		c.Threads = DefaultThreads
	}
	return c
}
