package engine

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"go.uber.org/zap"

	"github.com/valkyrie-scanner/valkyrie/internal/git"
	"github.com/valkyrie-scanner/valkyrie/internal/ignore"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
)

// Select expands the include globs under cfg.Root and returns the files to
// scan, joined with the root. A file survives when it matches at least one
// include glob, matches no exclude glob, is a regular file and is no larger
// than cfg.MaxBytes. Each file appears once even if several includes match.
func Select(ctx context.Context, cfg Config, log *zap.Logger) ([]string, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}
	excludes := append([]string(nil), cfg.ExcludeGlobs...)
	if cfg.IgnoreFile {
		if m, err := ignore.Load(filepath.Join(cfg.Root, ignore.FileName)); err == nil {
			excludes = append(excludes, m.Patterns()...)
		} else if !errors.Is(err, fs.ErrNotExist) {
			log.Warn("cannot read ignore file", zap.String("root", cfg.Root), zap.Error(err))
		}
	}
	excl := ignore.New(excludes...)

	fsys := os.DirFS(cfg.Root)
	seen := map[string]bool{}
	var out []string
	for _, pattern := range cfg.IncludeGlobs {
		pattern = strings.TrimPrefix(filepath.ToSlash(pattern), "./")
		err := doublestar.GlobWalk(fsys, pattern, func(rel string, d fs.DirEntry) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if d.IsDir() || seen[rel] {
				return nil
			}
			seen[rel] = true
			if excl.Match(rel) {
				return nil
			}
			info, err := d.Info()
			if err != nil || !info.Mode().IsRegular() {
				return nil
			}
			if cfg.MaxBytes > 0 && info.Size() > cfg.MaxBytes {
				log.Warn("skipping file larger than max_file_size",
					zap.String("file", rel), zap.Int64("size", info.Size()), zap.Int64("max", cfg.MaxBytes))
				return nil
			}
			out = append(out, filepath.Join(cfg.Root, filepath.FromSlash(rel)))
			return nil
		})
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, scanerr.Config("include pattern "+pattern, err)
		}
	}

	if cfg.DiffOnly {
		out = restrictToChanged(cfg.Root, out, log)
	}
	return out, nil
}

func restrictToChanged(root string, files []string, log *zap.Logger) []string {
	changed, err := git.ChangedFiles(root)
	if err != nil {
		log.Warn("diff_only requested but git status unavailable; scanning all selected files", zap.Error(err))
		return files
	}
	keep := make(map[string]bool, len(changed))
	for _, c := range changed {
		keep[filepath.Clean(c)] = true
	}
	absRoot, _ := filepath.Abs(root)
	var out []string
	for _, f := range files {
		rel, _ := filepath.Rel(root, f)
		if keep[filepath.Join(absRoot, rel)] {
			out = append(out, f)
		}
	}
	return out
}
