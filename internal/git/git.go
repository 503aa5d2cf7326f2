// Package git answers the few repository questions Valkyrie needs: which
// files changed in the worktree, and which commit a scan ran against.
package git

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// validateRoot validates and normalizes a repository root path.
func validateRoot(root string) (string, error) {
	if strings.ContainsRune(root, 0) {
		return "", fmt.Errorf("invalid path: contains null byte")
	}
	abs, err := filepath.Abs(filepath.Clean(root))
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("cannot access path %q: %w", root, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("path is not a directory: %s", root)
	}
	return abs, nil
}

func open(root string) (*gogit.Repository, string, error) {
	validRoot, err := validateRoot(root)
	if err != nil {
		return nil, "", err
	}
	repo, err := gogit.PlainOpenWithOptions(validRoot, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, "", fmt.Errorf("open repository at %s: %w", validRoot, err)
	}
	return repo, validRoot, nil
}

// ChangedFiles returns absolute paths under root that differ from HEAD:
// modified, added, renamed, copied or untracked. Deleted files are omitted.
func ChangedFiles(root string) ([]string, error) {
	repo, validRoot, err := open(root)
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("worktree: %w", err)
	}
	st, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}
	top := wt.Filesystem.Root()
	var out []string
	for p, s := range st {
		if s.Worktree == gogit.Deleted || (s.Staging == gogit.Deleted && s.Worktree != gogit.Untracked) {
			continue
		}
		if s.Worktree == gogit.Unmodified && s.Staging == gogit.Unmodified {
			continue
		}
		abs := filepath.Join(top, filepath.FromSlash(p))
		if rel, err := filepath.Rel(validRoot, abs); err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		out = append(out, abs)
	}
	sort.Strings(out)
	return out, nil
}

// RepoMetadata returns (remote, commit, branch) best-effort for root.
// Empty strings are returned for anything that cannot be determined.
func RepoMetadata(root string) (string, string, string) {
	repo, _, err := open(root)
	if err != nil {
		return "", "", ""
	}
	remote := ""
	if r, err := repo.Remote("origin"); err == nil && len(r.Config().URLs) > 0 {
		s := strings.TrimSuffix(r.Config().URLs[0], ".git")
		if i := strings.LastIndex(s, ":"); i >= 0 {
			s = s[i+1:]
		}
		if i := strings.Index(s, "github.com/"); i >= 0 {
			s = s[i+len("github.com/"):]
		}
		remote = strings.TrimPrefix(s, "//")
	}
	commit, branch := "", ""
	if head, err := repo.Head(); err == nil {
		commit = head.Hash().String()
		if head.Name().IsBranch() {
			branch = head.Name().Short()
		}
	}
	return remote, commit, branch
}
