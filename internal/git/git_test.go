package git

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) (string, *gogit.Worktree) {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return dir, wt
}

func commitAll(t *testing.T, wt *gogit.Worktree, msg string) {
	t.Helper()
	require.NoError(t, wt.AddGlob("."))
	_, err := wt.Commit(msg, &gogit.CommitOptions{
		Author: &object.Signature{Name: "tester", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
}

func write(t *testing.T, dir, name, body string) {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
}

func TestChangedFiles(t *testing.T) {
	dir, wt := initRepo(t)
	write(t, dir, "stable.txt", "unchanged\n")
	write(t, dir, "edited.txt", "v1\n")
	write(t, dir, "gone.txt", "bye\n")
	commitAll(t, wt, "init")

	write(t, dir, "edited.txt", "v2\n")
	write(t, dir, "src/new.py", "print('hi')\n")
	require.NoError(t, os.Remove(filepath.Join(dir, "gone.txt")))

	got, err := ChangedFiles(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		filepath.Join(dir, "edited.txt"),
		filepath.Join(dir, "src", "new.py"),
	}, got)
}

func TestChangedFiles_NotARepo(t *testing.T) {
	_, err := ChangedFiles(t.TempDir())
	assert.Error(t, err)
}

func TestRepoMetadata(t *testing.T) {
	dir, wt := initRepo(t)
	write(t, dir, "README.md", "# demo\n")
	commitAll(t, wt, "init")

	_, commit, branch := RepoMetadata(dir)
	assert.Len(t, commit, 40)
	assert.NotEmpty(t, branch)
}
