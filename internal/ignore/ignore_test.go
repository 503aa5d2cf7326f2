package ignore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestIgnoreMatch(t *testing.T) {
	dir := t.TempDir()
	ig := filepath.Join(dir, FileName)
	content := "node_modules/\n*.pem\n# comment\n\nsecret.env\n"
	if err := os.WriteFile(ig, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	m, err := Load(ig)
	if err != nil {
		t.Fatal(err)
	}
	cases := map[string]bool{
		"node_modules/pkg/index.js":     true,
		"web/node_modules/pkg/index.js": true,
		"certs/key.pem":                 true,
		"secret.env":                    true,
		"src/app.go":                    false,
	}
	for p, want := range cases {
		if got := m.Match(p); got != want {
			t.Fatalf("Match(%q)=%v want %v", p, got, want)
		}
	}
}

func TestLoad_MissingFile(t *testing.T) {
	m, err := Load(filepath.Join(t.TempDir(), FileName))
	if err == nil {
		t.Fatal("expected error for missing ignore file")
	}
	if m.Match("anything") {
		t.Fatal("empty matcher must not match")
	}
}

func TestMatchAny_DefaultExcludes(t *testing.T) {
	globs := []string{"**/.git/**", "**/.vscode/**", "**/node_modules/**", "**/__pycache__/**"}
	cases := map[string]bool{
		".git/config":                 true,
		"pkg/__pycache__/mod.pyc":     true,
		"app/node_modules/x/index.js": true,
		".vscode/settings.json":       true,
		"src/gitutil.py":              false,
		"docs/node_modules_notes.md":  false,
	}
	for p, want := range cases {
		if got := MatchAny(p, globs); got != want {
			t.Fatalf("MatchAny(%q)=%v want %v", p, got, want)
		}
	}
}

func TestAppend_Idempotent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, FileName)
	if err := os.WriteFile(p, []byte("*.pem"), 0644); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := Append(dir, "fixtures/"); err != nil {
			t.Fatal(err)
		}
	}
	if err := Append(dir, "*.pem"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), "*.pem\nfixtures/\n"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	m, err := Load(p)
	if err != nil {
		t.Fatal(err)
	}
	if !m.Match("fixtures/keys/a.txt") {
		t.Fatal("appended pattern not honoured")
	}
}
