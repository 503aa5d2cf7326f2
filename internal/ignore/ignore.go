// Package ignore implements glob matching for exclude lists and the
// .valkyrieignore file. Patterns use doublestar syntax; a pattern without a
// slash also matches against the base name, and a trailing slash matches a
// directory and everything beneath it.
package ignore

import (
	"bufio"
	"os"
	"path"
	"path/filepath"
	"strings"

	doublestar "github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up in the scan root.
const FileName = ".valkyrieignore"

// Matcher tests slash-separated relative paths against a pattern list.
type Matcher struct {
	patterns []string
}

// Load reads an ignore file. A missing file yields an empty matcher and the
// os error so callers can decide whether that matters.
func Load(p string) (Matcher, error) {
	f, err := os.Open(p)
	if err != nil {
		return Matcher{}, err
	}
	defer f.Close()
	var pats []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		pats = append(pats, line)
	}
	return New(pats...), sc.Err()
}

// New builds a matcher from patterns.
func New(patterns ...string) Matcher {
	var out []string
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if strings.HasSuffix(p, "/") {
			p += "**"
		}
		out = append(out, p)
	}
	return Matcher{patterns: out}
}

// Patterns returns the normalised pattern list.
func (m Matcher) Patterns() []string { return append([]string(nil), m.patterns...) }

// Match reports whether rel matches any pattern.
func (m Matcher) Match(rel string) bool {
	return MatchAny(rel, m.patterns)
}

// MatchAny reports whether p matches any of globs. Each glob is tried against
// the full path, with leading "./" and "**/" segments trimmed, and against the
// base name.
func MatchAny(p string, globs []string) bool {
	p = filepath.ToSlash(p)
	base := path.Base(p)
	for _, g := range globs {
		if ok, _ := doublestar.Match(g, p); ok {
			return true
		}
		if t := trimGlobPrefix(g); t != g {
			if ok, _ := doublestar.Match(t, p); ok {
				return true
			}
		}
		if !strings.Contains(strings.TrimSuffix(trimGlobPrefix(g), "/**"), "/") {
			if ok, _ := doublestar.Match(trimGlobPrefix(g), base); ok {
				return true
			}
			// directory patterns such as "node_modules/**" hit any path segment
			if dir := strings.TrimSuffix(trimGlobPrefix(g), "/**"); dir != trimGlobPrefix(g) {
				for _, seg := range strings.Split(path.Dir(p), "/") {
					if ok, _ := doublestar.Match(dir, seg); ok {
						return true
					}
				}
			}
		}
	}
	return false
}

func trimGlobPrefix(g string) string {
	s := strings.TrimPrefix(g, "./")
	for strings.HasPrefix(s, "**/") {
		s = strings.TrimPrefix(s, "**/")
	}
	return s
}

// Append adds pattern to the .valkyrieignore file in root, creating it if
// needed. A pattern already present is left alone.
func Append(root, pattern string) error {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil
	}
	p := filepath.Join(root, FileName)
	data, err := os.ReadFile(p)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == pattern {
			return nil
		}
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if len(data) > 0 && data[len(data)-1] != '\n' {
		pattern = "\n" + pattern
	}
	_, err = f.WriteString(pattern + "\n")
	return err
}
