package manifest

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"strings"
)

type packageJSON struct {
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

func parsePackageJSON(data []byte) ([]Dependency, error) {
	var doc packageJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, name := range sortedKeys(doc.Dependencies) {
		out = append(out, Dependency{Name: name, Version: doc.Dependencies[name]})
	}
	for _, name := range sortedKeys(doc.DevDependencies) {
		out = append(out, Dependency{Name: name, Version: doc.DevDependencies[name], Dev: true})
	}
	return out, nil
}

type lockEntry struct {
	Version string `json:"version"`
	Dev     bool   `json:"dev"`
}

type packageLock struct {
	Packages     map[string]lockEntry `json:"packages"`
	Dependencies map[string]lockEntry `json:"dependencies"`
}

// parsePackageLock reads the npm v7+ "packages" table when present and falls
// back to the v6 "dependencies" table.
func parsePackageLock(data []byte) ([]Dependency, error) {
	var doc packageLock
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	if doc.Packages != nil {
		for _, key := range sortedKeys(doc.Packages) {
			if key == "" {
				continue
			}
			name := key
			if i := strings.LastIndex(key, "node_modules/"); i >= 0 {
				name = key[i+len("node_modules/"):]
			}
			e := doc.Packages[key]
			out = append(out, Dependency{Name: name, Version: e.Version, Dev: e.Dev})
		}
		return out, nil
	}
	for _, name := range sortedKeys(doc.Dependencies) {
		e := doc.Dependencies[name]
		out = append(out, Dependency{Name: name, Version: e.Version, Dev: e.Dev})
	}
	return out, nil
}

// parseYarnLock handles both the classic (`version "1.2.3"`) and berry
// (`version: 1.2.3`) layouts. Only the first version seen per package is kept.
func parseYarnLock(data []byte) ([]Dependency, error) {
	var out []Dependency
	seen := map[string]bool{}
	current := ""
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			if !strings.HasSuffix(trimmed, ":") {
				return nil, errors.New("yarn.lock: entry header without trailing colon: " + trimmed)
			}
			current = yarnEntryName(strings.TrimSuffix(trimmed, ":"))
			if current == "__metadata" {
				current = ""
			}
			continue
		}
		if current == "" || seen[current] {
			continue
		}
		rest, ok := strings.CutPrefix(trimmed, "version")
		if !ok || rest == "" || (rest[0] != ' ' && rest[0] != ':') {
			continue
		}
		v := strings.TrimSpace(strings.TrimPrefix(rest, ":"))
		v = strings.Trim(v, `"`)
		out = append(out, Dependency{Name: current, Version: v})
		seen[current] = true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// yarnEntryName extracts "left-pad" from `"left-pad@^1.0.0", left-pad@~1.1.0`
// and "@babel/core" from `"@babel/core@npm:7.0.0"`.
func yarnEntryName(header string) string {
	first, _, _ := strings.Cut(header, ",")
	first = strings.Trim(strings.TrimSpace(first), `"`)
	if i := strings.LastIndex(first, "@"); i > 0 {
		return first[:i]
	}
	return first
}
