package manifest

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/BurntSushi/toml"
)

var reRequirement = regexp.MustCompile(`^([A-Za-z0-9_.\-]+)(?:\[[^\]]*\])?\s*([<>=!~]*)\s*([^;#\s]*)`)

// parseRequirements keeps the operator for anything but an exact pin, so
// "requests==2.30.0" yields version "2.30.0" and "flask>=2" yields ">=2".
func parseRequirements(data []byte) ([]Dependency, error) {
	var out []Dependency
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := reRequirement.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		version := m[3]
		if version != "" && m[2] != "==" && m[2] != "===" {
			version = m[2] + version
		}
		out = append(out, Dependency{Name: m[1], Version: version})
	}
	return out, nil
}

type pipfile struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

func parsePipfile(data []byte) ([]Dependency, error) {
	var doc pipfile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, name := range sortedKeys(doc.Packages) {
		out = append(out, Dependency{Name: name, Version: tableVersion(doc.Packages[name], "*")})
	}
	for _, name := range sortedKeys(doc.DevPackages) {
		out = append(out, Dependency{Name: name, Version: tableVersion(doc.DevPackages[name], "*"), Dev: true})
	}
	return out, nil
}

// tableVersion reads a version that is either a bare string or the "version"
// key of an inline table.
func tableVersion(v any, fallback string) string {
	switch t := v.(type) {
	case string:
		return t
	case map[string]any:
		if s, ok := t["version"].(string); ok {
			return s
		}
	}
	return fallback
}

type pipfileLock struct {
	Default map[string]struct {
		Version string `json:"version"`
	} `json:"default"`
	Develop map[string]struct {
		Version string `json:"version"`
	} `json:"develop"`
}

func parsePipfileLock(data []byte) ([]Dependency, error) {
	var doc pipfileLock
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, name := range sortedKeys(doc.Default) {
		out = append(out, Dependency{Name: name, Version: strings.TrimPrefix(doc.Default[name].Version, "==")})
	}
	for _, name := range sortedKeys(doc.Develop) {
		out = append(out, Dependency{Name: name, Version: strings.TrimPrefix(doc.Develop[name].Version, "=="), Dev: true})
	}
	return out, nil
}

type poetryLock struct {
	Package []struct {
		Name     string `toml:"name"`
		Version  string `toml:"version"`
		Category string `toml:"category"`
	} `toml:"package"`
}

func parsePoetryLock(data []byte) ([]Dependency, error) {
	var doc poetryLock
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]Dependency, 0, len(doc.Package))
	for _, p := range doc.Package {
		out = append(out, Dependency{Name: p.Name, Version: p.Version, Dev: p.Category == "dev"})
	}
	return out, nil
}
