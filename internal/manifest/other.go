package manifest

import (
	"encoding/json"

	"github.com/BurntSushi/toml"
	"golang.org/x/mod/modfile"
)

type cargoToml struct {
	Dependencies    map[string]any `toml:"dependencies"`
	DevDependencies map[string]any `toml:"dev-dependencies"`
}

func parseCargoToml(data []byte) ([]Dependency, error) {
	var doc cargoToml
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, name := range sortedKeys(doc.Dependencies) {
		out = append(out, Dependency{Name: name, Version: tableVersion(doc.Dependencies[name], "")})
	}
	for _, name := range sortedKeys(doc.DevDependencies) {
		out = append(out, Dependency{Name: name, Version: tableVersion(doc.DevDependencies[name], ""), Dev: true})
	}
	return out, nil
}

type cargoLock struct {
	Package []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

func parseCargoLock(data []byte) ([]Dependency, error) {
	var doc cargoLock
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	out := make([]Dependency, 0, len(doc.Package))
	for _, p := range doc.Package {
		out = append(out, Dependency{Name: p.Name, Version: p.Version})
	}
	return out, nil
}

func parseGoMod(data []byte) ([]Dependency, error) {
	f, err := modfile.ParseLax("go.mod", data, nil)
	if err != nil {
		return nil, err
	}
	out := make([]Dependency, 0, len(f.Require))
	for _, r := range f.Require {
		out = append(out, Dependency{Name: r.Mod.Path, Version: r.Mod.Version})
	}
	return out, nil
}

type composerJSON struct {
	Require    map[string]string `json:"require"`
	RequireDev map[string]string `json:"require-dev"`
}

func parseComposerJSON(data []byte) ([]Dependency, error) {
	var doc composerJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, name := range sortedKeys(doc.Require) {
		if name == "php" {
			continue
		}
		out = append(out, Dependency{Name: name, Version: doc.Require[name]})
	}
	for _, name := range sortedKeys(doc.RequireDev) {
		out = append(out, Dependency{Name: name, Version: doc.RequireDev[name], Dev: true})
	}
	return out, nil
}

type composerPackage struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type composerLock struct {
	Packages    []composerPackage `json:"packages"`
	PackagesDev []composerPackage `json:"packages-dev"`
}

func parseComposerLock(data []byte) ([]Dependency, error) {
	var doc composerLock
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, p := range doc.Packages {
		out = append(out, Dependency{Name: p.Name, Version: p.Version})
	}
	for _, p := range doc.PackagesDev {
		out = append(out, Dependency{Name: p.Name, Version: p.Version, Dev: true})
	}
	return out, nil
}
