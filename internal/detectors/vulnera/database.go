package vulnera

import (
	"fmt"
	"os"

	semver "github.com/blang/semver/v4"
	"gopkg.in/yaml.v3"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Vulnerability is one known advisory for a package.
//
// AffectedVersions is matched literally against the declared version string.
// AffectedRange, when set, is a semver range such as ">=4.0.0 <4.17.21" and
// is checked in addition to the literal list.
type Vulnerability struct {
	CVE              string         `yaml:"cve_id" json:"cve_id"`
	Severity         types.Severity `yaml:"severity" json:"severity"`
	Description      string         `yaml:"description" json:"description"`
	AffectedVersions []string       `yaml:"affected_versions" json:"affected_versions"`
	AffectedRange    string         `yaml:"affected_range,omitempty" json:"affected_range,omitempty"`
	FixedVersions    []string       `yaml:"fixed_versions" json:"fixed_versions"`
	References       []string       `yaml:"references" json:"references"`

	rng semver.Range
}

// Affects reports whether version is covered by the advisory.
func (v *Vulnerability) Affects(version string) bool {
	for _, a := range v.AffectedVersions {
		if a == version {
			return true
		}
	}
	if v.rng == nil || version == "" {
		return false
	}
	sv, err := semver.ParseTolerant(version)
	if err != nil {
		return false
	}
	return v.rng(sv)
}

// Database maps a package name to its advisories.
type Database map[string][]Vulnerability

// BuiltinDatabase returns the advisories shipped with the scanner.
func BuiltinDatabase() Database {
	return Database{
		"lodash": {{
			CVE:              "CVE-2021-23337",
			Severity:         types.SevHigh,
			Description:      "Prototype pollution in lodash",
			AffectedVersions: []string{"4.17.20"},
			FixedVersions:    []string{"4.17.21"},
			References:       []string{"https://nvd.nist.gov/vuln/detail/CVE-2021-23337"},
		}},
		"requests": {{
			CVE:              "CVE-2023-32681",
			Severity:         types.SevMedium,
			Description:      "Certificate verification bypass in requests",
			AffectedVersions: []string{"2.30.0", "2.29.0"},
			FixedVersions:    []string{"2.31.0"},
			References:       []string{"https://nvd.nist.gov/vuln/detail/CVE-2023-32681"},
		}},
	}
}

// LoadDatabase reads a YAML or JSON advisory file shaped as
// {package: [advisory, ...]}.
func LoadDatabase(path string) (Database, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vulnerability database: %w", err)
	}
	var db Database
	if err := yaml.Unmarshal(b, &db); err != nil {
		return nil, fmt.Errorf("decode vulnerability database %s: %w", path, err)
	}
	if err := db.compile(); err != nil {
		return nil, fmt.Errorf("vulnerability database %s: %w", path, err)
	}
	return db, nil
}

// Merge appends the advisories of other to db.
func (db Database) Merge(other Database) {
	for name, vs := range other {
		db[name] = append(db[name], vs...)
	}
}

func (db Database) compile() error {
	for name, vs := range db {
		for i := range vs {
			v := &vs[i]
			if v.CVE == "" {
				return fmt.Errorf("%s: advisory %d has no cve_id", name, i)
			}
			if v.AffectedRange == "" {
				continue
			}
			rng, err := semver.ParseRange(v.AffectedRange)
			if err != nil {
				return fmt.Errorf("%s %s: affected_range: %w", name, v.CVE, err)
			}
			v.rng = rng
		}
	}
	return nil
}
