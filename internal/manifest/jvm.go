package manifest

import (
	"encoding/xml"
	"regexp"
	"strings"
)

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
}

// Element names without a namespace in the struct tags match the Maven
// namespace as well as namespace-less documents.
type pomProject struct {
	XMLName      xml.Name        `xml:"project"`
	Dependencies []pomDependency `xml:"dependencies>dependency"`
	Management   struct {
		Dependencies []pomDependency `xml:"dependencies>dependency"`
	} `xml:"dependencyManagement"`
}

func parsePom(data []byte) ([]Dependency, error) {
	var doc pomProject
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	var out []Dependency
	for _, d := range append(doc.Dependencies, doc.Management.Dependencies...) {
		if d.GroupID == "" || d.ArtifactID == "" {
			continue
		}
		scope := strings.TrimSpace(d.Scope)
		out = append(out, Dependency{
			Name:    strings.TrimSpace(d.GroupID) + ":" + strings.TrimSpace(d.ArtifactID),
			Version: strings.TrimSpace(d.Version),
			Dev:     scope == "test" || scope == "provided",
		})
	}
	return out, nil
}

var (
	reGradleShort = regexp.MustCompile(`(implementation|compile|api|runtimeOnly|compileOnly|testImplementation|testCompile|testRuntimeOnly)\s*\(?\s*['"]([^:'"]+):([^:'"]+):([^'"]+)['"]`)
	reGradleMap   = regexp.MustCompile(`(implementation|compile|api|runtimeOnly|compileOnly|testImplementation|testCompile|testRuntimeOnly)\s*\(?\s*group:\s*['"]([^'"]+)['"],\s*name:\s*['"]([^'"]+)['"],\s*version:\s*['"]([^'"]+)['"]`)
)

// parseGradle is a pattern scan over the build script. Groovy is not parsed,
// so this parser never reports a malformed file.
func parseGradle(data []byte) ([]Dependency, error) {
	var out []Dependency
	s := string(data)
	for _, re := range []*regexp.Regexp{reGradleShort, reGradleMap} {
		for _, m := range re.FindAllStringSubmatch(s, -1) {
			out = append(out, Dependency{
				Name:    m[2] + ":" + m[3],
				Version: m[4],
				Dev:     strings.HasPrefix(m[1], "test"),
			})
		}
	}
	return out, nil
}
