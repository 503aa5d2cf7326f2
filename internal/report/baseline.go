package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Baseline is a set of accepted finding ids.
type Baseline struct {
	Items map[string]bool `json:"items"`
}

// LoadBaseline reads a baseline file. A missing file yields an empty baseline
// and the underlying error.
func LoadBaseline(path string) (Baseline, error) {
	b := Baseline{Items: map[string]bool{}}
	f, err := os.ReadFile(path)
	if err != nil {
		return b, err
	}
	if err := json.Unmarshal(f, &b); err != nil {
		return Baseline{Items: map[string]bool{}}, fmt.Errorf("baseline %s: %w", path, err)
	}
	if b.Items == nil {
		b.Items = map[string]bool{}
	}
	return b, nil
}

// SaveBaseline writes the ids of findings as a baseline.
func SaveBaseline(path string, findings []types.Finding) error {
	b := Baseline{Items: map[string]bool{}}
	for _, f := range findings {
		b.Items[f.ID] = true
	}
	buf, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, buf, 0o644)
}

// IDs returns the baseline ids in sorted order.
func (b Baseline) IDs() []string {
	out := make([]string, 0, len(b.Items))
	for id, ok := range b.Items {
		if ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// FilterNewFindings drops findings whose id is in base.
func FilterNewFindings(findings []types.Finding, base Baseline) []types.Finding {
	out := []types.Finding{}
	for _, f := range findings {
		if !base.Items[f.ID] {
			out = append(out, f)
		}
	}
	return out
}

// ShouldFail reports whether a scan should fail the build: the scan did not
// complete, or failOnFindings is set and a critical or high finding exists.
func ShouldFail(res types.ScanResult, failOnFindings bool) bool {
	if res.Status == types.StatusFailed {
		return true
	}
	return failOnFindings && res.HasBlockingIssues()
}
