package types

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Severity is an ordered risk level for a finding. Higher values are more severe.
type Severity int

const (
	SevInfo Severity = iota
	SevLow
	SevMedium
	SevHigh
	SevCritical
)

var severityNames = map[Severity]string{
	SevInfo:     "info",
	SevLow:      "low",
	SevMedium:   "medium",
	SevHigh:     "high",
	SevCritical: "critical",
}

func (s Severity) String() string {
	if n, ok := severityNames[s]; ok {
		return n
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// ParseSeverity accepts the lower- or upper-case severity name.
func ParseSeverity(s string) (Severity, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == want {
			return sev, nil
		}
	}
	return SevInfo, fmt.Errorf("unknown severity %q", s)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// Category groups rules by the kind of problem they detect.
type Category string

const (
	CatSecrets        Category = "secrets"
	CatDependencies   Category = "dependencies"
	CatIAMConfig      Category = "iam_config"
	CatCodeQuality    Category = "code_quality"
	CatInfrastructure Category = "infrastructure"
	CatCustom         Category = "custom"
)

// Categories lists every known category in display order.
func Categories() []Category {
	return []Category{CatSecrets, CatDependencies, CatIAMConfig, CatCodeQuality, CatInfrastructure, CatCustom}
}

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	for _, k := range Categories() {
		if k == c {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category %q", s)
}

// Status is the terminal (or in-flight) state of a scan.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Location points at a place inside a scanned file. Line is 1-based.
// ColumnStart and ColumnEnd are zero when unknown.
type Location struct {
	FilePath    string `json:"file_path"`
	Line        int    `json:"line_number"`
	ColumnStart int    `json:"column_start,omitempty"`
	ColumnEnd   int    `json:"column_end,omitempty"`
}

func (l Location) String() string {
	return fmt.Sprintf("%s:%d", l.FilePath, l.Line)
}

// Finding is a single detected issue. Findings are value objects and are not
// modified after a rule returns them.
type Finding struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Severity    Severity       `json:"severity"`
	Category    Category       `json:"category"`
	Location    Location       `json:"location"`
	RuleID      string         `json:"rule_id"`
	Confidence  float64        `json:"confidence"`
	Metadata    map[string]any `json:"metadata"`
	Remediation string         `json:"remediation_advice,omitempty"`
}

// ClampConfidence bounds c to [0,1].
func ClampConfidence(c float64) float64 {
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// RuleMetadata describes a rule. Severity is the rule's default; individual
// findings may carry a different one.
type RuleMetadata struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description" yaml:"description"`
	Category    Category `json:"category" yaml:"category"`
	Severity    Severity `json:"severity" yaml:"severity"`
	Version     string   `json:"version" yaml:"version"`
	Author      string   `json:"author" yaml:"author"`
	Tags        []string `json:"tags,omitempty" yaml:"tags"`
	Enabled     bool     `json:"enabled" yaml:"enabled"`
}

// ScanResult is the snapshot returned by one scan invocation.
type ScanResult struct {
	ScanID       string        `json:"scan_id"`
	Status       Status        `json:"status"`
	Findings     []Finding     `json:"findings"`
	Duration     time.Duration `json:"duration"`
	Timestamp    time.Time     `json:"timestamp"`
	ScannedFiles []string      `json:"scanned_files"`
	Errors       []string      `json:"errors"`
	// RuleFailures counts rule invocations that failed and were suppressed.
	RuleFailures int `json:"rule_failures"`
}

// CountSeverity returns the number of findings at exactly sev.
func (r ScanResult) CountSeverity(sev Severity) int {
	n := 0
	for _, f := range r.Findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

func (r ScanResult) CriticalCount() int { return r.CountSeverity(SevCritical) }
func (r ScanResult) HighCount() int     { return r.CountSeverity(SevHigh) }

// HasBlockingIssues reports whether any finding is critical or high.
func (r ScanResult) HasBlockingIssues() bool {
	return r.CriticalCount() > 0 || r.HighCount() > 0
}

// WithFindings returns a copy of r whose findings are replaced by fs.
func (r ScanResult) WithFindings(fs []Finding) ScanResult {
	out := r
	out.Findings = append([]Finding(nil), fs...)
	return out
}

// SortFindings orders findings by path, line, then rule for stable output.
func SortFindings(fs []Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		a, b := fs[i], fs[j]
		if a.Location.FilePath != b.Location.FilePath {
			return a.Location.FilePath < b.Location.FilePath
		}
		if a.Location.Line != b.Location.Line {
			return a.Location.Line < b.Location.Line
		}
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		return a.ID < b.ID
	})
}
