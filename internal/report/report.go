// Package report renders scan results for people and machines: JSON, SARIF
// 2.1.0, a standalone HTML page and a console table. It also owns baseline
// files, which suppress findings that were accepted earlier.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Format names an output format.
type Format string

const (
	FormatJSON  Format = "json"
	FormatSARIF Format = "sarif"
	FormatHTML  Format = "html"
	FormatTable Format = "table"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJSON, FormatSARIF, FormatHTML, FormatTable:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q (want json, sarif, html or table)", s)
}

// Options tune rendering. NoColor only affects the table format.
type Options struct {
	NoColor bool
	// ToolVersion is reported in SARIF output.
	ToolVersion string
}

// Write renders res in the given format.
func Write(w io.Writer, f Format, res types.ScanResult, opts Options) error {
	switch f {
	case FormatJSON:
		return WriteJSON(w, res)
	case FormatSARIF:
		return WriteSARIF(w, res, opts.ToolVersion)
	case FormatHTML:
		return WriteHTML(w, res)
	case FormatTable:
		return PrintTable(w, res, PrintOptions{NoColor: opts.NoColor})
	}
	return fmt.Errorf("unknown output format %q", f)
}

type jsonSummary struct {
	TotalFindings     int  `json:"total_findings"`
	Critical          int  `json:"critical"`
	High              int  `json:"high"`
	HasBlockingIssues bool `json:"has_blocking_issues"`
}

type jsonReport struct {
	ScanID       string          `json:"scan_id"`
	Status       types.Status    `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	ScanDuration float64         `json:"scan_duration"`
	Summary      jsonSummary     `json:"summary"`
	Findings     []types.Finding `json:"findings"`
	ScannedFiles []string        `json:"scanned_files"`
	Errors       []string        `json:"errors"`
	RuleFailures int             `json:"rule_failures,omitempty"`
}

// WriteJSON writes the result with a summary block. scan_duration is in
// seconds.
func WriteJSON(w io.Writer, res types.ScanResult) error {
	findings := append([]types.Finding{}, res.Findings...)
	types.SortFindings(findings)
	doc := jsonReport{
		ScanID:       res.ScanID,
		Status:       res.Status,
		Timestamp:    res.Timestamp,
		ScanDuration: res.Duration.Seconds(),
		Summary: jsonSummary{
			TotalFindings:     len(res.Findings),
			Critical:          res.CriticalCount(),
			High:              res.HighCount(),
			HasBlockingIssues: res.HasBlockingIssues(),
		},
		Findings:     findings,
		ScannedFiles: nonNil(res.ScannedFiles),
		Errors:       nonNil(res.Errors),
		RuleFailures: res.RuleFailures,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}

// MarshalFindings returns the canonical JSON array of findings.
func MarshalFindings(fs []types.Finding) ([]byte, error) {
	if fs == nil {
		fs = []types.Finding{}
	}
	return json.MarshalIndent(fs, "", "  ")
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
