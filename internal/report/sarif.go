package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

const (
	sarifSchema    = "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0.json"
	informationURI = "https://github.com/valkyrie-scanner/valkyrie"
)

type sarif struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []sarifRun `json:"runs"`
}

type sarifRun struct {
	Tool        sarifTool         `json:"tool"`
	Results     []sarifResult     `json:"results"`
	Invocations []sarifInvocation `json:"invocations"`
}

type sarifTool struct {
	Driver sarifDriver `json:"driver"`
}

type sarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []sarifRule `json:"rules"`
}

type sarifRule struct {
	ID               string              `json:"id"`
	ShortDescription sarifMessage        `json:"shortDescription"`
	FullDescription  sarifMessage        `json:"fullDescription"`
	Help             sarifMessage        `json:"help"`
	Properties       sarifRuleProperties `json:"properties"`
}

type sarifRuleProperties struct {
	SecuritySeverity string `json:"security-severity"`
}

type sarifResult struct {
	RuleID    string       `json:"ruleId"`
	RuleIndex int          `json:"ruleIndex"`
	Level     string       `json:"level"`
	Message   sarifMessage `json:"message"`
	Locations []sarifLoc   `json:"locations"`
	// Fingerprints carries the stable finding id for deduplication by
	// code-scanning services.
	Fingerprints map[string]string `json:"partialFingerprints,omitempty"`
}

type sarifMessage struct {
	Text string `json:"text"`
}

type sarifLoc struct {
	PhysicalLocation sarifPhys `json:"physicalLocation"`
}

type sarifPhys struct {
	ArtifactLocation sarifArt    `json:"artifactLocation"`
	Region           sarifRegion `json:"region"`
}

type sarifArt struct {
	URI string `json:"uri"`
}

type sarifRegion struct {
	StartLine   int `json:"startLine"`
	StartColumn int `json:"startColumn,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

type sarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	StartTimeUTC        string `json:"startTimeUtc"`
	EndTimeUTC          string `json:"endTimeUtc"`
}

func sevToLevel(s types.Severity) string {
	switch s {
	case types.SevCritical, types.SevHigh:
		return "error"
	case types.SevMedium:
		return "warning"
	default:
		return "note"
	}
}

func sevToScore(s types.Severity) string {
	switch s {
	case types.SevCritical:
		return "9.0"
	case types.SevHigh:
		return "7.0"
	case types.SevMedium:
		return "5.0"
	case types.SevLow:
		return "3.0"
	default:
		return "1.0"
	}
}

// region converts 0-based column offsets to SARIF's 1-based columns.
func region(l types.Location) sarifRegion {
	r := sarifRegion{StartLine: max(l.Line, 1)}
	if l.ColumnEnd > 0 {
		r.StartColumn = l.ColumnStart + 1
		r.EndColumn = l.ColumnEnd + 1
	}
	return r
}

// WriteSARIF writes res as SARIF 2.1.0. Rules are derived from the findings,
// one per rule id, in order of first appearance.
func WriteSARIF(w io.Writer, res types.ScanResult, toolVersion string) error {
	if toolVersion == "" {
		toolVersion = "1.0.0"
	}
	findings := append([]types.Finding(nil), res.Findings...)
	types.SortFindings(findings)

	run := sarifRun{
		Tool: sarifTool{Driver: sarifDriver{
			Name:           "Valkyrie",
			Version:        toolVersion,
			InformationURI: informationURI,
			Rules:          []sarifRule{},
		}},
		Results: []sarifResult{},
	}
	index := map[string]int{}
	for _, f := range findings {
		i, ok := index[f.RuleID]
		if !ok {
			help := f.Remediation
			if help == "" {
				help = "Review and fix the security issue"
			}
			i = len(run.Tool.Driver.Rules)
			index[f.RuleID] = i
			run.Tool.Driver.Rules = append(run.Tool.Driver.Rules, sarifRule{
				ID:               f.RuleID,
				ShortDescription: sarifMessage{Text: f.Title},
				FullDescription:  sarifMessage{Text: f.Description},
				Help:             sarifMessage{Text: help},
				Properties:       sarifRuleProperties{SecuritySeverity: sevToScore(f.Severity)},
			})
		}
		run.Results = append(run.Results, sarifResult{
			RuleID:    f.RuleID,
			RuleIndex: i,
			Level:     sevToLevel(f.Severity),
			Message:   sarifMessage{Text: f.Description},
			Locations: []sarifLoc{{
				PhysicalLocation: sarifPhys{
					ArtifactLocation: sarifArt{URI: f.Location.FilePath},
					Region:           region(f.Location),
				},
			}},
			Fingerprints: map[string]string{"valkyrieFindingId/v1": f.ID},
		})
	}
	end := res.Timestamp.Add(res.Duration)
	run.Invocations = []sarifInvocation{{
		ExecutionSuccessful: res.Status == types.StatusCompleted,
		StartTimeUTC:        res.Timestamp.UTC().Format(time.RFC3339),
		EndTimeUTC:          end.UTC().Format(time.RFC3339),
	}}

	doc := sarif{Schema: sarifSchema, Version: "2.1.0", Runs: []sarifRun{run}}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(doc)
}
