// Package audit appends one JSON line per scan to a local history file and
// reads it back newest first.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valkyrie-scanner/valkyrie/internal/git"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// maxTopFindings bounds the per-record finding summary.
const maxTopFindings = 10

// ScanRecord is one line of the audit log.
type ScanRecord struct {
	Timestamp      time.Time        `json:"timestamp"`
	ScanID         string           `json:"scan_id"`
	Root           string           `json:"root"`
	Status         types.Status     `json:"status"`
	TotalFindings  int              `json:"total_findings"`
	NewFindings    int              `json:"new_findings"`
	BaselinedCount int              `json:"baselined_count"`
	SeverityCounts map[string]int   `json:"severity_counts"`
	FilesScanned   int              `json:"files_scanned"`
	Errors         int              `json:"errors"`
	Duration       string           `json:"duration"`
	BaselineFile   string           `json:"baseline_file,omitempty"`
	Remote         string           `json:"remote,omitempty"`
	Commit         string           `json:"commit,omitempty"`
	Branch         string           `json:"branch,omitempty"`
	TopFindings    []FindingSummary `json:"top_findings,omitempty"`
}

type FindingSummary struct {
	Path     string `json:"path"`
	RuleID   string `json:"rule_id"`
	Severity string `json:"severity"`
	Line     int    `json:"line"`
}

type AuditLog struct {
	logPath string
}

// NewAuditLog returns the log for root, stored under .git when present.
func NewAuditLog(root string) *AuditLog {
	gitDir := filepath.Join(root, ".git")
	logPath := filepath.Join(root, ".valkyrie_audit.jsonl")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		logPath = filepath.Join(gitDir, "valkyrie_audit.jsonl")
	}
	return &AuditLog{logPath: logPath}
}

func (a *AuditLog) Path() string { return a.logPath }

// LoadHistory returns all records, newest first. A missing log is an empty
// history. Undecodable lines are skipped.
func (a *AuditLog) LoadHistory() ([]ScanRecord, error) {
	f, err := os.Open(a.logPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []ScanRecord
	decoder := json.NewDecoder(f)
	for decoder.More() {
		var record ScanRecord
		if err := decoder.Decode(&record); err != nil {
			break
		}
		records = append(records, record)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

// LogScan appends record to the log.
func (a *AuditLog) LogScan(record ScanRecord) error {
	if record.ScanID == "" {
		record.ScanID = fmt.Sprintf("scan_%d", time.Now().Unix())
	}

	// owner-only: records name files that contain findings
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(record); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// CreateScanRecord summarises res. reported is the finding set left after
// baseline filtering. Repository details are filled in when root is inside a
// git worktree.
func CreateScanRecord(root string, res types.ScanResult, reported []types.Finding, baselineFile string) ScanRecord {
	counts := make(map[string]int)
	for _, f := range res.Findings {
		counts[f.Severity.String()]++
	}

	sorted := append([]types.Finding(nil), reported...)
	types.SortFindings(sorted)
	top := make([]FindingSummary, 0, min(len(sorted), maxTopFindings))
	for _, f := range sorted {
		if len(top) == maxTopFindings {
			break
		}
		top = append(top, FindingSummary{
			Path:     f.Location.FilePath,
			RuleID:   f.RuleID,
			Severity: f.Severity.String(),
			Line:     f.Location.Line,
		})
	}

	remote, commit, branch := git.RepoMetadata(root)
	return ScanRecord{
		Timestamp:      res.Timestamp,
		ScanID:         res.ScanID,
		Root:           root,
		Status:         res.Status,
		TotalFindings:  len(res.Findings),
		NewFindings:    len(reported),
		BaselinedCount: len(res.Findings) - len(reported),
		SeverityCounts: counts,
		FilesScanned:   len(res.ScannedFiles),
		Errors:         len(res.Errors),
		Duration:       res.Duration.String(),
		BaselineFile:   baselineFile,
		Remote:         remote,
		Commit:         commit,
		Branch:         branch,
		TopFindings:    top,
	}
}
