// Package cache keeps the result of the most recent scan so that later
// commands (report, baseline) can work without rescanning.
package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Entry is the stored form of the last scan.
type Entry struct {
	Root    string           `json:"root"`
	SavedAt time.Time        `json:"saved_at"`
	Result  types.ScanResult `json:"result"`
}

// Path returns where the last scan is stored for root. The file lives under
// .git when root is a repository so it is never committed by accident.
func Path(root string) string {
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, "valkyrie_last_scan.json")
	}
	return filepath.Join(root, ".valkyrie_last_scan.json")
}

// SaveResults stores res as the last scan of root.
func SaveResults(root string, res types.ScanResult) error {
	e := Entry{Root: root, SavedAt: time.Now().UTC(), Result: res}
	b, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(Path(root), b, 0o644)
}

// LoadResults returns the last scan of root.
func LoadResults(root string) (Entry, error) {
	var e Entry
	b, err := os.ReadFile(Path(root))
	if err != nil {
		return e, err
	}
	if err := json.Unmarshal(b, &e); err != nil {
		return e, fmt.Errorf("corrupt scan cache %s: %w", Path(root), err)
	}
	return e, nil
}
