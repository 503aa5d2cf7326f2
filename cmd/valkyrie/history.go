package valkyrie

import (
	"encoding/json"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/audit"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		path   string
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show audited scans, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			recs, err := audit.NewAuditLog(abs).LoadHistory()
			if err != nil {
				return err
			}
			if limit > 0 && len(recs) > limit {
				recs = recs[:limit]
			}
			if asJSON {
				if recs == nil {
					recs = []audit.ScanRecord{}
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(recs)
			}
			if len(recs) == 0 {
				a.infof("No audited scans for %s (enable with `scan --audit` or output.audit)", abs)
				return nil
			}
			rows := make([][]string, 0, len(recs))
			for _, r := range recs {
				commit := r.Commit
				if len(commit) > 7 {
					commit = commit[:7]
				}
				rows = append(rows, []string{
					r.Timestamp.Local().Format(time.DateTime),
					r.ScanID,
					string(r.Status),
					strconv.Itoa(r.TotalFindings),
					strconv.Itoa(r.NewFindings),
					strconv.Itoa(r.FilesScanned),
					r.Duration,
					commit,
				})
			}
			return report.PrintRows(a.stdout,
				[]string{"Time", "Scan ID", "Status", "Findings", "New", "Files", "Duration", "Commit"}, rows)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "root of the scanned project")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many records (0 = all)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
