package valkyrie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/cache"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// lastScan loads the cached result for root with a friendly error when
// there is none.
func lastScan(root string) (types.ScanResult, error) {
	e, err := cache.LoadResults(root)
	if errors.Is(err, os.ErrNotExist) {
		return types.ScanResult{}, fmt.Errorf("no cached scan for %s; run `valkyrie scan` first", root)
	}
	if err != nil {
		return types.ScanResult{}, err
	}
	return e.Result, nil
}

func newReportCmd(a *app) *cobra.Command {
	var (
		path     string
		format   string
		output   string
		baseline string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Render the last cached scan in another format",
		RunE: func(_ *cobra.Command, _ []string) error {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			f, err := report.ParseFormat(format)
			if err != nil {
				return err
			}
			res, err := lastScan(abs)
			if err != nil {
				return err
			}
			if baseline != "" {
				base, err := report.LoadBaseline(baseline)
				if err != nil {
					return err
				}
				res = res.WithFindings(report.FilterNewFindings(res.Findings, base))
			}
			w, closeOut, err := a.openOutput(output)
			if err != nil {
				return err
			}
			if err := report.Write(w, f, res, report.Options{NoColor: !a.colorFor(w), ToolVersion: version}); err != nil {
				_ = closeOut()
				return err
			}
			return closeOut()
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "root of the scanned project")
	cmd.Flags().StringVarP(&format, "format", "f", string(report.FormatTable), "output format: sarif|json|html|table")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the report to this file instead of stdout")
	cmd.Flags().StringVar(&baseline, "baseline", "", "suppress findings listed in this baseline file")
	return cmd
}
