package valkyrie

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/report"
)

const defaultBaselineFile = ".valkyrie-baseline.json"

func newBaselineCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "baseline",
		Short: "Manage baselines",
	}

	var (
		path string
		file string
	)
	update := &cobra.Command{
		Use:   "update",
		Short: "Accept every finding of the last cached scan",
		RunE: func(_ *cobra.Command, _ []string) error {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			res, err := lastScan(abs)
			if err != nil {
				return err
			}
			if file == "" {
				fc, err := a.loadConfig(abs)
				if err != nil {
					return err
				}
				file = pickString(deref(fc.Output.Baseline), filepath.Join(abs, defaultBaselineFile))
			}
			if err := report.SaveBaseline(file, res.Findings); err != nil {
				return err
			}
			a.infof("Baseline updated: %s (%d findings)", file, len(res.Findings))
			return nil
		},
	}
	update.Flags().StringVarP(&path, "path", "p", ".", "root of the scanned project")
	update.Flags().StringVar(&file, "file", "", "baseline file (default output.baseline, else "+defaultBaselineFile+" in the project)")

	cmd.AddCommand(update)
	return cmd
}
