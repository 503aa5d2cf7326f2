package valkyrie

import (
	"encoding/json"
	"path/filepath"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/report"
)

func newPluginsCmd(a *app) *cobra.Command {
	var (
		path   string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "plugins",
		Short: "List registered plugins",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			fc, err := a.loadConfig(abs)
			if err != nil {
				return err
			}
			log, err := a.newLogger(fc)
			if err != nil {
				return err
			}
			reg, err := buildRegistry(ctx, fc, "", log)
			defer func() { _ = reg.CleanupAll(ctx) }()
			if err != nil {
				return err
			}

			infos := reg.Plugins()
			if asJSON {
				type row struct {
					Name    string `json:"name"`
					Version string `json:"version"`
					Enabled bool   `json:"enabled"`
				}
				out := make([]row, 0, len(infos))
				for _, p := range infos {
					out = append(out, row{p.Name, p.Version, p.Enabled})
				}
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			rows := make([][]string, 0, len(infos))
			for _, p := range infos {
				rows = append(rows, []string{p.Name, p.Version, strconv.FormatBool(p.Enabled)})
			}
			return report.PrintRows(a.stdout, []string{"Name", "Version", "Enabled"}, rows)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "project whose config is used")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
