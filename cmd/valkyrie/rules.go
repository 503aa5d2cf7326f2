package valkyrie

import (
	"encoding/json"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

func newRulesCmd(a *app) *cobra.Command {
	var (
		path     string
		rulesDir string
		category string
		asJSON   bool
	)
	cmd := &cobra.Command{
		Use:   "rules",
		Short: "List the rules a scan would load",
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
			reg, err := buildRegistry(ctx, fc, rulesDir, log)
			defer func() { _ = reg.CleanupAll(ctx) }()
			if err != nil {
				return err
			}

			var want types.Category
			if category != "" {
				if want, err = types.ParseCategory(category); err != nil {
					return err
				}
			}
			rs, err := reg.Rules(ctx)
			if err != nil {
				return err
			}
			metas := make([]types.RuleMetadata, 0, len(rs))
			for _, r := range rs {
				m := r.Metadata()
				if want != "" && m.Category != want {
					continue
				}
				metas = append(metas, m)
			}
			sort.SliceStable(metas, func(i, j int) bool { return metas[i].ID < metas[j].ID })

			if asJSON {
				enc := json.NewEncoder(a.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(metas)
			}
			return report.PrintRules(a.stdout, metas)
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "project whose config is used")
	cmd.Flags().StringVar(&rulesDir, "rules-dir", "", "directory of local YAML rule files")
	cmd.Flags().StringVar(&category, "category", "", "only list rules in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "emit JSON")
	return cmd
}
