package valkyrie

import (
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/ignore"
)

func newIgnoreCmd(a *app) *cobra.Command {
	var path string
	cmd := &cobra.Command{
		Use:   "ignore <pattern>...",
		Short: "Add patterns to the project's " + ignore.FileName,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			abs, err := filepath.Abs(path)
			if err != nil {
				return err
			}
			for _, p := range args {
				if err := ignore.Append(abs, p); err != nil {
					return err
				}
			}
			a.infof("Updated %s", filepath.Join(abs, ignore.FileName))
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", ".", "project root")
	return cmd
}
