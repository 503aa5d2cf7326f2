package valkyrie

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/valkyrie-scanner/valkyrie/internal/config"
	"github.com/valkyrie-scanner/valkyrie/internal/detectors"
	"github.com/valkyrie-scanner/valkyrie/internal/report"
	"github.com/valkyrie-scanner/valkyrie/internal/scanerr"
)

func newConfigCmd(a *app) *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Configuration helpers"}

	var (
		output string
		force  bool
	)
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented .valkyrie.yml with the default settings",
		RunE: func(_ *cobra.Command, _ []string) error {
			if _, err := os.Stat(output); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", output)
			}
			if err := os.WriteFile(output, []byte(config.Template), 0o644); err != nil {
				return err
			}
			a.infof("Wrote %s", output)
			return nil
		},
	}
	initCmd.Flags().StringVarP(&output, "output", "o", config.LocalNames[0], "output file path")
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	var path string
	validateCmd := &cobra.Command{
		Use:   "validate [file]",
		Short: "Check a configuration file against the schema",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			var (
				fc  config.FileConfig
				src string
				err error
			)
			switch {
			case len(args) == 1:
				src = args[0]
				fc, err = config.LoadFile(src)
			case a.configPath != "":
				src = a.configPath
				fc, err = config.LoadFile(src)
			default:
				abs, aerr := filepath.Abs(path)
				if aerr != nil {
					return aerr
				}
				p, ok := config.LocalPath(abs)
				if !ok {
					return scanerr.Config("validate", errors.New("no config file found in "+abs))
				}
				src = p
				fc, err = config.LoadFile(p)
			}
			if err != nil {
				return err
			}
			if err := checkConfig(fc); err != nil {
				return fmt.Errorf("%s: %w", src, err)
			}
			_, _ = fmt.Fprintf(a.stdout, "%s: configuration is valid\n", src)
			return nil
		},
	}
	validateCmd.Flags().StringVarP(&path, "path", "p", ".", "directory searched for a local config")

	cfgCmd.AddCommand(initCmd, validateCmd)
	return cfgCmd
}

// checkConfig applies the semantic checks the schema cannot express.
func checkConfig(fc config.FileConfig) error {
	root := fc.Dir
	if root == "" {
		root = "."
	}
	if _, err := fc.EngineConfig(root); err != nil {
		return err
	}
	for _, p := range fc.PluginSettings() {
		if _, ok := detectors.Lookup(p.Name); !ok {
			return scanerr.Config("plugins", fmt.Errorf("unknown plugin %q (known: %v)", p.Name, detectors.Names()))
		}
	}
	if _, err := report.ParseFormat(fc.OutputFormat()); err != nil {
		return scanerr.Config("output.format", err)
	}
	return nil
}
