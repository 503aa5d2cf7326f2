package valkyrie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var version = "0.1.0"

// Exit codes.
const (
	exitOK       = 0
	exitFindings = 1
	exitError    = 2
)

// exitCodeError ends a command with a specific exit code. The message, if
// any, has already been printed.
type exitCodeError int

func (e exitCodeError) Error() string { return fmt.Sprintf("exit status %d", int(e)) }

// app carries the persistent flags and output streams of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer

	configPath string
	noColor    bool
	logLevel   string
	logFormat  string
	logFile    string
}

// newRootCmd builds the command tree. Each call returns an independent tree
// so tests can run commands in-process.
func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "valkyrie",
		Short:         "Scan source trees for secrets, vulnerable dependencies and risky IAM policies",
		Long:          "Valkyrie walks a directory, runs pluggable security rules over every selected file and reports findings as SARIF, JSON, HTML or a table.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "config file (default: .valkyrie.yml in the target, then the global config)")
	pf.BoolVar(&a.noColor, "no-color", false, "disable colorized output")
	pf.StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warning|error|critical")
	pf.StringVar(&a.logFormat, "log-format", "", "log format: plain|json")
	pf.StringVar(&a.logFile, "log-file", "", "write logs to this file instead of stderr")

	root.AddCommand(
		newScanCmd(a),
		newRulesCmd(a),
		newPluginsCmd(a),
		newConfigCmd(a),
		newReportCmd(a),
		newHistoryCmd(a),
		newBaselineCmd(a),
		newIgnoreCmd(a),
		newCompletionCmd(a),
	)
	return root
}

// Run executes the CLI with args and returns the process exit code.
func Run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var code exitCodeError
	if errors.As(err, &code) {
		return int(code)
	}
	a.errorf("error: %v", err)
	return exitError
}

// Execute runs the Valkyrie CLI. It should be called by the main package.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := Run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func (a *app) errorf(format string, args ...any) {
	c := color.New(color.FgRed, color.Bold)
	if a.noColor {
		c.DisableColor()
	}
	_, _ = c.Fprintf(a.stderr, format+"\n", args...)
}

func (a *app) warnf(format string, args ...any) {
	c := color.New(color.FgYellow)
	if a.noColor {
		c.DisableColor()
	}
	_, _ = c.Fprintf(a.stderr, format+"\n", args...)
}

func (a *app) infof(format string, args ...any) {
	_, _ = fmt.Fprintf(a.stderr, format+"\n", args...)
}
