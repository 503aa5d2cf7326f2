package report

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"golang.org/x/term"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

type PrintOptions struct {
	NoColor bool
}

var severityStyles = map[types.Severity]lipgloss.Style{
	types.SevCritical: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9")),
	types.SevHigh:     lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	types.SevMedium:   lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	types.SevLow:      lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	types.SevInfo:     lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

func severityCell(s types.Severity, noColor bool) string {
	name := s.String()
	if noColor {
		return name
	}
	if st, ok := severityStyles[s]; ok {
		return st.Render(name)
	}
	return name
}

// PrintTable writes findings as a table followed by a summary footer.
func PrintTable(w io.Writer, res types.ScanResult, opts PrintOptions) error {
	findings := append([]types.Finding(nil), res.Findings...)
	types.SortFindings(findings)

	if len(findings) == 0 {
		fmt.Fprintln(w, "No security issues found ✅")
	} else {
		table := tablewriter.NewWriter(w)
		table.Header("Severity", "Rule", "Location", "Title", "Confidence")
		for _, f := range findings {
			if err := table.Append(
				severityCell(f.Severity, opts.NoColor),
				f.RuleID,
				f.Location.String(),
				f.Title,
				strconv.FormatFloat(f.Confidence, 'f', 2, 64),
			); err != nil {
				return err
			}
		}
		if err := table.Render(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Findings: %d (critical: %d, high: %d, medium: %d, low: %d, info: %d)\n",
		len(findings), res.CriticalCount(), res.HighCount(),
		res.CountSeverity(types.SevMedium), res.CountSeverity(types.SevLow), res.CountSeverity(types.SevInfo))
	if res.Duration > 0 {
		fmt.Fprintf(w, "Scan duration: %s\n", res.Duration.Round(time.Millisecond))
	}
	fmt.Fprintf(w, "Files scanned: %d\n", len(res.ScannedFiles))
	if len(res.Errors) > 0 {
		fmt.Fprintf(w, "Errors: %d\n", len(res.Errors))
	}
	if res.Status != types.StatusCompleted && res.Status != "" {
		fmt.Fprintf(w, "Status: %s\n", res.Status)
	}
	return nil
}

// PrintRules lists rule metadata as a table.
func PrintRules(w io.Writer, metas []types.RuleMetadata) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Name", "Category", "Severity", "Version", "Enabled")
	for _, m := range metas {
		if err := table.Append(m.ID, m.Name, string(m.Category), m.Severity.String(), m.Version, strconv.FormatBool(m.Enabled)); err != nil {
			return err
		}
	}
	return table.Render()
}

// PrintRows writes an arbitrary table. It backs the plugin and history
// listings.
func PrintRows(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	h := make([]any, len(header))
	for i, c := range header {
		h[i] = c
	}
	table.Header(h...)
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}
