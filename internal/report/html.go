package report

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"path/filepath"
	"sort"
	"time"

	"github.com/alecthomas/chroma/v2"
	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

var htmlTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"percent": func(c float64) string { return fmt.Sprintf("%.1f%%", c*100) },
}).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8">
<meta name="viewport" content="width=device-width, initial-scale=1.0">
<title>Valkyrie Security Scan Report</title>
<style>
body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', sans-serif; margin: 0; padding: 20px; background: #f5f5f5; }
.container { max-width: 1200px; margin: 0 auto; background: white; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
.header { background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); color: white; padding: 30px; border-radius: 8px 8px 0 0; }
.content { padding: 30px; }
.summary { display: grid; grid-template-columns: repeat(auto-fit, minmax(160px, 1fr)); gap: 20px; margin-bottom: 30px; }
.metric { background: #f8f9fa; padding: 20px; border-radius: 8px; text-align: center; border-left: 4px solid #667eea; }
.metric.critical { border-left-color: #dc3545; }
.metric.high { border-left-color: #fd7e14; }
.metric.medium { border-left-color: #ffc107; }
.metric.low { border-left-color: #28a745; }
.finding { border: 1px solid #dee2e6; border-radius: 8px; margin-bottom: 15px; }
.finding-header { padding: 15px; background: #f8f9fa; border-bottom: 1px solid #dee2e6; }
.finding-body { padding: 15px; }
.badge { display: inline-block; padding: 4px 8px; border-radius: 4px; font-size: 12px; font-weight: bold; text-transform: uppercase; }
.severity-critical { background: #dc3545; color: white; }
.severity-high { background: #fd7e14; color: white; }
.severity-medium { background: #ffc107; color: black; }
.severity-low { background: #28a745; color: white; }
.severity-info { background: #17a2b8; color: white; }
.location { font-family: monospace; background: #f8f9fa; padding: 4px 8px; border-radius: 4px; float: right; }
.snippet pre { padding: 8px; border-radius: 4px; overflow-x: auto; }
.no-findings { text-align: center; padding: 60px; color: #6c757d; }
.errors { color: #842029; background: #f8d7da; padding: 15px; border-radius: 8px; }
</style>
</head>
<body>
<div class="container">
<div class="header">
<h1>Valkyrie Security Scan Report</h1>
<p>Scan {{.ScanID}} finished {{.Timestamp}} with status {{.Status}}</p>
<p>Duration: {{.Duration}} | Files scanned: {{.Files}}</p>
</div>
<div class="content">
{{if .Failed}}<div class="summary"><div class="metric critical"><h3>Scan Failed</h3><p>Check logs for details</p></div></div>
{{else}}<div class="summary">
<div class="metric"><h3>{{.Total}}</h3><p>Total Issues</p></div>
<div class="metric critical"><h3>{{.Critical}}</h3><p>Critical</p></div>
<div class="metric high"><h3>{{.High}}</h3><p>High</p></div>
<div class="metric medium"><h3>{{.Medium}}</h3><p>Medium</p></div>
<div class="metric low"><h3>{{.Low}}</h3><p>Low</p></div>
</div>
{{end}}{{if .Errors}}<div class="errors"><h3>Errors</h3><ul>{{range .Errors}}<li>{{.}}</li>{{end}}</ul></div>
{{end}}{{if .Findings}}<h2>Security Findings</h2>
{{range .Findings}}<div class="finding">
<div class="finding-header">
<span class="badge severity-{{.Severity}}">{{.Severity}}</span>
<strong>{{.Title}}</strong>
<span class="location">{{.Location}}</span>
</div>
<div class="finding-body">
<p>{{.Description}}</p>
{{if .Snippet}}<div class="snippet">{{.Snippet}}</div>
{{end}}{{if .Remediation}}<p><strong>Remediation:</strong> {{.Remediation}}</p>
{{end}}<p><strong>Rule ID:</strong> {{.RuleID}} | <strong>Confidence:</strong> {{percent .Confidence}}</p>
</div>
</div>
{{end}}{{else if not .Failed}}<div class="no-findings"><h2>No security issues found!</h2><p>All scanned files are secure.</p></div>
{{end}}</div>
</div>
</body>
</html>
`))

type htmlFinding struct {
	Title       string
	Description string
	Severity    string
	Location    string
	RuleID      string
	Confidence  float64
	Remediation string
	Snippet     template.HTML
}

type htmlPage struct {
	ScanID    string
	Timestamp string
	Status    types.Status
	Duration  string
	Files     int
	Failed    bool

	Total, Critical, High, Medium, Low int

	Errors   []string
	Findings []htmlFinding
}

// WriteHTML writes a standalone HTML report. Findings are ordered most
// severe first; the offending line, when a rule recorded it, is syntax
// highlighted.
func WriteHTML(w io.Writer, res types.ScanResult) error {
	findings := append([]types.Finding(nil), res.Findings...)
	types.SortFindings(findings)
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Severity > findings[j].Severity })

	page := htmlPage{
		ScanID:    res.ScanID,
		Timestamp: res.Timestamp.Format("2006-01-02 15:04:05"),
		Status:    res.Status,
		Duration:  res.Duration.Round(time.Millisecond).String(),
		Files:     len(res.ScannedFiles),
		Failed:    res.Status == types.StatusFailed,
		Total:     len(res.Findings),
		Critical:  res.CriticalCount(),
		High:      res.HighCount(),
		Medium:    res.CountSeverity(types.SevMedium),
		Low:       res.CountSeverity(types.SevLow),
		Errors:    res.Errors,
	}
	for _, f := range findings {
		hf := htmlFinding{
			Title:       f.Title,
			Description: f.Description,
			Severity:    f.Severity.String(),
			Location:    f.Location.String(),
			RuleID:      f.RuleID,
			Confidence:  f.Confidence,
			Remediation: f.Remediation,
		}
		if line, ok := f.Metadata["line_content"].(string); ok && line != "" {
			hf.Snippet = highlightLine(line, f.Location.FilePath)
		}
		page.Findings = append(page.Findings, hf)
	}
	return htmlTemplate.Execute(w, page)
}

// highlightLine renders one source line as inline-styled HTML. It falls back
// to escaped plain text when highlighting fails.
func highlightLine(line, filename string) template.HTML {
	plain := template.HTML("<pre>" + template.HTMLEscapeString(line) + "</pre>")

	lexer := lexers.Match(filepath.Base(filename))
	if lexer == nil {
		if ext := filepath.Ext(filename); ext != "" {
			lexer = lexers.Match("file" + ext)
		}
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := styles.Get("github")
	if style == nil {
		style = styles.Fallback
	}
	iterator, err := lexer.Tokenise(nil, line)
	if err != nil {
		return plain
	}
	var buf bytes.Buffer
	if err := chromahtml.New(chromahtml.WithClasses(false)).Format(&buf, style, iterator); err != nil {
		return plain
	}
	return template.HTML(buf.String())
}
