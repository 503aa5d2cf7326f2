package rules

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/valkyrie-scanner/valkyrie/internal/ignore"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// PatternRule reports every regular-expression match in applicable files.
// It backs rules defined in local rule files.
type PatternRule struct {
	Base
	re           *regexp.Regexp
	filePatterns []string
	remediation  string
	confidence   float64
}

// NewPatternRule compiles a pattern rule. An empty filePatterns list makes the
// rule applicable to every file.
func NewPatternRule(meta types.RuleMetadata, pattern string, filePatterns []string, remediation string) (*PatternRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("rule %s: compile pattern: %w", meta.ID, err)
	}
	return &PatternRule{
		Base:         Base{Meta: meta},
		re:           re,
		filePatterns: append([]string(nil), filePatterns...),
		remediation:  remediation,
		confidence:   0.7,
	}, nil
}

func (r *PatternRule) IsApplicable(path string) bool {
	if len(r.filePatterns) == 0 {
		return true
	}
	return ignore.MatchAny(path, r.filePatterns)
}

func (r *PatternRule) Scan(ctx context.Context, path, content string) ([]types.Finding, error) {
	var out []types.Finding
	sc := bufio.NewScanner(strings.NewReader(content))
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		if line%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		txt := sc.Text()
		for _, loc := range r.re.FindAllStringIndex(txt, -1) {
			match := txt[loc[0]:loc[1]]
			out = append(out, types.Finding{
				ID:          types.FindingID(path, strconv.Itoa(line), r.Meta.ID, match),
				Title:       r.Meta.Name,
				Description: r.Meta.Description,
				Severity:    r.Meta.Severity,
				Category:    r.Meta.Category,
				Location:    types.Location{FilePath: path, Line: line, ColumnStart: loc[0], ColumnEnd: loc[1]},
				RuleID:      r.Meta.ID,
				Confidence:  r.confidence,
				Metadata: map[string]any{
					"matched_text": truncate(match, 50),
					"line_content": strings.TrimSpace(txt),
				},
				Remediation: r.remediation,
			})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
