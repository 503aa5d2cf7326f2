// Package secrets provides the secrets-detector plugin: a single rule that
// finds credentials in source text by pattern, filtered by entropy and scored
// by surrounding keywords.
package secrets

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

const (
	PluginName    = "secrets-detector"
	PluginVersion = "1.0.0"
	RuleID        = "secrets-001"
)

// Rule detects secrets line by line.
type Rule struct {
	rules.Base
	patterns []Pattern
}

// NewRule returns the secrets rule over the given patterns, or the defaults
// when none are given.
func NewRule(patterns ...Pattern) *Rule {
	if len(patterns) == 0 {
		patterns = DefaultPatterns
	}
	return &Rule{
		Base: rules.Base{Meta: types.RuleMetadata{
			ID:          RuleID,
			Name:        "Generic Secrets Detection",
			Description: "Detects API keys, tokens, passwords, and other secrets",
			Category:    types.CatSecrets,
			Severity:    types.SevCritical,
			Version:     "1.0.0",
			Author:      "Valkyrie Core Team",
			Tags:        []string{"secrets", "credentials", "api-keys"},
			Enabled:     true,
		}},
		patterns: patterns,
	}
}

func (r *Rule) IsApplicable(path string) bool {
	return !skipExtensions[strings.ToLower(filepath.Ext(path))]
}

func (r *Rule) Scan(ctx context.Context, path, content string) ([]types.Finding, error) {
	var out []types.Finding
	for i, line := range strings.Split(content, "\n") {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lower := strings.ToLower(line)
		if skipLine(strings.TrimSpace(lower)) {
			continue
		}
		lineNum := i + 1
		for _, p := range r.patterns {
			for _, loc := range p.Re.FindAllStringIndex(line, -1) {
				match := line[loc[0]:loc[1]]
				if p.MinEntropy > 0 && entropy(match) < p.MinEntropy {
					continue
				}
				if p.Validate != nil && !p.Validate(match) {
					continue
				}
				out = append(out, types.Finding{
					ID:          types.FindingID(path, strconv.Itoa(lineNum), match),
					Title:       fmt.Sprintf("Potential %s detected", p.Name),
					Description: fmt.Sprintf("Found pattern matching %s in %s", p.Name, path),
					Severity:    r.Meta.Severity,
					Category:    r.Meta.Category,
					Location: types.Location{
						FilePath:    path,
						Line:        lineNum,
						ColumnStart: utf8.RuneCountInString(line[:loc[0]]),
						ColumnEnd:   utf8.RuneCountInString(line[:loc[1]]),
					},
					RuleID:     r.Meta.ID,
					Confidence: confidence(lower, p.Keywords),
					Metadata: map[string]any{
						"pattern_name": p.Name,
						"matched_text": truncate(match, 50),
						"line_content": strings.TrimSpace(line),
					},
					Remediation: fmt.Sprintf("Remove or secure the %s. Consider using environment variables or secure vault services.", p.Name),
				})
			}
		}
	}
	return out, nil
}

// skipLine drops comment lines and lines that look like documentation.
func skipLine(trimmedLower string) bool {
	if strings.HasPrefix(trimmedLower, "#") || strings.HasPrefix(trimmedLower, "//") {
		return true
	}
	for _, m := range falsePositiveMarkers {
		if strings.Contains(trimmedLower, m) {
			return true
		}
	}
	return false
}

// confidence starts at 0.5, adds 0.1 per keyword present on the line and
// subtracts 0.3 if the line looks like test data.
func confidence(lowerLine string, keywords []string) float64 {
	c := 0.5
	for _, k := range keywords {
		if strings.Contains(lowerLine, k) {
			c += 0.1
		}
	}
	for _, t := range testIndicators {
		if strings.Contains(lowerLine, t) {
			c -= 0.3
			break
		}
	}
	return types.ClampConfidence(c)
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// Plugin serves the secrets rule. The option strict_validation (bool)
// switches to StrictPatterns.
type Plugin struct {
	strict bool
}

// New returns the secrets-detector plugin.
func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string    { return PluginName }
func (*Plugin) Version() string { return PluginVersion }

func (p *Plugin) Initialize(_ context.Context, cfg map[string]any) error {
	p.strict = false
	if v, ok := cfg["strict_validation"]; ok {
		b, ok := v.(bool)
		if !ok {
			return fmt.Errorf("option strict_validation: want bool, got %T", v)
		}
		p.strict = b
	}
	return nil
}

func (p *Plugin) Rules(context.Context) ([]rules.Rule, error) {
	if p.strict {
		return []rules.Rule{NewRule(StrictPatterns()...)}, nil
	}
	return []rules.Rule{NewRule()}, nil
}

func (*Plugin) Cleanup(context.Context) error { return nil }
