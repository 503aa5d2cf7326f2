// Package iam provides the iam-scanner plugin, which flags overly permissive
// cloud IAM policy statements in policy and infrastructure files.
package iam

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/valkyrie-scanner/valkyrie/internal/rules"
	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

const (
	PluginName    = "iam-scanner"
	PluginVersion = "0.1.0"
	RuleID        = "iam-001"
)

// RiskyPattern is a policy construct that grants more than it should. Its
// severity overrides the rule default on findings.
type RiskyPattern struct {
	Name        string
	Re          *regexp.Regexp
	Description string
	Severity    types.Severity
}

// DefaultPatterns covers AWS, GCP and Azure.
var DefaultPatterns = []RiskyPattern{
	{
		Name:        "AWS Wildcard Resource",
		Re:          regexp.MustCompile(`(?i)"Resource"\s*:\s*"\*"`),
		Description: "Policy allows access to all resources",
		Severity:    types.SevCritical,
	},
	{
		Name:        "AWS Admin Access",
		Re:          regexp.MustCompile(`(?i)"Action"\s*:\s*"\*"`),
		Description: "Policy grants all actions (admin access)",
		Severity:    types.SevCritical,
	},
	{
		Name:        "GCP All Scopes",
		Re:          regexp.MustCompile(`(?i)https://www\.googleapis\.com/auth/cloud-platform`),
		Description: "Grants access to all Google Cloud Platform services",
		Severity:    types.SevHigh,
	},
	{
		Name:        "Azure Contributor Role",
		Re:          regexp.MustCompile(`(?i)"roleDefinitionId".*"b24988ac-6180-42a0-ab88-20f7382dd24c"`),
		Description: "Grants broad contributor access to Azure resources",
		Severity:    types.SevMedium,
	},
}

var (
	policyExtensions = map[string]bool{".json": true, ".yaml": true, ".yml": true, ".tf": true, ".hcl": true}
	policyNameHints  = []string{"policy", "iam", "role", "permission", "access", "cloudformation", "terraform", "main.tf"}
)

const remediation = "Apply principle of least privilege. Specify exact resources and actions needed."

// Rule scans policy files for risky statements.
type Rule struct {
	rules.Base
	patterns []RiskyPattern
}

// NewRule returns the IAM rule over the default patterns.
func NewRule() *Rule {
	return &Rule{
		Base: rules.Base{Meta: types.RuleMetadata{
			ID:          RuleID,
			Name:        "IAM Configuration Scanner",
			Description: "Detects overly permissive IAM policies and configurations",
			Category:    types.CatIAMConfig,
			Severity:    types.SevHigh,
			Version:     "1.0.0",
			Author:      "Valkyrie Core Team",
			Tags:        []string{"iam", "aws", "gcp", "azure", "permissions"},
			Enabled:     true,
		}},
		patterns: DefaultPatterns,
	}
}

// IsApplicable requires both a policy-like extension and a policy-like name.
func (r *Rule) IsApplicable(path string) bool {
	if !policyExtensions[strings.ToLower(filepath.Ext(path))] {
		return false
	}
	name := strings.ToLower(filepath.Base(path))
	for _, h := range policyNameHints {
		if strings.Contains(name, h) {
			return true
		}
	}
	return false
}

func (r *Rule) Scan(ctx context.Context, path, content string) ([]types.Finding, error) {
	var out []types.Finding
	provider := ""
	for i, line := range strings.Split(content, "\n") {
		if i%512 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		lineNum := i + 1
		for _, p := range r.patterns {
			for _, loc := range p.Re.FindAllStringIndex(line, -1) {
				if provider == "" {
					provider = DetectProvider(content)
				}
				col := utf8.RuneCountInString(line[:loc[0]])
				out = append(out, types.Finding{
					ID:          types.FindingID(path, strconv.Itoa(lineNum), p.Name, strconv.Itoa(col)),
					Title:       fmt.Sprintf("Risky IAM Configuration: %s", p.Name),
					Description: p.Description,
					Severity:    p.Severity,
					Category:    r.Meta.Category,
					Location: types.Location{
						FilePath:    path,
						Line:        lineNum,
						ColumnStart: col,
						ColumnEnd:   utf8.RuneCountInString(line[:loc[1]]),
					},
					RuleID:     r.Meta.ID,
					Confidence: 0.8,
					Metadata: map[string]any{
						"pattern_name":   p.Name,
						"line_content":   strings.TrimSpace(line),
						"cloud_provider": provider,
					},
					Remediation: remediation,
				})
			}
		}
	}
	return out, nil
}

// DetectProvider guesses the cloud provider of a policy document from
// marker substrings, checking AWS, then GCP, then Azure.
func DetectProvider(content string) string {
	lower := strings.ToLower(content)
	switch {
	case strings.Contains(lower, "amazonaws.com") || strings.Contains(lower, "aws:"):
		return "AWS"
	case strings.Contains(lower, "googleapis.com") || strings.Contains(lower, "gcp"):
		return "GCP"
	case strings.Contains(lower, "azure") || strings.Contains(lower, "microsoft.com"):
		return "Azure"
	}
	return "Unknown"
}

// Plugin serves the IAM rule.
type Plugin struct{}

// New returns the iam-scanner plugin.
func New() *Plugin { return &Plugin{} }

func (*Plugin) Name() string    { return PluginName }
func (*Plugin) Version() string { return PluginVersion }

func (*Plugin) Initialize(context.Context, map[string]any) error { return nil }

func (*Plugin) Rules(context.Context) ([]rules.Rule, error) {
	return []rules.Rule{NewRule()}, nil
}

func (*Plugin) Cleanup(context.Context) error { return nil }
