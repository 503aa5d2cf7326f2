package rules

import (
	"context"

	"github.com/valkyrie-scanner/valkyrie/internal/types"
)

// Rule inspects one file at a time and reports findings.
//
// Scan receives the decoded text of the file. Implementations must not keep
// state between calls; the orchestrator may call Scan for many files
// concurrently. A returned error is isolated to this rule and this file.
type Rule interface {
	Metadata() types.RuleMetadata
	IsApplicable(path string) bool
	Scan(ctx context.Context, path, content string) ([]types.Finding, error)
}

// Base provides the default Rule behaviour: every file is applicable and no
// findings are produced. Concrete rules embed it and override what they need.
type Base struct {
	Meta types.RuleMetadata
}

func (b Base) Metadata() types.RuleMetadata { return b.Meta }

func (b Base) IsApplicable(string) bool { return true }

func (b Base) Scan(context.Context, string, string) ([]types.Finding, error) { return nil, nil }
