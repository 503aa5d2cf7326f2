// Package scanerr defines the error kinds Valkyrie distinguishes. Each kind
// decides how far a failure propagates: configuration and load errors are
// fatal, read and rule errors are isolated to one file or one rule.
package scanerr

import (
	"errors"
	"fmt"
	"strings"
)

// Kind sentinels. Match with errors.Is.
var (
	ErrConfig  = errors.New("configuration error")
	ErrLoad    = errors.New("rule load error")
	ErrRead    = errors.New("file read error")
	ErrRule    = errors.New("rule execution error")
	ErrParse   = errors.New("parse error")
	ErrTimeout = errors.New("timeout")
)

// Error carries the kind of a failure plus where it happened.
type Error struct {
	Kind   error
	Op     string
	Path   string
	RuleID string
	Err    error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.RuleID != "" {
		fmt.Fprintf(&b, " [rule %s]", e.RuleID)
	}
	if e.Path != "" {
		fmt.Fprintf(&b, " %s", e.Path)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == e.Kind }

// Config reports an invalid option or configuration document.
func Config(op string, err error) error {
	return &Error{Kind: ErrConfig, Op: op, Err: err}
}

// Load reports a failure to assemble the rule set.
func Load(op string, err error) error {
	return &Error{Kind: ErrLoad, Op: op, Err: err}
}

// Read reports a file that could not be read.
func Read(path string, err error) error {
	return &Error{Kind: ErrRead, Op: "read", Path: path, Err: err}
}

// Rule reports a single rule failing on a single file.
func Rule(ruleID, path string, err error) error {
	return &Error{Kind: ErrRule, Op: "scan", Path: path, RuleID: ruleID, Err: err}
}

// Parse reports malformed structured input.
func Parse(path string, err error) error {
	return &Error{Kind: ErrParse, Op: "parse", Path: path, Err: err}
}

// Timeout reports a unit of work that exceeded its deadline.
func Timeout(path string, err error) error {
	return &Error{Kind: ErrTimeout, Op: "scan", Path: path, Err: err}
}
