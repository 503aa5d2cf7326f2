// Package rules defines the Rule capability, a default Base implementation
// and the rule Repository that serves user-defined pattern rules.
package rules
