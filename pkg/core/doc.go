// Package core provides a small, stable facade over Valkyrie's internal
// engine for external integrations. It re-exports a narrow API surface so
// other tools can depend on a stable import path without reaching into
// internal packages.
//
// Example:
//
//	cfg := core.DefaultConfig(".")
//	res, err := core.Scan(ctx, cfg)
//	if err != nil { /* invalid configuration */ }
//	_ = core.MarshalResult(os.Stdout, res)
package core
