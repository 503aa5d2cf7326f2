// Package engine contains the core scanning logic for Valkyrie. It selects
// target files, fans them out to a bounded worker pool, runs every applicable
// rule and merges the findings into one ScanResult. This package is internal;
// external consumers should use the stable facade in pkg/core.
package engine
