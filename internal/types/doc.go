// Package types holds the shared data model of Valkyrie: severities,
// categories, findings, rule metadata and scan results.
package types
