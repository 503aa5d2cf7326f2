// Package config loads Valkyrie configuration from local and global YAML files.
// Every document is checked against an embedded JSON schema before decoding,
// so unknown options are rejected rather than ignored. CLI code layers files
// with Merge and maps the result into engine configuration.
package config
