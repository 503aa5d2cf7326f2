// Package valkyrie provides the command-line interface for the Valkyrie
// scanner. It configures subcommands (scan, rules, plugins, config, report,
// history, baseline, ignore, completion), parses flags, and executes the
// selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/valkyrie-scanner/valkyrie/cmd/valkyrie"
//	func main() { valkyrie.Execute() }
package valkyrie
