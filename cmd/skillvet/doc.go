// Package skillvet provides the command-line interface for the SkillVet
// scanner. It configures subcommands (scan, batch, rules, baseline, etc.),
// parses flags, and executes the selected command.
//
// Typical usage from a main package:
//
//	package main
//	import "github.com/varalys/skillvet/cmd/skillvet"
//	func main() { skillvet.Execute() }
package skillvet
