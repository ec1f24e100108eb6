// Package core provides a small, stable facade over SkillVet's internal
// engine for external integrations, such as skill registries that score
// uploads in-process.
//
// Example:
//
//	report, err := core.Scan(skillMarkdown)
//	if err != nil { /* handle */ }
//	_ = core.MarshalReport(os.Stdout, report)
package core
