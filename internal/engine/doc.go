// Package engine runs the scan pipeline for SkillVet. It expands targets
// into skill files, URLs and image references, retrieves their content,
// runs the analyzers and returns TrustReports. This package is internal;
// external consumers should use the stable facade in pkg/core.
package engine
