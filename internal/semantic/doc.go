// Package semantic adds optional LLM-backed analysis on top of the pattern
// analyzers: threat findings merged into the injection category, and a
// domain reputation pass that clears unknown-URL findings for a skill's own
// official domains.
package semantic
