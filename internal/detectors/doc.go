// Package detectors implements the five weighted skill analyzers:
// permissions, injection, dependencies, behavioral and content.
//
// Pattern tables come from package rules; the analyzers hold only the
// matching logic and the context rules (negation, code blocks, threat
// listings) that decide how much a match counts.
package detectors
