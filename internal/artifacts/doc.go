// Package artifacts extracts skill documents from packaged bundles (zip
// archives, tarballs and OCI image layers) under fixed size and count limits,
// and flags executable binaries shipped next to a skill.
package artifacts
