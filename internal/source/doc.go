// Package source fetches remote skill documents without letting a skill URL
// reach loopback, private, link-local or cloud metadata addresses.
//
// A URL must be https on port 443 with no embedded credentials. Its host is
// resolved and every returned address is checked; the check is repeated for
// each redirect hop and again when the connection is dialed, and the dialer
// only connects to the addresses it validated. Response bodies are read
// under a byte limit and zip bundles are unpacked with bounded extraction.
package source
