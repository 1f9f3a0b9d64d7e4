// Package session holds the relay's connection bookkeeping.
//
//   - Registry: live connection <-> client identifier, both directions
//   - Pool: insertion-ordered identifiers waiting to be offered as a match
//
// Neither type is synchronized. The router owns both behind a single lock so
// registration, matching and cleanup are observed atomically.
package session
