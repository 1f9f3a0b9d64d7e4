// Package database opens the optional storage backends used to persist the
// evaluation log:
//   - PostgreSQL via a pgx connection pool
//   - MongoDB via the official driver
//
// Both are off by default; the JSON file is the only required output.
package database
