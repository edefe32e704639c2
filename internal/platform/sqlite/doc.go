// Package sqlite serves the lexical store from a SQLite snapshot file using
// the pure-Go modernc.org/sqlite driver. The snapshot is produced outside
// this service and opened read-only at runtime.
package sqlite
