// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx stdlib driver. Every store accepts a store.DBTX so
// the same code runs on a pool or inside a transaction; Transactor binds all
// of them to one transaction. The schema lives in migrations/ and is embedded
// for goose.
package postgres
