// Package database provides the Postgres connection pool backing the
// audit store.
package database
