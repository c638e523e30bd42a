// Package auditstore is the Postgres persistence sink for audit batches.
// The audit_log table schema itself belongs to the data gateway's
// migrations; this package only inserts.
package auditstore
