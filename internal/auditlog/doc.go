// Package auditlog implements the Audit Log Batcher.
//
// Callers log fire-and-forget; a periodic loop drains the FIFO queue in
// batches to a persistence sink. A failed batch returns to the front of
// the queue whole, each entry retried up to a ceiling before being
// dropped. Flushes are reentrancy-guarded so no entry is ever in two
// batches at once.
package auditlog
