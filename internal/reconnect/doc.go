// Package reconnect implements the Reconnection Controller.
//
// State machine: idle -> attempting -> {idle on success, exhausted after
// the attempt ceiling}. Delays grow exponentially from a base up to a cap.
// Exhaustion is terminal until an explicit Reset; it is surfaced through
// Status, never silently retried forever.
package reconnect
