// Package service assembles the realtime subsystem and exposes the
// surface the UI layer consumes: subscribe/unsubscribe, connection
// status, and audit logging.
package service
