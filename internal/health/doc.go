// Package health implements the Connection Health Monitor.
//
// The monitor answers "is the transport usable right now, and how fast?"
// by probing the gateway on a fixed cadence with a per-probe deadline.
// It owns the process-wide health snapshot and pulses a degraded signal
// when an open transport starts failing, or when probes fail before the
// transport ever came up.
package health
