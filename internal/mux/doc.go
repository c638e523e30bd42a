// Package mux implements the Channel Multiplexer.
//
// Many logical subscribers share one transport subscription per resource
// key, reference counted. The first subscriber opens the underlying
// subscription, the last one closes it. Concurrent subscribes for the same
// key collapse into a single transport open; closes happen exactly once.
package mux
