// Package router implements the Event Router.
//
// Change notifications fan out to the handlers registered for their
// resource key in registration order, within the dispatching goroutine, so
// per-key ordering follows transport delivery order. Handler panics are
// isolated and recorded; they never stop sibling handlers.
package router
