// Package gateway talks to the managed change-feed provider.
//
// The gateway:
//   - Maintains one websocket connection to the provider
//   - Correlates subscribe/unsubscribe/ping/refresh commands with responses
//   - Decodes change notifications into model.ChangeEvent
//   - Detects stale transports via keepalive pings
//
// The provider's wire protocol beyond this thin command envelope is not
// owned here; subscriptions and session handling are the whole surface.
package gateway
