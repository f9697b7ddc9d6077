// Package kit is the transport-agnostic endpoint layer: the HTTP handlers and
// MCP tools of unifistat call the same Endpoint functions.
package kit

import "context"

// Endpoint is one operation, decoupled from the transport that invokes it.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
