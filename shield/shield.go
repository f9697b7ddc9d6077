// Package shield holds the HTTP middleware of the unifistat API: security
// headers, HEAD handling, request ids, Basic authentication and a per-client
// rate limit that keeps API callers from hammering the controller.
//
// Usage:
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(logger) {
//	    r.Use(mw)
//	}
//	r.Use(shield.BasicAuth("unifistat", users))
package shield

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger from the context.
// Returns slog.Default() if no logger was set.
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns the middleware applied to every API route, in order:
// HeadToGet, SecurityHeaders, RequestID. X-Forwarded-For is honored only from
// trustedProxies.
func DefaultStack(logger *slog.Logger, trustedProxies ...netip.Prefix) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		RequestID(logger, nil, trustedProxies...),
	}
}

// HeadToGet serves HEAD with the GET handler so health probes using HEAD do
// not get 405. net/http drops the body.
func HeadToGet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			r.Method = http.MethodGet
		}
		next.ServeHTTP(w, r)
	})
}
