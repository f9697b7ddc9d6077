package shield

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/hazyhaar/unifistat/idgen"
	"github.com/hazyhaar/unifistat/kit"
)

// RequestID assigns an id to each request and stores it in the context
// (kit.WithRequestID), the X-Request-ID response header and a per-request
// logger under LoggerKey. gen defaults to "req_" + UUIDv7. The client IP,
// resolved through ClientIP with trustedProxies, goes to kit.WithRemoteAddr.
func RequestID(logger *slog.Logger, gen idgen.Generator, trustedProxies ...netip.Prefix) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if gen == nil {
		gen = idgen.Prefixed("req_", idgen.Default)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := gen()
			ctx := kit.WithRequestID(r.Context(), id)
			ctx = kit.WithTransport(ctx, "http")
			ip := ClientIP(r, trustedProxies)
			ctx = kit.WithRemoteAddr(ctx, ip)
			w.Header().Set("X-Request-ID", id)

			reqLogger := logger.With(
				"request_id", id,
				"method", r.Method,
				"path", r.URL.Path,
				"remote_addr", ip,
			)
			ctx = context.WithValue(ctx, LoggerKey, reqLogger)
			reqLogger.Debug("request")

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
