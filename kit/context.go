package kit

import "context"

// ctxKey keys the per-call values kit carries through endpoints. The
// unexported type keeps other packages from colliding with them.
type ctxKey int

const (
	transportKey ctxKey = iota
	requestIDKey
	remoteAddrKey
)

// WithTransport records which front door ("http", "mcp") a call came in by.
func WithTransport(ctx context.Context, transport string) context.Context {
	return context.WithValue(ctx, transportKey, transport)
}

// GetTransport returns the transport set by WithTransport, "http" if none.
func GetTransport(ctx context.Context) string {
	if v, ok := ctx.Value(transportKey).(string); ok {
		return v
	}
	return "http"
}

// WithRequestID attaches the id echoed in X-Request-ID and in log lines.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID returns the request id, or "".
func GetRequestID(ctx context.Context) string {
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

// WithRemoteAddr attaches the resolved client IP. shield.RequestID sets it
// once; the rate limiter and Logging read it back.
func WithRemoteAddr(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, remoteAddrKey, ip)
}

// GetRemoteAddr returns the client IP, or "" outside an HTTP request.
func GetRemoteAddr(ctx context.Context) string {
	v, _ := ctx.Value(remoteAddrKey).(string)
	return v
}
