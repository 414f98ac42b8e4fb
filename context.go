package rolecalc

import (
	"context"

	"github.com/MrEthical07/rolecalc/internal/transport"
)

// WithRequestID attaches a correlation id to ctx. It is sent as X-Request-Id
// on every outbound call made with ctx and copied into audit events. Without
// one a random id is generated per request.
func WithRequestID(ctx context.Context, id string) context.Context {
	return transport.WithRequestID(ctx, id)
}

func requestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	return transport.RequestIDFromContext(ctx)
}
