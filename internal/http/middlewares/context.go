package middlewares

import "context"

type ctxKey string

const (
	ctxRequestIDKey ctxKey = "request_id"
	ctxNonceKey     ctxKey = "csp_nonce"
)

func setRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ctxRequestIDKey, requestID)
}

// GetRequestID obtiene el request ID del contexto ("" si no hay).
func GetRequestID(ctx context.Context) string {
	if v, ok := ctx.Value(ctxRequestIDKey).(string); ok {
		return v
	}
	return ""
}

func setNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, ctxNonceKey, nonce)
}

// GetNonce devuelve el nonce CSP del request, inyectado por WithSecurityHeaders.
func GetNonce(ctx context.Context) string {
	if v, ok := ctx.Value(ctxNonceKey).(string); ok {
		return v
	}
	return ""
}
