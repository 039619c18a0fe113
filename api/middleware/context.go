package middleware

import "context"

type contextKey string

const (
	ctxWaiterID   contextKey = "waiter_id"
	ctxWaiterName contextKey = "waiter_name"
	ctxRequestID  contextKey = "request_id"
)

func WaiterIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxWaiterID).(string); ok {
		return v
	}
	return ""
}

func WaiterNameFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxWaiterName).(string); ok {
		return v
	}
	return ""
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxRequestID).(string); ok {
		return v
	}
	return ""
}

// WithWaiter injects the signed-in waiter into the context.
func WithWaiter(ctx context.Context, id, name string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxWaiterID, id)
	return context.WithValue(ctx, ctxWaiterName, name)
}
