package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/aruvi/kot-gateway/pkg/logger"
)

const (
	waiterIDHeader   = "X-Waiter-Id"
	waiterNameHeader = "X-Waiter-Name"

	maxWaiterNameLen = 64
)

// WaiterContext reads the identity a handset keeps after sign-in and makes it
// available to handlers and log lines. Requests without it pass through.
func WaiterContext(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := strings.TrimSpace(r.Header.Get(waiterIDHeader))
			if id == "" {
				next.ServeHTTP(w, r)
				return
			}
			name := strings.TrimSpace(r.Header.Get(waiterNameHeader))
			if utf8.RuneCountInString(name) > maxWaiterNameLen {
				name = string([]rune(name)[:maxWaiterNameLen])
			}

			ctx := WithWaiter(r.Context(), id, name)
			if logg != nil {
				ctx = logg.WithWaiterID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
