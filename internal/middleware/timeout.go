package middleware

import (
	"net/http"
	"time"
)

const (
	// DefaultRequestTimeout leaves room for a slow generation backend
	DefaultRequestTimeout = 120 * time.Second

	timeoutBody = `{"success":false,"error":"Service Unavailable","message":"Request timed out"}`
)

// Timeout bounds handler execution. The handler's context is cancelled at
// the deadline, which also aborts an in-flight backend call.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, timeout, timeoutBody)
	}
}
