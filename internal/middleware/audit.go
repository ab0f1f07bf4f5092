package middleware

import (
	"net/http"

	logpkg "github.com/benvon/fictag/internal/logger"
	"github.com/benvon/fictag/internal/request"
	"go.uber.org/zap"
)

// Audit logs rate limit violations and server errors
func Audit(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			fields := func() []zap.Field {
				return []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", logpkg.SanitizePath(r.URL.Path)),
					zap.String("ip", logpkg.SanitizeString(request.ClientIP(r), logpkg.MaxGeneralStringLength)),
					zap.String("request_id", request.RequestID(r)),
				}
			}

			switch status := wrapped.statusCode; {
			case status == http.StatusTooManyRequests:
				logger.Warn("rate_limit_violation", fields()...)
			case status >= http.StatusInternalServerError:
				logger.Warn("server_error_response", append(fields(), zap.Int("status_code", status))...)
			}
		})
	}
}
