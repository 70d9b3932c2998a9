package middleware

import (
	"log/slog"
	"net/http"
	"time"
)

// NewRequestLogger logs each request when it arrives and again when its handler returns.
// For a WebSocket upgrade the second line marks the end of the session.
func NewRequestLogger(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			var ip string
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if ok {
				ip = reqMeta.IP
			}

			logger.Info("Incoming HTTP request",
				slog.String("method", r.Method),
				slog.String("uri", r.RequestURI),
				slog.String("ip", ip),
			)
			next.ServeHTTP(w, r)

			attrs := []any{slog.String("uri", r.RequestURI), slog.Duration("duration", time.Since(start))}
			if ok {
				attrs = append(attrs, slog.String("userID", reqMeta.UserID()))
			}
			logger.Debug("HTTP request finished", attrs...)
		})
	}
}
