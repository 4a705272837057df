package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/Beat-Sequencer/pkg/logger"
)

// RequestIDHeader carries the request identifier in both directions.
const RequestIDHeader = "X-Request-ID"

// RequestID propagates the caller's X-Request-ID or generates a UUID, stores
// it in the request context for logging, and echoes it on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, requestID)
		ctx := logger.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the identifier stored by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	return logger.RequestIDFromContext(ctx)
}
