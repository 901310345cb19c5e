package httpmiddleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const correlationIDHeader = "X-Correlation-ID"

type correlationIDKey struct{}

// CorrelationID propagates an inbound X-Correlation-ID (minting one if
// absent) through the request context and echoes it back on the
// response, mirroring the teacher's RequestLogger's reqID generation
// but carried as a context value rather than only a log field, so
// downstream handlers/loggers can attach it without re-deriving it.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(correlationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(correlationIDHeader, id)
		ctx := context.WithValue(r.Context(), correlationIDKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDFromContext returns the request's correlation id, or
// "" if CorrelationID was never applied.
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey{}).(string)
	return id
}
