package shield

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/hazyhaar/flowrec/kit"
)

// RequestID tags each request with a short random ID, stored under
// kit.RequestIDKey and echoed in X-Request-ID. An incoming X-Request-ID is
// kept when it looks sane.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			b := make([]byte, 4)
			rand.Read(b)
			id = hex.EncodeToString(b)
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(kit.WithRequestID(r.Context(), id)))
	})
}
