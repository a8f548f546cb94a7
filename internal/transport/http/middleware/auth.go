package httpmw

import (
	"encoding/json"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/auth"
)

type SessionResolver interface {
	ResolveSession(r *http.Request) (auth.Session, error)
}

// AuthMiddleware requires a valid access token and stores the session in the
// request context.
func AuthMiddleware(resolver SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := resolver.ResolveSession(r)
			if err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error(), "code": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(auth.WithSession(r.Context(), sess)))
		})
	}
}
