package httpmw

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cwrk-planet/chat-service/internal/auth"
	"github.com/cwrk-planet/chat-service/internal/domain"
)

type UserSyncer interface {
	Sync(ctx context.Context, u domain.User) error
}

// UserSyncMiddleware refreshes the author projection of the authenticated user.
func UserSyncMiddleware(users UserSyncer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if sess, ok := auth.SessionFromContext(r.Context()); ok {
				// best-effort
				if err := users.Sync(r.Context(), sess.User()); err != nil {
					slog.Warn("user sync failed", "user", sess.UserID, "err", err)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
