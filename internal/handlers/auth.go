package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/takemehome/accounts/types"
)

// Authenticator resolves an Authorization header value to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, authorization string) (types.AuthUser, error)
}

// RequireAuth rejects requests without a valid access token and stores the
// authenticated user in the request context.
func RequireAuth(authenticator Authenticator, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := authenticator.Authenticate(r.Context(), r.Header.Get("Authorization"))
			if err != nil {
				writeError(w, r, logger, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withAuthUser(r.Context(), user)))
		})
	}
}
