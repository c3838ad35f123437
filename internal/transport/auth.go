package transport

import (
	"context"
	"net/http"
	"strings"

	"github.com/codepulse/codepulse/internal/domain/user"
)

type userKey struct{}

// UserResolver resolves an API key to a user. Satisfied by user.Service.
type UserResolver interface {
	ResolveAPIKey(ctx context.Context, key string) (*user.User, error)
}

// UserFromContext returns the authenticated user id from context, if present.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userKey{}).(string)
	return id, ok
}

// AuthMiddleware enforces API key authentication. The key is taken from the
// Authorization bearer header, or from an api_key query parameter for
// clients that cannot set headers.
func AuthMiddleware(resolver UserResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" {
				http.Error(w, "missing api key", http.StatusUnauthorized)
				return
			}

			u, err := resolver.ResolveAPIKey(r.Context(), key)
			if err != nil || u == nil {
				http.Error(w, "invalid api key", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userKey{}, u.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
