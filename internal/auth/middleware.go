package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	applog "khorcha/internal/log"
)

// UserHeader names the user when no signing secret is configured.
const UserHeader = "X-User-ID"

type contextKey struct{}

// WithUser returns a copy of ctx carrying userID.
func WithUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// UserFromContext returns the user stored by Middleware.
func UserFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(contextKey{}).(string)
	return id, ok && id != ""
}

// Middleware rejects requests without a user with 401 and stores the user
// id in the request context otherwise.
func Middleware(tokens *TokenService, logger *applog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = applog.Default(applog.ComponentAuth)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUser(tokens, r)
			if err != nil {
				logger.WarnContext(r.Context(), "Unauthenticated request",
					applog.FieldPath, r.URL.Path,
					applog.FieldError, err.Error())
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), userID)))
		})
	}
}

func resolveUser(tokens *TokenService, r *http.Request) (string, error) {
	if !tokens.Enabled() {
		id := strings.TrimSpace(r.Header.Get(UserHeader))
		if id == "" {
			return "", ErrMissingUser
		}
		return id, nil
	}
	token, err := BearerToken(r.Header.Get("Authorization"))
	if err != nil {
		// EventSource cannot set headers.
		if token = strings.TrimSpace(r.URL.Query().Get("access_token")); token == "" {
			return "", err
		}
	}
	return tokens.Parse(token)
}
