package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/streamsafe/backend/internal/auth"
	"github.com/streamsafe/backend/internal/logging"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

// AccessVerifier resolves an access token to a user id.
type AccessVerifier interface {
	VerifyAccess(token string) (string, error)
}

// UserFinder loads the account behind a verified token.
type UserFinder interface {
	FindByID(ctx context.Context, id string) (models.User, error)
}

// Authenticate requires a valid bearer access token and attaches the caller's
// identity to the request context. Every failure is answered with 401.
func Authenticate(tokens AccessVerifier, users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				writeMessage(w, http.StatusUnauthorized, "No token provided")
				return
			}

			userID, err := tokens.VerifyAccess(token)
			if err != nil {
				writeMessage(w, http.StatusUnauthorized, "Invalid or expired access token")
				return
			}

			user, err := users.FindByID(r.Context(), userID)
			if err != nil {
				if !errors.Is(err, repositories.ErrNotFound) {
					logging.FromContext(r.Context()).Error("load authenticated user", "userId", userID, "error", err)
				}
				writeMessage(w, http.StatusUnauthorized, "User not found")
				return
			}

			ctx := auth.WithIdentity(r.Context(), user.Identity())
			ctx = logging.WithLogger(ctx, logging.FromContext(ctx).With("user_id", user.ID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
