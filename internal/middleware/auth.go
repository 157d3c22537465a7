package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/respond"
)

// AccessTokenCookie names the cookie carrying the access token.
const AccessTokenCookie = "accessToken"

// Authenticator resolves an access token to an account.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (models.PublicAccount, error)
}

type accountKey struct{}

// WithAccount stores the authenticated account on the context.
func WithAccount(ctx context.Context, account models.PublicAccount) context.Context {
	ctx = context.WithValue(ctx, accountKey{}, account)
	return logging.WithAccountID(ctx, account.ID)
}

// AccountFromContext returns the account stored by RequireAuth.
func AccountFromContext(ctx context.Context) (models.PublicAccount, bool) {
	account, ok := ctx.Value(accountKey{}).(models.PublicAccount)
	return account, ok
}

// AccessToken extracts the access token from the cookie, falling back to a bearer
// Authorization header.
func AccessToken(r *http.Request) string {
	if cookie, err := r.Cookie(AccessTokenCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

// RequireAuth rejects requests without a valid access token and stores the account on the
// request context for downstream handlers.
func RequireAuth(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, err := auth.Authenticate(r.Context(), AccessToken(r))
			if err != nil {
				respond.Error(r.Context(), w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithAccount(r.Context(), account)))
		})
	}
}
