package handlers

import (
	"net/http"
	"time"

	"github.com/vidfriends/accounts/internal/middleware"
	"github.com/vidfriends/accounts/internal/models"
)

const refreshTokenCookie = "refreshToken"

// cookieJar writes the session cookies.
type cookieJar struct {
	secure bool
	now    func() time.Time
}

func (c cookieJar) cookie(name, value string, expires time.Time) *http.Cookie {
	now := time.Now
	if c.now != nil {
		now = c.now
	}
	maxAge := int(expires.Sub(now()).Seconds())
	if maxAge <= 0 {
		maxAge = -1
	}
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c cookieJar) set(w http.ResponseWriter, tokens models.TokenPair) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, tokens.AccessToken, tokens.AccessExpiresAt))
	http.SetCookie(w, c.cookie(refreshTokenCookie, tokens.RefreshToken, tokens.RefreshExpiresAt))
}

func (c cookieJar) clear(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(middleware.AccessTokenCookie, "", time.Time{}))
	http.SetCookie(w, c.cookie(refreshTokenCookie, "", time.Time{}))
}
