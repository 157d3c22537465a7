package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vidfriends/accounts/internal/apperr"
	"github.com/vidfriends/accounts/internal/logging"
	"github.com/vidfriends/accounts/internal/models"
	"github.com/vidfriends/accounts/internal/repositories"
)

// TokenConfig carries signing secrets and lifetimes. It is built by the caller; the manager
// never reads the environment.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

// RefreshTokenStore persists the single live refresh token of an account.
// ReplaceRefreshToken must only write when the stored value equals current and report
// repositories.ErrNotFound otherwise.
type RefreshTokenStore interface {
	SetRefreshToken(ctx context.Context, accountID, token string) error
	ReplaceRefreshToken(ctx context.Context, accountID, current, next string) error
}

// AccessClaims is the identity carried by a verified access token.
type AccessClaims struct {
	AccountID string
	Email     string
	Handle    string
	FullName  string
	ExpiresAt time.Time
}

type accessClaims struct {
	Email    string `json:"email"`
	Handle   string `json:"username"`
	FullName string `json:"fullName"`
	jwt.RegisteredClaims
}

const (
	invalidAccessToken  = "invalid access token"
	invalidRefreshToken = "invalid refresh token"
)

// Manager issues, verifies, rotates and revokes access and refresh tokens.
type Manager struct {
	cfg   TokenConfig
	store RefreshTokenStore
	now   func() time.Time
}

// Option customizes a Manager.
type Option func(*Manager)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager constructs a Manager signing with the provided configuration.
func NewManager(cfg TokenConfig, store RefreshTokenStore, opts ...Option) *Manager {
	if store == nil {
		panic("auth: refresh token store must not be nil")
	}
	m := &Manager{
		cfg:   cfg,
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueAccessToken signs a short-lived token carrying the account identity.
func (m *Manager) IssueAccessToken(account models.Account) (string, error) {
	token, _, err := m.signAccess(account, m.now())
	return token, err
}

// IssueRefreshToken signs a long-lived token carrying only the account id. Nothing is stored.
func (m *Manager) IssueRefreshToken(account models.Account) (string, error) {
	token, _, err := m.signRefresh(account.ID, m.now())
	return token, err
}

func (m *Manager) signAccess(account models.Account, now time.Time) (string, time.Time, error) {
	expires := now.Add(m.cfg.AccessTTL)
	claims := accessClaims{
		Email:            account.Email,
		Handle:           account.Handle,
		FullName:         account.FullName,
		RegisteredClaims: m.registered(account.ID, now, expires),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.AccessSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	return signed, expires, nil
}

func (m *Manager) signRefresh(accountID string, now time.Time) (string, time.Time, error) {
	expires := now.Add(m.cfg.RefreshTTL)
	claims := m.registered(accountID, now, expires)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(m.cfg.RefreshSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return signed, expires, nil
}

// registered builds the standard claims; jti makes tokens issued within the same second differ.
func (m *Manager) registered(subject string, now, expires time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    m.cfg.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
		ID:        uuid.NewString(),
	}
}

func (m *Manager) newPair(account models.Account) (models.TokenPair, error) {
	now := m.now()
	access, accessExp, err := m.signAccess(account, now)
	if err != nil {
		return models.TokenPair{}, err
	}
	refresh, refreshExp, err := m.signRefresh(account.ID, now)
	if err != nil {
		return models.TokenPair{}, err
	}
	return models.TokenPair{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// IssueTokenPair signs both tokens and records the refresh token as the account's live one.
func (m *Manager) IssueTokenPair(ctx context.Context, account models.Account) (models.TokenPair, error) {
	pair, err := m.newPair(account)
	if err != nil {
		return models.TokenPair{}, apperr.TokenPersistence(err)
	}

	if err := m.store.SetRefreshToken(ctx, account.ID, pair.RefreshToken); err != nil {
		logging.FromContext(ctx).Error("failed to persist refresh token", "error", err, "accountId", account.ID)
		return models.TokenPair{}, apperr.TokenPersistence(err)
	}

	return pair, nil
}

// VerifyAccessToken checks signature and expiry only.
func (m *Manager) VerifyAccessToken(token string) (AccessClaims, error) {
	var claims accessClaims
	if _, err := m.parse(token, m.cfg.AccessSecret, &claims); err != nil {
		return AccessClaims{}, apperr.Unauthorized(invalidAccessToken)
	}
	if claims.Subject == "" {
		return AccessClaims{}, apperr.Unauthorized(invalidAccessToken)
	}

	out := AccessClaims{
		AccountID: claims.Subject,
		Email:     claims.Email,
		Handle:    claims.Handle,
		FullName:  claims.FullName,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// RefreshSubject checks signature and expiry of a refresh token and returns its account id.
func (m *Manager) RefreshSubject(token string) (string, error) {
	var claims jwt.RegisteredClaims
	if _, err := m.parse(token, m.cfg.RefreshSecret, &claims); err != nil || claims.Subject == "" {
		return "", apperr.Unauthorized(invalidRefreshToken)
	}
	return claims.Subject, nil
}

// VerifyRefreshToken accepts a refresh token only if it is cryptographically valid, belongs
// to the account and equals the stored value.
func (m *Manager) VerifyRefreshToken(token string, account models.Account) error {
	subject, err := m.RefreshSubject(token)
	if err != nil {
		return err
	}
	if subject != account.ID || account.RefreshToken == "" ||
		subtle.ConstantTimeCompare([]byte(token), []byte(account.RefreshToken)) != 1 {
		return apperr.Unauthorized(invalidRefreshToken)
	}
	return nil
}

// Rotate exchanges a valid refresh token for a new pair. The stored token is swapped
// conditionally, so of two concurrent rotations with the same token only one succeeds.
func (m *Manager) Rotate(ctx context.Context, token string, account models.Account) (models.TokenPair, error) {
	if err := m.VerifyRefreshToken(token, account); err != nil {
		return models.TokenPair{}, err
	}

	pair, err := m.newPair(account)
	if err != nil {
		return models.TokenPair{}, apperr.TokenPersistence(err)
	}

	if err := m.store.ReplaceRefreshToken(ctx, account.ID, token, pair.RefreshToken); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.TokenPair{}, apperr.Unauthorized(invalidRefreshToken)
		}
		logging.FromContext(ctx).Error("failed to rotate refresh token", "error", err, "accountId", account.ID)
		return models.TokenPair{}, apperr.TokenPersistence(err)
	}

	return pair, nil
}

// Revoke clears the stored refresh token. Revoking twice, or revoking an unknown account,
// is not an error.
func (m *Manager) Revoke(ctx context.Context, accountID string) error {
	if accountID == "" {
		return nil
	}
	if err := m.store.SetRefreshToken(ctx, accountID, ""); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil
		}
		return apperr.Internal("failed to end session", err)
	}
	return nil
}

func (m *Manager) parse(token, secret string, claims jwt.Claims) (*jwt.Token, error) {
	if token == "" {
		return nil, jwt.ErrTokenMalformed
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}
	return jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	}, opts...)
}
