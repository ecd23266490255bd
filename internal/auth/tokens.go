package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken covers every reason a presented token is not accepted:
// bad signature, wrong algorithm, expiry, or a refresh token that has been superseded.
var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the payload carried by both token kinds.
type Claims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

// TokenService signs and verifies access and refresh tokens with independent keys.
type TokenService struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// TokenOption customises a TokenService.
type TokenOption func(*TokenService)

// WithClock overrides the time source used for issuing and validating tokens.
func WithClock(now func() time.Time) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService constructs a TokenService. The secrets must be distinct and non-empty.
func NewTokenService(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, opts ...TokenOption) (*TokenService, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, errors.New("auth: token secrets must be provided")
	}
	if accessSecret == refreshSecret {
		return nil, errors.New("auth: access and refresh secrets must differ")
	}
	if accessTTL <= 0 || refreshTTL <= 0 {
		return nil, errors.New("auth: token lifetimes must be positive")
	}

	s := &TokenService{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// IssueAccess returns a short-lived token identifying userID.
func (s *TokenService) IssueAccess(userID string) (string, error) {
	return s.issue(userID, s.accessSecret, s.accessTTL)
}

// IssueRefresh returns a long-lived token identifying userID.
func (s *TokenService) IssueRefresh(userID string) (string, error) {
	return s.issue(userID, s.refreshSecret, s.refreshTTL)
}

// VerifyAccess returns the user id carried by a valid access token.
func (s *TokenService) VerifyAccess(token string) (string, error) {
	return s.verify(token, s.accessSecret)
}

// VerifyRefresh returns the user id carried by a cryptographically valid refresh token.
// It does not check whether the token is still the user's current one; Manager does.
func (s *TokenService) VerifyRefresh(token string) (string, error) {
	return s.verify(token, s.refreshSecret)
}

func (s *TokenService) issue(userID string, secret []byte, ttl time.Duration) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", errors.New("auth: user id must be provided")
	}

	now := s.now()
	claims := Claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (s *TokenService) verify(token string, secret []byte) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrInvalidToken
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" {
		return "", ErrInvalidToken
	}
	return claims.UserID, nil
}
