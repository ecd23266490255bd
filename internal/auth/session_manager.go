package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

// RefreshTokenStore persists the single live refresh token of each user.
// An empty token means the user has no active session.
type RefreshTokenStore interface {
	SetRefreshToken(ctx context.Context, userID, token string) error
	RefreshToken(ctx context.Context, userID string) (string, error)
}

// Manager issues session tokens and enforces one active refresh token per user.
// Access tokens are never revoked; they simply expire.
type Manager struct {
	tokens *TokenService
	store  RefreshTokenStore
}

// NewManager constructs a Manager backed by the provided token service and store.
func NewManager(tokens *TokenService, store RefreshTokenStore) *Manager {
	if tokens == nil || store == nil {
		panic("auth: token service and refresh token store must not be nil")
	}
	return &Manager{tokens: tokens, store: store}
}

// Issue creates a new access/refresh pair for userID. The refresh token
// replaces whatever was stored before, invalidating older refresh tokens.
func (m *Manager) Issue(ctx context.Context, userID string) (models.SessionTokens, error) {
	access, err := m.tokens.IssueAccess(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}
	refresh, err := m.tokens.IssueRefresh(userID)
	if err != nil {
		return models.SessionTokens{}, err
	}

	if err := m.store.SetRefreshToken(ctx, userID, refresh); err != nil {
		return models.SessionTokens{}, fmt.Errorf("store refresh token: %w", err)
	}

	return models.SessionTokens{AccessToken: access, RefreshToken: refresh}, nil
}

// Refresh exchanges the user's current refresh token for a new access token.
func (m *Manager) Refresh(ctx context.Context, refreshToken string) (string, error) {
	userID, err := m.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return "", err
	}

	current, err := m.store.RefreshToken(ctx, userID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", fmt.Errorf("load refresh token: %w", err)
	}

	if current == "" || subtle.ConstantTimeCompare([]byte(current), []byte(refreshToken)) != 1 {
		return "", ErrInvalidToken
	}

	return m.tokens.IssueAccess(userID)
}

// Revoke clears the stored refresh token for userID.
func (m *Manager) Revoke(ctx context.Context, userID string) error {
	if err := m.store.SetRefreshToken(ctx, userID, ""); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	return nil
}

// VerifyAccess resolves an access token to its user id.
func (m *Manager) VerifyAccess(token string) (string, error) {
	return m.tokens.VerifyAccess(token)
}
