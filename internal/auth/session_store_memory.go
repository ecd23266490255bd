package auth

import (
	"context"
	"sync"

	"github.com/streamsafe/backend/internal/repositories"
)

// NewInMemoryRefreshTokenStore returns a RefreshTokenStore backed by a map,
// for tests and local tooling. Users must be added with AddUser first.
func NewInMemoryRefreshTokenStore() *InMemoryRefreshTokenStore {
	return &InMemoryRefreshTokenStore{tokens: make(map[string]string)}
}

// InMemoryRefreshTokenStore implements RefreshTokenStore.
type InMemoryRefreshTokenStore struct {
	mu     sync.RWMutex
	tokens map[string]string
}

// AddUser registers userID with no active refresh token.
func (s *InMemoryRefreshTokenStore) AddUser(userID string) {
	s.mu.Lock()
	if _, ok := s.tokens[userID]; !ok {
		s.tokens[userID] = ""
	}
	s.mu.Unlock()
}

// SetRefreshToken overwrites the stored token; "" clears it.
func (s *InMemoryRefreshTokenStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[userID]; !ok {
		return repositories.ErrNotFound
	}
	s.tokens[userID] = token
	return nil
}

// RefreshToken returns the stored token for userID.
func (s *InMemoryRefreshTokenStore) RefreshToken(_ context.Context, userID string) (string, error) {
	s.mu.RLock()
	token, ok := s.tokens[userID]
	s.mu.RUnlock()
	if !ok {
		return "", repositories.ErrNotFound
	}
	return token, nil
}
