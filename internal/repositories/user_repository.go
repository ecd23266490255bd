package repositories

import (
	"context"

	"github.com/streamsafe/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	SetRefreshToken(ctx context.Context, userID, token string) error
	RefreshToken(ctx context.Context, userID string) (string, error)
	SetRole(ctx context.Context, email string, role models.Role) error
}
