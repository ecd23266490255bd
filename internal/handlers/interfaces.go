package handlers

import (
	"context"
	"net/http"

	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/videos"
)

// UserStore captures the persistence operations required by the auth handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
}

// SessionManager issues, refreshes and revokes authentication tokens.
type SessionManager interface {
	Issue(ctx context.Context, userID string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (string, error)
	Revoke(ctx context.Context, userID string) error
	VerifyAccess(token string) (string, error)
}

// VideoUploader accepts new uploads.
type VideoUploader interface {
	Upload(ctx context.Context, req videos.UploadRequest) (models.Video, error)
	MaxBytes() int64
}

// VideoCatalog serves reads and deletes with access control applied.
type VideoCatalog interface {
	List(ctx context.Context, caller models.Identity, status string) ([]models.Video, error)
	Get(ctx context.Context, caller models.Identity, id string) (models.Video, error)
	Delete(ctx context.Context, caller models.Identity, id string) error
}

// RealtimeEndpoint upgrades browser connections for progress events.
type RealtimeEndpoint interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
}
