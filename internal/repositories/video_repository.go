package repositories

import (
	"context"

	"github.com/streamsafe/backend/internal/models"
)

// VideoRepository exposes data access for uploaded videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, filter models.VideoFilter) ([]models.Video, error)
	Delete(ctx context.Context, id string) error
	SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error
	CompleteAnalysis(ctx context.Context, id string, outcome models.SensitivityStatus) error
}
