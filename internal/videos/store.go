package videos

import (
	"context"
	"io"

	"github.com/streamsafe/backend/internal/models"
)

// Blob identifies an object held by the blob store.
type Blob struct {
	ID  string
	URL string
}

// BlobStore uploads and deletes video files.
type BlobStore interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (Blob, error)
	Delete(ctx context.Context, id string) error
}

// RecordStore is the subset of the video repository used by this package.
type RecordStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	List(ctx context.Context, filter models.VideoFilter) ([]models.Video, error)
	Delete(ctx context.Context, id string) error
	SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error
	CompleteAnalysis(ctx context.Context, id string, outcome models.SensitivityStatus) error
}

// Notifier delivers an event to one realtime connection. Delivery is best effort.
type Notifier interface {
	EmitTo(connectionID, event string, payload any)
}

// Event names pushed while a video is analysed.
const (
	EventProgress = "processing-progress"
	EventComplete = "processing-complete"
	EventError    = "processing-error"
)

// ProgressEvent is the payload of EventProgress.
type ProgressEvent struct {
	VideoID     string `json:"videoId"`
	Progress    int    `json:"progress"`
	CurrentStep int    `json:"currentStep"`
	TotalSteps  int    `json:"totalSteps"`
	Message     string `json:"message"`
}

// CompleteEvent is the payload of EventComplete.
type CompleteEvent struct {
	VideoID string                   `json:"videoId"`
	Status  models.SensitivityStatus `json:"status"`
	Message string                   `json:"message"`
}

// ErrorEvent is the payload of EventError.
type ErrorEvent struct {
	VideoID string `json:"videoId"`
	Message string `json:"message"`
}
