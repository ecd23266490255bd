package videos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/streamsafe/backend/internal/models"
)

const (
	minTitleLength = 3
	maxTitleLength = 100

	// DefaultMaxUploadBytes is the largest accepted file (100 MiB).
	DefaultMaxUploadBytes int64 = 100 * 1024 * 1024
	// DefaultFolder prefixes every object key.
	DefaultFolder = "video-streaming-app"

	cleanupTimeout = 30 * time.Second
)

var allowedContentTypes = map[string]bool{
	"video/mp4":       true,
	"video/quicktime": true,
	"video/webm":      true,
}

var allowedExtensions = map[string]bool{
	".mp4":  true,
	".mov":  true,
	".webm": true,
}

// UploadRequest carries one user's upload through the orchestrator.
type UploadRequest struct {
	Title        string
	Filename     string
	ContentType  string
	Size         int64
	Body         io.Reader
	OwnerID      string
	ConnectionID string
}

// AnalysisLauncher starts the detached analysis of a stored video.
type AnalysisLauncher interface {
	Start(videoID, connectionID string)
}

// UploaderConfig controls object placement and size limits.
type UploaderConfig struct {
	Folder   string
	MaxBytes int64
}

// Uploader validates uploads, stores the file and its record, and hands the
// video to the analysis stage.
type Uploader struct {
	blobs    BlobStore
	records  RecordStore
	analysis AnalysisLauncher
	cfg      UploaderConfig
	logger   *slog.Logger
	now      func() time.Time
}

// NewUploader wires an Uploader.
func NewUploader(blobs BlobStore, records RecordStore, analysis AnalysisLauncher, cfg UploaderConfig, logger *slog.Logger) *Uploader {
	if cfg.Folder == "" {
		cfg.Folder = DefaultFolder
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxUploadBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		blobs:    blobs,
		records:  records,
		analysis: analysis,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// MaxBytes reports the configured file size limit.
func (u *Uploader) MaxBytes() int64 {
	return u.cfg.MaxBytes
}

// Upload stores the file, persists its record in processing/pending and
// starts analysis. On a record failure the stored blob is removed again.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (models.Video, error) {
	title, ext, err := u.validate(req)
	if err != nil {
		return models.Video{}, err
	}

	key := fmt.Sprintf("%s/%s%s", u.cfg.Folder, uuid.NewString(), ext)
	blob, err := u.blobs.Upload(ctx, key, req.Body, req.Size, req.ContentType)
	if err != nil {
		u.logger.Error("blob upload failed", "key", key, "ownerId", req.OwnerID, "error", err)
		return models.Video{}, fmt.Errorf("%w: %w", ErrUploadFailed, err)
	}

	video := models.Video{
		ID:                uuid.NewString(),
		Title:             title,
		OwnerID:           req.OwnerID,
		OriginalFilename:  req.Filename,
		FileSize:          req.Size,
		BlobID:            blob.ID,
		BlobURL:           blob.URL,
		ProcessingStatus:  models.ProcessingProcessing,
		SensitivityStatus: models.SensitivityPending,
		UploadDate:        u.now().UTC(),
	}

	if err := u.records.Create(ctx, video); err != nil {
		u.logger.Error("persist video record failed", "blobId", blob.ID, "ownerId", req.OwnerID, "error", err)
		u.discardBlob(ctx, blob.ID)
		return models.Video{}, fmt.Errorf("%w: %w", ErrMetadataPersistFailed, err)
	}

	if u.analysis != nil {
		u.analysis.Start(video.ID, req.ConnectionID)
	}

	return video, nil
}

func (u *Uploader) validate(req UploadRequest) (string, string, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return "", "", invalid("Title is required")
	}
	if n := utf8.RuneCountInString(title); n < minTitleLength || n > maxTitleLength {
		return "", "", invalid("Title must be between 3 and 100 characters")
	}
	if req.Body == nil || strings.TrimSpace(req.Filename) == "" {
		return "", "", invalid("Video file is required")
	}

	ext := strings.ToLower(path.Ext(req.Filename))
	contentType := strings.ToLower(strings.TrimSpace(req.ContentType))
	if !allowedContentTypes[contentType] || !allowedExtensions[ext] {
		return "", "", invalid("Invalid file type. Only MP4, MOV, and WebM videos are allowed.")
	}
	if req.Size > u.cfg.MaxBytes {
		return "", "", invalid("File size exceeds 100MB limit")
	}

	return title, ext, nil
}

// discardBlob runs once per failed record write, detached from the request
// so a client disconnect cannot leave the object behind.
func (u *Uploader) discardBlob(ctx context.Context, blobID string) {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	if err := u.blobs.Delete(cleanupCtx, blobID); err != nil {
		u.logger.Error("discard orphaned blob failed", "blobId", blobID, "error", err)
	}
}

// IsValidationError reports whether err was caused by a rejected request.
func IsValidationError(err error) (*ValidationError, bool) {
	var verr *ValidationError
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}
