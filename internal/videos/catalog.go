package videos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

// Catalog answers read and delete requests with owner-or-admin access rules.
type Catalog struct {
	records RecordStore
	blobs   BlobStore
	logger  *slog.Logger
}

// NewCatalog constructs a Catalog.
func NewCatalog(records RecordStore, blobs BlobStore, logger *slog.Logger) *Catalog {
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{records: records, blobs: blobs, logger: logger}
}

// List returns the videos visible to caller, newest first. Admins see every
// video; everyone else sees only their own. An unknown status is ignored.
func (c *Catalog) List(ctx context.Context, caller models.Identity, status string) ([]models.Video, error) {
	var filter models.VideoFilter
	if !caller.IsAdmin() {
		filter.OwnerID = caller.ID
	}
	if s, ok := models.ParseSensitivityStatus(status); ok {
		filter.Sensitivity = s
	}

	videos, err := c.records.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return videos, nil
}

// Get returns one video if caller owns it or is an admin.
func (c *Catalog) Get(ctx context.Context, caller models.Identity, id string) (models.Video, error) {
	video, err := c.records.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("find video: %w", err)
	}

	if video.OwnerID != caller.ID && !caller.IsAdmin() {
		return models.Video{}, ErrForbidden
	}
	return video, nil
}

// Delete removes the blob best effort and then the record.
func (c *Catalog) Delete(ctx context.Context, caller models.Identity, id string) error {
	video, err := c.Get(ctx, caller, id)
	if err != nil {
		return err
	}

	if c.blobs != nil && video.BlobID != "" {
		if err := c.blobs.Delete(ctx, video.BlobID); err != nil {
			c.logger.Error("delete blob failed, removing record anyway", "videoId", video.ID, "blobId", video.BlobID, "error", err)
		}
	}

	if err := c.records.Delete(ctx, video.ID); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete video: %w", err)
	}
	return nil
}
