package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/streamsafe/backend/internal/auth"
	"github.com/streamsafe/backend/internal/logging"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/videos"
)

const (
	multipartMemory   = 32 << 20
	multipartOverhead = 1 << 20
)

// VideoHandler provides upload, listing, lookup and delete endpoints.
type VideoHandler struct {
	Uploader VideoUploader
	Catalog  VideoCatalog
}

type uploadedVideo struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	ProcessingStatus  models.ProcessingStatus  `json:"processingStatus"`
	SensitivityStatus models.SensitivityStatus `json:"sensitivityStatus"`
	UploadDate        time.Time                `json:"uploadDate"`
}

type uploadResponse struct {
	Message string        `json:"message"`
	Video   uploadedVideo `json:"video"`
}

type videoSummary struct {
	ID                string                   `json:"id"`
	Title             string                   `json:"title"`
	UploadDate        time.Time                `json:"uploadDate"`
	FileSize          int64                    `json:"fileSize"`
	ProcessingStatus  models.ProcessingStatus  `json:"processingStatus"`
	SensitivityStatus models.SensitivityStatus `json:"sensitivityStatus"`
	URL               string                   `json:"url"`
	Owner             string                   `json:"owner,omitempty"`
}

type videoDetail struct {
	videoSummary
	OriginalFilename string `json:"originalFilename"`
	BlobID           string `json:"blobId"`
}

type listResponse struct {
	Count  int            `json:"count"`
	Videos []videoSummary `json:"videos"`
}

// Upload handles POST /api/videos/upload with multipart fields title, video and socketId.
func (h VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.Uploader.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondMessage(ctx, w, http.StatusBadRequest, "File size exceeds 100MB limit")
			return
		case !errors.Is(err, http.ErrNotMultipart):
			logger.Warn("invalid multipart upload", "error", err)
			respondMessage(ctx, w, http.StatusBadRequest, "Invalid upload request")
			return
		}
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	req := videos.UploadRequest{
		Title:        r.FormValue("title"),
		OwnerID:      identity.ID,
		ConnectionID: r.FormValue("socketId"),
	}

	file, header, err := r.FormFile("video")
	switch {
	case err == nil:
		defer file.Close()
		req.Body = file
		req.Filename = header.Filename
		req.ContentType = header.Header.Get("Content-Type")
		req.Size = header.Size
	case !errors.Is(err, http.ErrMissingFile) && !errors.Is(err, http.ErrNotMultipart):
		logger.Warn("read uploaded file", "error", err)
	}

	video, err := h.Uploader.Upload(ctx, req)
	if err != nil {
		h.respondUploadError(w, r, err)
		return
	}

	logger.Info("video uploaded", "videoId", video.ID, "size", video.FileSize)
	respondJSON(ctx, w, http.StatusCreated, uploadResponse{
		Message: "Video uploaded successfully",
		Video: uploadedVideo{
			ID:                video.ID,
			Title:             video.Title,
			ProcessingStatus:  video.ProcessingStatus,
			SensitivityStatus: video.SensitivityStatus,
			UploadDate:        video.UploadDate,
		},
	})
}

func (h VideoHandler) respondUploadError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	if verr, ok := videos.IsValidationError(err); ok {
		respondMessage(ctx, w, http.StatusBadRequest, verr.Message)
		return
	}

	logging.FromContext(ctx).Error("upload failed", "error", err)
	switch {
	case errors.Is(err, videos.ErrUploadFailed):
		respondMessage(ctx, w, http.StatusInternalServerError, "Failed to upload video to cloud storage")
	case errors.Is(err, videos.ErrMetadataPersistFailed):
		respondMessage(ctx, w, http.StatusInternalServerError, "Failed to save video metadata")
	default:
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during upload")
	}
}

// List handles GET /api/videos?status=safe|flagged|pending.
func (h VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}

	list, err := h.Catalog.List(ctx, identity, r.URL.Query().Get("status"))
	if err != nil {
		logging.FromContext(ctx).Error("list videos failed", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error fetching videos")
		return
	}

	out := make([]videoSummary, 0, len(list))
	for _, v := range list {
		out = append(out, toSummary(v, identity.IsAdmin()))
	}
	respondJSON(ctx, w, http.StatusOK, listResponse{Count: len(out), Videos: out})
}

// Get handles GET /api/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}

	video, err := h.Catalog.Get(ctx, identity, chi.URLParam(r, "id"))
	if err != nil {
		respondCatalogError(w, r, err, "Server error fetching video")
		return
	}

	respondJSON(ctx, w, http.StatusOK, videoDetail{
		videoSummary:     toSummary(video, identity.IsAdmin()),
		OriginalFilename: video.OriginalFilename,
		BlobID:           video.BlobID,
	})
}

// Delete handles DELETE /api/videos/{id}.
func (h VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}

	id := chi.URLParam(r, "id")
	if err := h.Catalog.Delete(ctx, identity, id); err != nil {
		respondCatalogError(w, r, err, "Server error deleting video")
		return
	}

	logging.FromContext(ctx).Info("video deleted", "videoId", id)
	respondMessage(ctx, w, http.StatusOK, "Video deleted successfully")
}

func respondCatalogError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	ctx := r.Context()
	switch {
	case errors.Is(err, videos.ErrNotFound):
		respondMessage(ctx, w, http.StatusNotFound, "Video not found")
	case errors.Is(err, videos.ErrForbidden):
		respondMessage(ctx, w, http.StatusForbidden, "Access denied")
	default:
		logging.FromContext(ctx).Error("video request failed", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, fallback)
	}
}

func toSummary(v models.Video, admin bool) videoSummary {
	s := videoSummary{
		ID:                v.ID,
		Title:             v.Title,
		UploadDate:        v.UploadDate,
		FileSize:          v.FileSize,
		ProcessingStatus:  v.ProcessingStatus,
		SensitivityStatus: v.SensitivityStatus,
		URL:               v.BlobURL,
	}
	if admin {
		s.Owner = v.OwnerEmail
	}
	return s
}
