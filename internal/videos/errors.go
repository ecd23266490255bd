package videos

import "errors"

var (
	// ErrUploadFailed indicates the blob store rejected or could not receive the file.
	ErrUploadFailed = errors.New("failed to upload video to cloud storage")
	// ErrMetadataPersistFailed indicates the blob was stored but its record could not be.
	ErrMetadataPersistFailed = errors.New("failed to save video metadata")
	// ErrNotFound indicates the requested video does not exist.
	ErrNotFound = errors.New("video not found")
	// ErrForbidden indicates the caller neither owns the video nor is an admin.
	ErrForbidden = errors.New("access denied")
)

// ValidationError reports a rejected upload request. Message is safe to show clients.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(message string) error {
	return &ValidationError{Message: message}
}
