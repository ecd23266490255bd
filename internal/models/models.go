package models

import "time"

// Role determines which videos an account can see and manage.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User represents an account within the streamsafe platform.
type User struct {
	ID           string
	Email        string
	Password     string
	Role         Role
	RefreshToken string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity is the subset of a user that is safe to attach to a request.
type Identity struct {
	ID    string
	Email string
	Role  Role
}

// IsAdmin reports whether the identity carries the admin role.
func (i Identity) IsAdmin() bool {
	return i.Role == RoleAdmin
}

// Identity strips secret fields from the user.
func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email, Role: u.Role}
}

// ProcessingStatus tracks where a video is in the upload pipeline.
type ProcessingStatus string

const (
	ProcessingUploading  ProcessingStatus = "uploading"
	ProcessingProcessing ProcessingStatus = "processing"
	ProcessingCompleted  ProcessingStatus = "completed"
	ProcessingFailed     ProcessingStatus = "failed"
)

// SensitivityStatus is the outcome of the sensitivity analysis.
type SensitivityStatus string

const (
	SensitivityPending SensitivityStatus = "pending"
	SensitivitySafe    SensitivityStatus = "safe"
	SensitivityFlagged SensitivityStatus = "flagged"
)

// IsOutcome reports whether s is a terminal analysis verdict.
func (s SensitivityStatus) IsOutcome() bool {
	return s == SensitivitySafe || s == SensitivityFlagged
}

// ParseSensitivityStatus returns the status named by value, if any.
func ParseSensitivityStatus(value string) (SensitivityStatus, bool) {
	switch s := SensitivityStatus(value); s {
	case SensitivityPending, SensitivitySafe, SensitivityFlagged:
		return s, true
	default:
		return "", false
	}
}

// Video stores an uploaded file's metadata and its two status axes.
// A safe or flagged SensitivityStatus always implies ProcessingCompleted.
type Video struct {
	ID                string
	Title             string
	OwnerID           string
	OwnerEmail        string
	OriginalFilename  string
	FileSize          int64
	BlobID            string
	BlobURL           string
	ProcessingStatus  ProcessingStatus
	SensitivityStatus SensitivityStatus
	UploadDate        time.Time
}

// VideoFilter narrows a video listing. Empty fields do not filter.
type VideoFilter struct {
	OwnerID     string
	Sensitivity SensitivityStatus
}

// SessionTokens groups the bearer credentials issued to authenticated users.
type SessionTokens struct {
	AccessToken  string
	RefreshToken string
}
