package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/streamsafe/backend/internal/db"
	"github.com/streamsafe/backend/internal/models"
)

const uniqueViolation = "23505"

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	role := user.Role
	if role == "" {
		role = models.RoleUser
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, email, password_hash, role, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, user.ID, user.Email, user.Password, string(role), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	if !validID(id) {
		return models.User{}, ErrNotFound
	}
	return r.findOne(ctx, "id", id)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is always one of the fixed names above.
	row := conn.QueryRow(ctx, `
        SELECT id::text, email, password_hash, role, refresh_token, created_at, updated_at
        FROM users
        WHERE `+column+` = $1
    `, value)

	var (
		user         models.User
		role         string
		refreshToken *string
	)
	if err := row.Scan(&user.ID, &user.Email, &user.Password, &role, &refreshToken, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}

	user.Role = models.Role(role)
	if refreshToken != nil {
		user.RefreshToken = *refreshToken
	}
	return user, nil
}

// SetRefreshToken replaces the user's current refresh token. An empty token clears it.
func (r *PostgresUserRepository) SetRefreshToken(ctx context.Context, userID, token string) error {
	if !validID(userID) {
		return ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET refresh_token = NULLIF($2, ''), updated_at = NOW()
        WHERE id = $1
    `, userID, token)
	if err != nil {
		return fmt.Errorf("update refresh token: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// RefreshToken returns the user's current refresh token, or "" when none is active.
func (r *PostgresUserRepository) RefreshToken(ctx context.Context, userID string) (string, error) {
	user, err := r.FindByID(ctx, userID)
	if err != nil {
		return "", err
	}
	return user.RefreshToken, nil
}

// SetRole changes the role of the account registered under email.
func (r *PostgresUserRepository) SetRole(ctx context.Context, email string, role models.Role) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET role = $2, updated_at = NOW()
        WHERE email = $1
    `, email, string(role))
	if err != nil {
		return fmt.Errorf("update user role: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// PostgresVideoRepository provides PostgreSQL-backed persistence for uploaded videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	processing := video.ProcessingStatus
	if strings.TrimSpace(string(processing)) == "" {
		processing = models.ProcessingUploading
	}
	sensitivity := video.SensitivityStatus
	if strings.TrimSpace(string(sensitivity)) == "" {
		sensitivity = models.SensitivityPending
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, title, owner_id, original_filename, file_size, blob_id, blob_url, processing_status, sensitivity_status, upload_date)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, video.ID, video.Title, video.OwnerID, video.OriginalFilename, video.FileSize, video.BlobID, video.BlobURL,
		string(processing), string(sensitivity), video.UploadDate)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrConflict
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

const selectVideo = `
        SELECT v.id::text, v.title, v.owner_id::text, u.email, v.original_filename, v.file_size,
               v.blob_id, v.blob_url, v.processing_status, v.sensitivity_status, v.upload_date
        FROM videos v
        JOIN users u ON u.id = v.owner_id
`

// FindByID loads a single video together with its owner's email.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	if !validID(id) {
		return models.Video{}, ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, selectVideo+`WHERE v.id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// List returns videos matching filter, newest upload first.
func (r *PostgresVideoRepository) List(ctx context.Context, filter models.VideoFilter) ([]models.Video, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.OwnerID != "" {
		if !validID(filter.OwnerID) {
			return nil, nil
		}
		args = append(args, filter.OwnerID)
		clauses = append(clauses, fmt.Sprintf("v.owner_id = $%d", len(args)))
	}
	if filter.Sensitivity != "" {
		args = append(args, string(filter.Sensitivity))
		clauses = append(clauses, fmt.Sprintf("v.sensitivity_status = $%d", len(args)))
	}

	query := selectVideo
	if len(clauses) > 0 {
		query += "WHERE " + strings.Join(clauses, " AND ") + "\n"
	}
	query += "ORDER BY v.upload_date DESC"

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query videos: %w", err)
	}
	defer rows.Close()

	var out []models.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		out = append(out, video)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate videos: %w", err)
	}

	return out, nil
}

// Delete removes a video record.
func (r *PostgresVideoRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "delete video", `DELETE FROM videos WHERE id = $1`, id)
}

// SetProcessingStatus moves a video along the pipeline lifecycle without touching its verdict.
func (r *PostgresVideoRepository) SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	return r.exec(ctx, "update processing status", `
        UPDATE videos
        SET processing_status = $2
        WHERE id = $1
    `, id, string(status))
}

// CompleteAnalysis records a final verdict. It is the only write that changes
// sensitivity_status, and it always marks processing as completed alongside it.
func (r *PostgresVideoRepository) CompleteAnalysis(ctx context.Context, id string, outcome models.SensitivityStatus) error {
	if !outcome.IsOutcome() {
		return ErrInvalidOutcome
	}
	return r.exec(ctx, "complete analysis", `
        UPDATE videos
        SET processing_status = $2, sensitivity_status = $3
        WHERE id = $1
    `, id, string(models.ProcessingCompleted), string(outcome))
}

func (r *PostgresVideoRepository) exec(ctx context.Context, op, query, id string, args ...any) error {
	if !validID(id) {
		return ErrNotFound
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, query, append([]any{id}, args...)...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var (
		video       models.Video
		processing  string
		sensitivity string
	)
	if err := row.Scan(&video.ID, &video.Title, &video.OwnerID, &video.OwnerEmail, &video.OriginalFilename, &video.FileSize,
		&video.BlobID, &video.BlobURL, &processing, &sensitivity, &video.UploadDate); err != nil {
		return models.Video{}, err
	}
	video.ProcessingStatus = models.ProcessingStatus(processing)
	video.SensitivityStatus = models.SensitivityStatus(sensitivity)
	video.UploadDate = video.UploadDate.UTC()
	return video, nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ VideoRepository = (*PostgresVideoRepository)(nil)
