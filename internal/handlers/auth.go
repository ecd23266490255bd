package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamsafe/backend/internal/auth"
	"github.com/streamsafe/backend/internal/logging"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

const maxAuthBodyBytes = 64 * 1024

var validate = validator.New(validator.WithRequiredStructEnabled())

// AuthHandler implements user authentication endpoints.
type AuthHandler struct {
	Users      UserStore
	Sessions   SessionManager
	NowFunc    func() time.Time
	BcryptCost int
}

type credentialsRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type userResponse struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
}

type registerResponse struct {
	Message string       `json:"message"`
	User    userResponse `json:"user"`
}

type loginResponse struct {
	Message      string       `json:"message"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	User         userResponse `json:"user"`
}

type refreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type meResponse struct {
	User userResponse `json:"user"`
}

// Register handles POST /api/auth/register. New accounts always get the user role.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, registerValidationMessage(err))
		return
	}

	if _, err := h.Users.FindByEmail(ctx, req.Email); err == nil {
		respondMessage(ctx, w, http.StatusBadRequest, "User already exists with this email")
		return
	} else if !errors.Is(err, repositories.ErrNotFound) {
		logger.Error("register user lookup failed", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.cost())
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		respondMessage(ctx, w, http.StatusBadRequest, "Password must be at most 72 characters")
		return
	}
	if err != nil {
		logger.Error("register failed to hash password", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	now := h.now()
	user := models.User{
		ID:        uuid.NewString(),
		Email:     req.Email,
		Password:  string(hashed),
		Role:      models.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondMessage(ctx, w, http.StatusBadRequest, "User already exists with this email")
			return
		}
		logger.Error("register failed to create user", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during registration")
		return
	}

	logger.Info("user registered", "userId", user.ID)
	respondJSON(ctx, w, http.StatusCreated, registerResponse{
		Message: "User registered successfully",
		User:    toUserResponse(user.Identity()),
	})
}

// Login handles POST /api/auth/login. Unknown emails and wrong passwords
// produce the same response.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondMessage(ctx, w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(req); err != nil {
		respondMessage(ctx, w, http.StatusBadRequest, "Please provide email and password")
		return
	}

	user, err := h.Users.FindByEmail(ctx, req.Email)
	if err != nil {
		if !errors.Is(err, repositories.ErrNotFound) {
			logger.Error("login user lookup failed", "error", err)
			respondMessage(ctx, w, http.StatusInternalServerError, "Server error during login")
			return
		}
		respondMessage(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		logger.Warn("login password mismatch", "userId", user.ID)
		respondMessage(ctx, w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	tokens, err := h.Sessions.Issue(ctx, user.ID)
	if err != nil {
		logger.Error("failed to issue session", "error", err, "userId", user.ID)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during login")
		return
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Message:      "Login successful",
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		User:         toUserResponse(user.Identity()),
	})
}

// Refresh exchanges the current refresh token for a new access token.
func (h AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("invalid refresh payload", "error", err)
	}

	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondMessage(ctx, w, http.StatusUnauthorized, "Refresh token required")
		return
	}

	access, err := h.Sessions.Refresh(ctx, req.RefreshToken)
	if err != nil {
		if !errors.Is(err, auth.ErrInvalidToken) {
			logger.Error("refresh failed", "error", err)
		}
		respondMessage(ctx, w, http.StatusUnauthorized, "Invalid refresh token")
		return
	}

	respondJSON(ctx, w, http.StatusOK, refreshResponse{AccessToken: access})
}

// Logout clears the caller's refresh token. Issued access tokens stay valid until they expire.
func (h AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}

	if err := h.Sessions.Revoke(ctx, identity.ID); err != nil && !errors.Is(err, repositories.ErrNotFound) {
		logging.FromContext(ctx).Error("logout failed", "error", err)
		respondMessage(ctx, w, http.StatusInternalServerError, "Server error during logout")
		return
	}

	respondMessage(ctx, w, http.StatusOK, "Logout successful")
}

// Me returns the authenticated caller.
func (h AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		respondMessage(ctx, w, http.StatusUnauthorized, "No token provided")
		return
	}
	respondJSON(ctx, w, http.StatusOK, meResponse{User: toUserResponse(identity)})
}

func registerValidationMessage(err error) string {
	const missing = "Please provide email and password"

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return missing
	}
	for _, fe := range verrs {
		if fe.Tag() == "required" {
			return missing
		}
	}
	for _, fe := range verrs {
		switch {
		case fe.Field() == "Password" && fe.Tag() == "min":
			return "Password must be at least 6 characters"
		case fe.Field() == "Password" && fe.Tag() == "max":
			return "Password must be at most 72 characters"
		}
	}
	return missing
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxAuthBodyBytes)
	return json.NewDecoder(r.Body).Decode(dst)
}

func toUserResponse(identity models.Identity) userResponse {
	return userResponse{ID: identity.ID, Email: identity.Email, Role: identity.Role}
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}

func (h AuthHandler) cost() int {
	if h.BcryptCost > 0 {
		return h.BcryptCost
	}
	return bcrypt.DefaultCost
}
