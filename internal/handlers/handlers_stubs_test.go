package handlers

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/crypto/bcrypt"

	"github.com/streamsafe/backend/internal/auth"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

type inMemoryUserStore struct {
	mu   sync.Mutex
	byID map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{byID: make(map[string]models.User)}
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == user.Email {
			return repositories.ErrConflict
		}
	}
	s.byID[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.byID[id]; ok {
		return u, nil
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) SetRefreshToken(_ context.Context, userID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[userID]
	if !ok {
		return repositories.ErrNotFound
	}
	u.RefreshToken = token
	s.byID[userID] = u
	return nil
}

func (s *inMemoryUserStore) RefreshToken(ctx context.Context, userID string) (string, error) {
	u, err := s.FindByID(ctx, userID)
	return u.RefreshToken, err
}

func (s *inMemoryUserStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *inMemoryUserStore) addUser(t *testing.T, id, email, password string, role models.Role) {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	s.mu.Lock()
	s.byID[id] = models.User{ID: id, Email: email, Password: string(hashed), Role: role}
	s.mu.Unlock()
}

type testServer struct {
	handler  http.Handler
	users    *inMemoryUserStore
	sessions *auth.Manager
}

func newTestServer(t *testing.T, deps Dependencies) *testServer {
	t.Helper()

	users := newInMemoryUserStore()
	tokens, err := auth.NewTokenService("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	if err != nil {
		t.Fatalf("token service: %v", err)
	}
	sessions := auth.NewManager(tokens, users)

	deps.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	deps.Users = users
	deps.Sessions = sessions
	return &testServer{handler: NewRouter(deps), users: users, sessions: sessions}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) login(t *testing.T, email, password string) loginResponse {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	var resp loginResponse
	decode(t, rec, &resp)
	return resp
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
}

func messageOf(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var resp messageResponse
	decode(t, rec, &resp)
	return resp.Message
}
