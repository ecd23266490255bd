package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
	"github.com/streamsafe/backend/internal/videos"
)

type memoryBlobs struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
	deleted   []string
}

func newMemoryBlobs() *memoryBlobs {
	return &memoryBlobs{objects: make(map[string][]byte)}
}

func (b *memoryBlobs) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (videos.Blob, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return videos.Blob{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[key] = data
	return videos.Blob{ID: key, URL: "https://cdn.test/" + key}, nil
}

func (b *memoryBlobs) Delete(_ context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, id)
	if b.deleteErr != nil {
		return b.deleteErr
	}
	delete(b.objects, id)
	return nil
}

type memoryRecords struct {
	mu     sync.Mutex
	videos map[string]models.Video
}

func newMemoryRecords() *memoryRecords {
	return &memoryRecords{videos: make(map[string]models.Video)}
}

func (m *memoryRecords) Create(_ context.Context, video models.Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videos[video.ID] = video
	return nil
}

func (m *memoryRecords) FindByID(_ context.Context, id string) (models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return v, nil
}

func (m *memoryRecords) List(_ context.Context, filter models.VideoFilter) ([]models.Video, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Video
	for _, v := range m.videos {
		if filter.OwnerID != "" && v.OwnerID != filter.OwnerID {
			continue
		}
		if filter.Sensitivity != "" && v.SensitivityStatus != filter.Sensitivity {
			continue
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UploadDate.After(out[j].UploadDate) })
	return out, nil
}

func (m *memoryRecords) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(m.videos, id)
	return nil
}

func (m *memoryRecords) SetProcessingStatus(context.Context, string, models.ProcessingStatus) error {
	return nil
}

func (m *memoryRecords) CompleteAnalysis(context.Context, string, models.SensitivityStatus) error {
	return nil
}

func (m *memoryRecords) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.videos)
}

type recordingLauncher struct {
	mu     sync.Mutex
	starts [][2]string
}

func (l *recordingLauncher) Start(videoID, connectionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.starts = append(l.starts, [2]string{videoID, connectionID})
}

type videoFixture struct {
	*testServer
	blobs    *memoryBlobs
	records  *memoryRecords
	launcher *recordingLauncher
}

func newVideoFixture(t *testing.T) *videoFixture {
	t.Helper()

	blobs := newMemoryBlobs()
	records := newMemoryRecords()
	launcher := &recordingLauncher{}

	srv := newTestServer(t, Dependencies{
		Uploader: videos.NewUploader(blobs, records, launcher, videos.UploaderConfig{MaxBytes: 1024}, nil),
		Catalog:  videos.NewCatalog(records, blobs, nil),
	})
	srv.users.addUser(t, "alice", "alice@example.com", "password123", models.RoleUser)
	srv.users.addUser(t, "bob", "bob@example.com", "password123", models.RoleUser)
	srv.users.addUser(t, "root", "root@example.com", "password123", models.RoleAdmin)

	return &videoFixture{testServer: srv, blobs: blobs, records: records, launcher: launcher}
}

func (f *videoFixture) seed(id, owner, ownerEmail string, status models.SensitivityStatus, at time.Time) {
	processing := models.ProcessingCompleted
	if status == models.SensitivityPending {
		processing = models.ProcessingProcessing
	}
	_ = f.records.Create(context.Background(), models.Video{
		ID:                id,
		Title:             "video " + id,
		OwnerID:           owner,
		OwnerEmail:        ownerEmail,
		OriginalFilename:  id + ".mp4",
		FileSize:          100,
		BlobID:            "blob-" + id,
		BlobURL:           "https://cdn.test/blob-" + id,
		ProcessingStatus:  processing,
		SensitivityStatus: status,
		UploadDate:        at,
	})
}

type uploadForm struct {
	title       string
	socketID    string
	filename    string
	contentType string
	content     []byte
}

func (f *videoFixture) upload(t *testing.T, token string, form uploadForm) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if form.title != "" {
		_ = mw.WriteField("title", form.title)
	}
	if form.socketID != "" {
		_ = mw.WriteField("socketId", form.socketID)
	}
	if form.filename != "" {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, form.filename))
		header.Set("Content-Type", form.contentType)
		part, err := mw.CreatePart(header)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write(form.content)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/videos/upload", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func TestUploadVideo(t *testing.T) {
	f := newVideoFixture(t)
	token := f.login(t, "alice@example.com", "password123").AccessToken

	rec := f.upload(t, token, uploadForm{
		title:       "  My clip  ",
		socketID:    "sock-1",
		filename:    "clip.MP4",
		contentType: "video/mp4",
		content:     []byte("fake video bytes"),
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body.String())
	}

	var resp uploadResponse
	decode(t, rec, &resp)
	if resp.Message != "Video uploaded successfully" || resp.Video.Title != "My clip" {
		t.Fatalf("unexpected response %+v", resp)
	}
	if resp.Video.ProcessingStatus != models.ProcessingProcessing || resp.Video.SensitivityStatus != models.SensitivityPending {
		t.Fatalf("unexpected statuses %+v", resp.Video)
	}

	stored, err := f.records.FindByID(context.Background(), resp.Video.ID)
	if err != nil {
		t.Fatalf("record not stored: %v", err)
	}
	if stored.OwnerID != "alice" || stored.FileSize != int64(len("fake video bytes")) || stored.OriginalFilename != "clip.MP4" {
		t.Fatalf("unexpected record %+v", stored)
	}
	if !strings.HasPrefix(stored.BlobID, videos.DefaultFolder+"/") || !strings.HasSuffix(stored.BlobID, ".mp4") {
		t.Fatalf("unexpected blob key %q", stored.BlobID)
	}

	if len(f.launcher.starts) != 1 || f.launcher.starts[0] != [2]string{resp.Video.ID, "sock-1"} {
		t.Fatalf("analysis not started correctly: %+v", f.launcher.starts)
	}
}

func TestUploadVideoValidation(t *testing.T) {
	f := newVideoFixture(t)
	token := f.login(t, "alice@example.com", "password123").AccessToken

	cases := []struct {
		name    string
		form    uploadForm
		message string
	}{
		{"missing title", uploadForm{filename: "a.mp4", contentType: "video/mp4", content: []byte("x")}, "Title is required"},
		{"short title", uploadForm{title: "ab", filename: "a.mp4", contentType: "video/mp4", content: []byte("x")}, "Title must be between 3 and 100 characters"},
		{"missing file", uploadForm{title: "Valid title"}, "Video file is required"},
		{"wrong type", uploadForm{title: "Valid title", filename: "a.avi", contentType: "video/x-msvideo", content: []byte("x")}, "Invalid file type. Only MP4, MOV, and WebM videos are allowed."},
		{"too large", uploadForm{title: "Valid title", filename: "a.webm", contentType: "video/webm", content: bytes.Repeat([]byte("x"), 2048)}, "File size exceeds 100MB limit"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := f.upload(t, token, tc.form)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
			}
			if msg := messageOf(t, rec); msg != tc.message {
				t.Fatalf("unexpected message %q", msg)
			}
		})
	}

	if f.records.len() != 0 || len(f.blobs.objects) != 0 || len(f.launcher.starts) != 0 {
		t.Fatal("rejected uploads must not leave side effects")
	}
}

func TestUploadRejectsBodyOverRequestCap(t *testing.T) {
	f := newVideoFixture(t)
	token := f.login(t, "alice@example.com", "password123").AccessToken

	rec := f.upload(t, token, uploadForm{
		title:       "Valid title",
		filename:    "huge.mp4",
		contentType: "video/mp4",
		content:     bytes.Repeat([]byte("x"), 2*multipartOverhead),
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d: %s", rec.Code, rec.Body.String())
	}
	if msg := messageOf(t, rec); msg != "File size exceeds 100MB limit" {
		t.Fatalf("unexpected message %q", msg)
	}
	if f.records.len() != 0 || len(f.blobs.objects) != 0 || len(f.launcher.starts) != 0 {
		t.Fatal("oversized request must not reach storage")
	}
}

func TestUploadRequiresAuthentication(t *testing.T) {
	f := newVideoFixture(t)

	rec := f.upload(t, "bogus", uploadForm{title: "Valid title", filename: "a.mp4", contentType: "video/mp4", content: []byte("x")})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rec.Code)
	}
	if f.records.len() != 0 {
		t.Fatal("unauthenticated upload stored a record")
	}
}

func TestListVideosScoping(t *testing.T) {
	f := newVideoFixture(t)
	base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f.seed("a1", "alice", "alice@example.com", models.SensitivitySafe, base)
	f.seed("a2", "alice", "alice@example.com", models.SensitivityFlagged, base.Add(time.Hour))
	f.seed("b1", "bob", "bob@example.com", models.SensitivityPending, base.Add(2*time.Hour))

	alice := f.login(t, "alice@example.com", "password123").AccessToken
	rec := f.do(t, http.MethodGet, "/api/videos", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
	}
	var own listResponse
	decode(t, rec, &own)
	if own.Count != 2 || own.Videos[0].ID != "a2" || own.Videos[1].ID != "a1" {
		t.Fatalf("unexpected listing %+v", own)
	}
	if strings.Contains(rec.Body.String(), `"owner"`) {
		t.Fatalf("non-admin listing exposes owner: %s", rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/videos?status=flagged", alice, nil)
	var flagged listResponse
	decode(t, rec, &flagged)
	if flagged.Count != 1 || flagged.Videos[0].ID != "a2" {
		t.Fatalf("unexpected filtered listing %+v", flagged)
	}

	rec = f.do(t, http.MethodGet, "/api/videos?status=bogus", alice, nil)
	var ignored listResponse
	decode(t, rec, &ignored)
	if ignored.Count != 2 {
		t.Fatalf("unknown status should not filter, got %d", ignored.Count)
	}

	admin := f.login(t, "root@example.com", "password123").AccessToken
	rec = f.do(t, http.MethodGet, "/api/videos", admin, nil)
	var all listResponse
	decode(t, rec, &all)
	if all.Count != 3 || all.Videos[0].Owner != "bob@example.com" {
		t.Fatalf("unexpected admin listing %+v", all)
	}
}

func TestGetVideoAccess(t *testing.T) {
	f := newVideoFixture(t)
	f.seed("a1", "alice", "alice@example.com", models.SensitivitySafe, time.Now().UTC())

	alice := f.login(t, "alice@example.com", "password123").AccessToken
	bob := f.login(t, "bob@example.com", "password123").AccessToken
	admin := f.login(t, "root@example.com", "password123").AccessToken

	rec := f.do(t, http.MethodGet, "/api/videos/a1", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("owner get: %d", rec.Code)
	}
	var detail videoDetail
	decode(t, rec, &detail)
	if detail.ID != "a1" || detail.OriginalFilename != "a1.mp4" || detail.BlobID != "blob-a1" {
		t.Fatalf("unexpected detail %+v", detail)
	}

	rec = f.do(t, http.MethodGet, "/api/videos/a1", bob, nil)
	if rec.Code != http.StatusForbidden || messageOf(t, rec) != "Access denied" {
		t.Fatalf("non-owner get: %d %s", rec.Code, rec.Body.String())
	}

	if rec = f.do(t, http.MethodGet, "/api/videos/a1", admin, nil); rec.Code != http.StatusOK {
		t.Fatalf("admin get: %d", rec.Code)
	}

	rec = f.do(t, http.MethodGet, "/api/videos/missing", alice, nil)
	if rec.Code != http.StatusNotFound || messageOf(t, rec) != "Video not found" {
		t.Fatalf("missing get: %d %s", rec.Code, rec.Body.String())
	}
}

func TestDeleteVideo(t *testing.T) {
	f := newVideoFixture(t)
	f.seed("a1", "alice", "alice@example.com", models.SensitivitySafe, time.Now().UTC())
	f.seed("a2", "alice", "alice@example.com", models.SensitivitySafe, time.Now().UTC())

	alice := f.login(t, "alice@example.com", "password123").AccessToken
	bob := f.login(t, "bob@example.com", "password123").AccessToken

	rec := f.do(t, http.MethodDelete, "/api/videos/a1", bob, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-owner delete: %d", rec.Code)
	}
	if f.records.len() != 2 {
		t.Fatal("forbidden delete removed a record")
	}

	rec = f.do(t, http.MethodDelete, "/api/videos/a1", alice, nil)
	if rec.Code != http.StatusOK || messageOf(t, rec) != "Video deleted successfully" {
		t.Fatalf("owner delete: %d %s", rec.Code, rec.Body.String())
	}

	f.blobs.deleteErr = errors.New("storage offline")
	rec = f.do(t, http.MethodDelete, "/api/videos/a2", alice, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete with failing blob store: %d %s", rec.Code, rec.Body.String())
	}
	if f.records.len() != 0 {
		t.Fatal("records should be gone even when blob delete fails")
	}
	if len(f.blobs.deleted) != 2 {
		t.Fatalf("expected two blob delete attempts, got %v", f.blobs.deleted)
	}

	rec = f.do(t, http.MethodDelete, "/api/videos/a1", alice, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete: %d", rec.Code)
	}
}
