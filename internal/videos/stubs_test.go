package videos

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type blobStoreStub struct {
	mu        sync.Mutex
	uploads   []string
	deletes   []string
	uploadErr error
	deleteErr error
}

func (s *blobStoreStub) Upload(_ context.Context, key string, body io.Reader, _ int64, _ string) (Blob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads = append(s.uploads, key)
	if s.uploadErr != nil {
		return Blob{}, s.uploadErr
	}
	if body != nil {
		_, _ = io.Copy(io.Discard, body)
	}
	return Blob{ID: key, URL: "https://cdn.example.com/" + key}, nil
}

func (s *blobStoreStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes = append(s.deletes, id)
	return s.deleteErr
}

type statusUpdate struct {
	id     string
	status string
}

type recordStoreStub struct {
	mu          sync.Mutex
	videos      map[string]models.Video
	updates     []statusUpdate
	createErr   error
	statusErr   map[models.ProcessingStatus]error
	completeErr error
}

func newRecordStoreStub() *recordStoreStub {
	return &recordStoreStub{videos: make(map[string]models.Video)}
}

func (s *recordStoreStub) put(video models.Video) {
	s.mu.Lock()
	s.videos[video.ID] = video
	s.mu.Unlock()
}

func (s *recordStoreStub) get(id string) (models.Video, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	return v, ok
}

func (s *recordStoreStub) Create(_ context.Context, video models.Video) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.put(video)
	return nil
}

func (s *recordStoreStub) FindByID(_ context.Context, id string) (models.Video, error) {
	if v, ok := s.get(id); ok {
		return v, nil
	}
	return models.Video{}, repositories.ErrNotFound
}

func (s *recordStoreStub) List(_ context.Context, filter models.VideoFilter) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.Video
	for _, v := range s.videos {
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

func (s *recordStoreStub) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.videos[id]; !ok {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

func (s *recordStoreStub) SetProcessingStatus(_ context.Context, id string, status models.ProcessingStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, statusUpdate{id: id, status: string(status)})
	if err := s.statusErr[status]; err != nil {
		return err
	}
	v, ok := s.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	v.ProcessingStatus = status
	s.videos[id] = v
	return nil
}

func (s *recordStoreStub) CompleteAnalysis(_ context.Context, id string, outcome models.SensitivityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, statusUpdate{id: id, status: "complete:" + string(outcome)})
	if s.completeErr != nil {
		return s.completeErr
	}
	if !outcome.IsOutcome() {
		return repositories.ErrInvalidOutcome
	}
	v, ok := s.videos[id]
	if !ok {
		return repositories.ErrNotFound
	}
	v.ProcessingStatus = models.ProcessingCompleted
	v.SensitivityStatus = outcome
	s.videos[id] = v
	return nil
}

type emitted struct {
	connectionID string
	event        string
	payload      any
}

type notifierStub struct {
	mu     sync.Mutex
	events []emitted
}

func (n *notifierStub) EmitTo(connectionID, event string, payload any) {
	n.mu.Lock()
	n.events = append(n.events, emitted{connectionID: connectionID, event: event, payload: payload})
	n.mu.Unlock()
}

func (n *notifierStub) snapshot() []emitted {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]emitted(nil), n.events...)
}

type launcherStub struct {
	mu    sync.Mutex
	calls [][2]string
}

func (l *launcherStub) Start(videoID, connectionID string) {
	l.mu.Lock()
	l.calls = append(l.calls, [2]string{videoID, connectionID})
	l.mu.Unlock()
}

type panickingClassifier struct{}

func (panickingClassifier) Classify(context.Context, string) (models.SensitivityStatus, error) {
	panic("classifier exploded")
}

type erroringClassifier struct{}

func (erroringClassifier) Classify(context.Context, string) (models.SensitivityStatus, error) {
	return "", errors.New("model unavailable")
}

type panickingNotifier struct{}

func (panickingNotifier) EmitTo(string, string, any) {
	panic("emit exploded")
}

// failurePanicStore panics when a run tries to record the failed status.
type failurePanicStore struct {
	*recordStoreStub
}

func (s failurePanicStore) SetProcessingStatus(ctx context.Context, id string, status models.ProcessingStatus) error {
	if status == models.ProcessingFailed {
		panic("store exploded")
	}
	return s.recordStoreStub.SetProcessingStatus(ctx, id, status)
}
