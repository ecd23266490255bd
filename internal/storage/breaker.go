package storage

import (
	"context"
	"io"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/streamsafe/backend/internal/metrics"
	"github.com/streamsafe/backend/internal/videos"
)

// BreakerConfig tunes the circuit breaker placed in front of the blob store.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
}

// DefaultBreakerConfig trips after five consecutive failures and probes again after 30s.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "blob-store",
		FailureThreshold: 5,
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
	}
}

// BreakerStore wraps a BlobStore and fails fast while the backend is unhealthy.
type BreakerStore struct {
	next    videos.BlobStore
	breaker *gobreaker.CircuitBreaker[videos.Blob]
}

// NewBreakerStore wraps next with a circuit breaker.
func NewBreakerStore(next videos.BlobStore, cfg BreakerConfig, logger *slog.Logger) *BreakerStore {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultBreakerConfig().FailureThreshold
	}

	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.BlobBreakerState.Set(float64(to))
			logger.Warn("blob store circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerStore{
		next:    next,
		breaker: gobreaker.NewCircuitBreaker[videos.Blob](settings),
	}
}

// Upload forwards to the wrapped store unless the breaker is open.
func (b *BreakerStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) (videos.Blob, error) {
	return b.breaker.Execute(func() (videos.Blob, error) {
		return b.next.Upload(ctx, key, body, size, contentType)
	})
}

// Delete forwards to the wrapped store unless the breaker is open.
func (b *BreakerStore) Delete(ctx context.Context, id string) error {
	_, err := b.breaker.Execute(func() (videos.Blob, error) {
		return videos.Blob{}, b.next.Delete(ctx, id)
	})
	return err
}

// State reports the breaker state for diagnostics.
func (b *BreakerStore) State() string {
	return b.breaker.State().String()
}

var _ videos.BlobStore = (*BreakerStore)(nil)
