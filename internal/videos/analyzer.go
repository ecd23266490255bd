package videos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/streamsafe/backend/internal/logging"
	"github.com/streamsafe/backend/internal/metrics"
	"github.com/streamsafe/backend/internal/models"
	"github.com/streamsafe/backend/internal/repositories"
)

const (
	defaultAnalysisSteps = 10
	defaultMinStepDelay  = 500 * time.Millisecond
	defaultMaxStepDelay  = time.Second
	defaultStoreTimeout  = 5 * time.Second

	failedMessage = "Processing failed. Please try again."
)

// errRecordGone marks a run whose video was deleted while it was analysed.
var errRecordGone = errors.New("video record no longer exists")

// AnalyzerConfig controls the shape and timing of an analysis run. Zero
// values select the defaults; a zero MinStepDelay and MaxStepDelay together
// mean 500ms to 1s, so a delay-free run needs WithSleep.
type AnalyzerConfig struct {
	Steps        int
	MinStepDelay time.Duration
	MaxStepDelay time.Duration
	StoreTimeout time.Duration
}

// AnalyzerOption customises an Analyzer.
type AnalyzerOption func(*Analyzer)

// WithSleep replaces the step delay function.
func WithSleep(sleep func(time.Duration)) AnalyzerOption {
	return func(a *Analyzer) {
		if sleep != nil {
			a.sleep = sleep
		}
	}
}

// WithRandom replaces the source used to draw step delays. It must return values in [0, 1).
func WithRandom(float func() float64) AnalyzerOption {
	return func(a *Analyzer) {
		if float != nil {
			a.float = float
		}
	}
}

// Analyzer runs the sensitivity analysis of uploaded videos in the background
// and reports progress to the uploading connection.
type Analyzer struct {
	records    RecordStore
	classifier Classifier
	notifier   Notifier
	cfg        AnalyzerConfig
	logger     *slog.Logger
	sleep      func(time.Duration)
	float      func() float64

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewAnalyzer constructs an Analyzer. A nil notifier disables progress events.
func NewAnalyzer(records RecordStore, classifier Classifier, notifier Notifier, cfg AnalyzerConfig, logger *slog.Logger, opts ...AnalyzerOption) *Analyzer {
	if cfg.Steps <= 0 {
		cfg.Steps = defaultAnalysisSteps
	}
	if cfg.MinStepDelay < 0 {
		cfg.MinStepDelay = 0
	}
	if cfg.MaxStepDelay < cfg.MinStepDelay {
		cfg.MaxStepDelay = cfg.MinStepDelay
	}
	if cfg.MinStepDelay == 0 && cfg.MaxStepDelay == 0 {
		cfg.MinStepDelay, cfg.MaxStepDelay = defaultMinStepDelay, defaultMaxStepDelay
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if classifier == nil {
		classifier = NewRandomClassifier(DefaultSafeProbability)
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &Analyzer{
		records:    records,
		classifier: classifier,
		notifier:   notifier,
		cfg:        cfg,
		logger:     logger,
		sleep:      time.Sleep,
		float:      rand.Float64,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Start launches the analysis of videoID in its own goroutine. Nothing the run
// does is reported to the caller. Calls after Shutdown are ignored.
func (a *Analyzer) Start(videoID, connectionID string) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("analysis not started, analyzer shut down", "videoId", videoID)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		ctx := logging.WithLogger(context.Background(), a.logger)
		a.Run(ctx, videoID, connectionID)
	}()
}

// Run executes one analysis synchronously and returns the final verdict, or
// an error when the run failed or the video disappeared.
func (a *Analyzer) Run(ctx context.Context, videoID, connectionID string) (outcome models.SensitivityStatus, err error) {
	ctx, span := logging.StartSpan(ctx, "sensitivity-analysis", "video_id", videoID)
	metrics.AnalysisInFlight.Inc()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panic: %v", r)
			a.fail(ctx, videoID, connectionID)
		}
		metrics.AnalysisInFlight.Dec()

		label := string(outcome)
		switch {
		case errors.Is(err, errRecordGone):
			label = "gone"
			logging.FromContext(ctx).Info("video deleted during analysis, stopping")
		case err != nil:
			label = "failed"
			span.Fail(err)
		}
		metrics.RecordAnalysisRun(label, span.Duration())
		span.End()
	}()

	outcome, err = a.analyse(ctx, videoID, connectionID)
	if err != nil && !errors.Is(err, errRecordGone) {
		a.fail(ctx, videoID, connectionID)
	}
	return outcome, err
}

func (a *Analyzer) analyse(ctx context.Context, videoID, connectionID string) (models.SensitivityStatus, error) {
	if err := a.store(ctx, func(ctx context.Context) error {
		return a.records.SetProcessingStatus(ctx, videoID, models.ProcessingProcessing)
	}); err != nil {
		return "", err
	}

	total := a.cfg.Steps
	for step := 1; step <= total; step++ {
		a.sleep(a.stepDelay())

		a.emit(ctx, connectionID, EventProgress, ProgressEvent{
			VideoID:     videoID,
			Progress:    int(math.Round(float64(step) / float64(total) * 100)),
			CurrentStep: step,
			TotalSteps:  total,
			Message:     fmt.Sprintf("Processing video... %d/%d", step, total),
		})
	}

	outcome, err := a.classifier.Classify(ctx, videoID)
	if err != nil {
		return "", fmt.Errorf("classify: %w", err)
	}

	if err := a.store(ctx, func(ctx context.Context) error {
		return a.records.CompleteAnalysis(ctx, videoID, outcome)
	}); err != nil {
		return "", err
	}

	a.emit(ctx, connectionID, EventComplete, CompleteEvent{
		VideoID: videoID,
		Status:  outcome,
		Message: fmt.Sprintf("Processing complete! Video marked as %s.", outcome),
	})
	return outcome, nil
}

// fail runs inside Run's recovery path, so a second fault here is logged and dropped.
func (a *Analyzer) fail(ctx context.Context, videoID, connectionID string) {
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("recording analysis failure panicked", "panic", r)
		}
	}()

	err := a.store(ctx, func(ctx context.Context) error {
		return a.records.SetProcessingStatus(ctx, videoID, models.ProcessingFailed)
	})
	switch {
	case errors.Is(err, errRecordGone):
		logging.FromContext(ctx).Info("video deleted before failure could be recorded")
		return
	case err != nil:
		logging.FromContext(ctx).Error("record analysis failure", "error", err)
	}

	a.emit(ctx, connectionID, EventError, ErrorEvent{VideoID: videoID, Message: failedMessage})
}

// store runs one record update with its own timeout, translating a missing
// record into errRecordGone.
func (a *Analyzer) store(ctx context.Context, fn func(context.Context) error) error {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.cfg.StoreTimeout)
	defer cancel()

	err := fn(storeCtx)
	if errors.Is(err, repositories.ErrNotFound) {
		return errRecordGone
	}
	if err != nil {
		return fmt.Errorf("update video: %w", err)
	}
	return nil
}

func (a *Analyzer) stepDelay() time.Duration {
	spread := a.cfg.MaxStepDelay - a.cfg.MinStepDelay
	if spread <= 0 {
		return a.cfg.MinStepDelay
	}
	return a.cfg.MinStepDelay + time.Duration(a.float()*float64(spread))
}

// emit is best effort: a notifier fault drops the event and never fails the run.
func (a *Analyzer) emit(ctx context.Context, connectionID, event string, payload any) {
	if connectionID == "" || a.notifier == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			logging.FromContext(ctx).Error("realtime notifier panicked, event dropped", "event", event, "panic", r)
		}
	}()
	a.notifier.EmitTo(connectionID, event, payload)
}

// Shutdown stops accepting new runs and waits for in-flight ones until ctx expires.
func (a *Analyzer) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}
