package media

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/metrics"
	"github.com/skillswap/backend/internal/models"
)

// DurationStore persists probed durations.
type DurationStore interface {
	SetDuration(ctx context.Context, videoID string, seconds float64) error
}

// WorkerConfig controls the concurrency characteristics of the DurationWorker.
type WorkerConfig struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

// DurationWorker probes newly uploaded videos in the background and records how
// long they are. Failures are logged and otherwise ignored.
type DurationWorker struct {
	prober Prober
	store  DurationStore
	logger *slog.Logger
	cfg    WorkerConfig

	jobs   chan models.Video
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// ErrWorkerClosed is returned by Enqueue after Shutdown.
var ErrWorkerClosed = errors.New("duration worker closed")

// NewDurationWorker starts cfg.Workers goroutines draining a queue of cfg.QueueSize.
func NewDurationWorker(prober Prober, store DurationStore, cfg WorkerConfig, logger *slog.Logger) *DurationWorker {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 16
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	w := &DurationWorker{
		prober: prober,
		store:  store,
		logger: logger,
		cfg:    cfg,
		jobs:   make(chan models.Video, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}

	w.wg.Add(cfg.Workers)
	for i := 0; i < cfg.Workers; i++ {
		go w.run()
	}

	return w
}

// Enqueue schedules a duration probe for video. Videos that already carry a
// duration are skipped.
func (w *DurationWorker) Enqueue(ctx context.Context, video models.Video) error {
	if video.Duration > 0 {
		return nil
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWorkerClosed
	default:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-w.ctx.Done():
		return ErrWorkerClosed
	case w.jobs <- video:
		metrics.ProbeQueueDepth.Inc()
		return nil
	}
}

// Shutdown stops accepting work and waits for in-flight probes, bounded by ctx.
func (w *DurationWorker) Shutdown(ctx context.Context) error {
	w.once.Do(func() {
		w.cancel()
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

func (w *DurationWorker) run() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case video := <-w.jobs:
			metrics.ProbeQueueDepth.Dec()
			w.handle(video)
		}
	}
}

func (w *DurationWorker) handle(video models.Video) {
	if w.prober == nil || w.store == nil {
		w.logger.Error("duration worker missing dependencies", "hasProber", w.prober != nil, "hasStore", w.store != nil)
		return
	}

	ctx, cancel := context.WithTimeout(logging.WithLogger(context.Background(), w.logger), w.cfg.Timeout)
	defer cancel()

	ctx, span := logging.StartSpan(ctx, "media.probe_duration", slog.String("video_id", video.ID))
	defer span.End()

	seconds, err := w.prober.Duration(ctx, video.VideoURL)
	if err != nil {
		span.Fail(err)
		return
	}

	if err := w.store.SetDuration(ctx, video.ID, seconds); err != nil {
		span.Fail(err)
		return
	}
	logging.FromContext(ctx).Info("video duration recorded", "seconds", seconds)
}
