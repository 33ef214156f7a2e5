package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/config"
	"github.com/skillswap/backend/internal/db"
	"github.com/skillswap/backend/internal/handlers"
	"github.com/skillswap/backend/internal/mailer"
	"github.com/skillswap/backend/internal/matching"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/meetings"
	"github.com/skillswap/backend/internal/middleware"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/progress"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/rtc"
)

// requeueBatch bounds how many videos without a duration are probed at startup.
const requeueBatch = 100

type missingDurationLister interface {
	ListMissingDuration(ctx context.Context, limit int) ([]models.Video, error)
}

// buildDependencies wires together concrete implementations used by the HTTP handlers.
// The returned cleanup stops the background workers it started.
func buildDependencies(ctx context.Context, pool db.Pool, cfg config.Config, logger *slog.Logger) (handlers.Dependencies, func(context.Context) error, error) {
	if logger == nil {
		logger = slog.Default()
	}

	users := repositories.NewPostgresUserRepository(pool)
	videos := repositories.NewPostgresVideoRepository(pool)
	messages := repositories.NewPostgresMessageRepository(pool)

	resolver := auth.PrincipalResolverFunc(func(ctx context.Context, userID string) (auth.Principal, error) {
		user, err := users.FindByID(ctx, userID)
		if err != nil {
			return auth.Principal{}, err
		}
		return auth.Principal{UserID: user.ID, Username: user.Username, Verified: user.Verified}, nil
	})
	sessions := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL, repositories.NewPostgresSessionStore(pool), resolver)

	tokens, err := rtc.New(cfg.RTC.Provider, cfg.RTC.AppID, cfg.RTC.Secret, cfg.RTC.APIKey, cfg.RTC.APISecret, cfg.RTC.TokenTTL)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	backend, files, err := buildMediaBackend(ctx, cfg.Media)
	if err != nil {
		return handlers.Dependencies{}, nil, err
	}

	prober := media.NewCachingProber(media.NewFFProbe(cfg.Media.FFProbePath, cfg.Media.FFProbeTimeout), cfg.Media.ProbeCacheTTL)
	durations := media.NewDurationWorker(prober, videos, media.WorkerConfig{
		QueueSize: cfg.Media.ProbeQueueSize,
		Workers:   cfg.Media.ProbeWorkers,
		Timeout:   cfg.Media.FFProbeTimeout,
	}, logger.With("component", "duration_worker"))

	var sender mailer.Sender = mailer.LogSender{}
	if cfg.Mail.Enabled {
		sender = mailer.NewSMTPSender(cfg.Mail, logger.With("component", "mailer"))
	}

	loc, err := cfg.Progress.Location()
	if err != nil {
		_ = durations.Shutdown(ctx)
		return handlers.Dependencies{}, nil, err
	}
	tracker := progress.Tracker{Store: users, Location: loc}

	var reset *progress.WeeklyReset
	if cfg.Progress.ResetEnabled {
		reset, err = progress.NewWeeklyReset(tracker, cfg.Progress.ResetSchedule, loc, logger.With("component", "progress_reset"))
		if err != nil {
			_ = durations.Shutdown(ctx)
			return handlers.Dependencies{}, nil, err
		}
		reset.Start()
	}

	deps := handlers.Dependencies{
		Logger:   logger,
		Verifier: sessions,

		Users:    users,
		Sessions: sessions,
		Videos:   videos,
		Comments: repositories.NewPostgresCommentRepository(pool),
		Messages: messages,

		Media:      media.Broker{Backend: backend},
		MediaFiles: files,
		Durations:  durations,
		Mailer:     sender,
		Feed:       matching.Service{Users: users, Videos: videos},
		Progress:   tracker,
		Meetings: meetings.Service{
			Store:  messages,
			Policy: meetings.Policy{Timeout: cfg.Meetings.Timeout, PollInterval: cfg.Meetings.PollInterval},
		},
		Tokens: tokens,

		AuthLimiter:     middleware.NewIPRateLimiter(cfg.Limits.Requests, cfg.Limits.Window, cfg.Limits.Burst, 10*cfg.Limits.Window),
		CORSOrigins:     cfg.CORSOrigins,
		VerificationTTL: cfg.Auth.VerificationTTL,
		PollInterval:    cfg.Meetings.PollInterval,
	}
	if pinger, ok := pool.(handlers.Pinger); ok {
		deps.DB = pinger
	}

	cleanup := func(ctx context.Context) error {
		var errs []error
		if reset != nil {
			if err := reset.Stop(ctx); err != nil {
				errs = append(errs, fmt.Errorf("stop progress reset: %w", err))
			}
		}
		if err := durations.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop duration worker: %w", err))
		}
		return errors.Join(errs...)
	}

	return deps, cleanup, nil
}

// buildMediaBackend returns the configured upload backend and, for the local
// backend, the handler serving the stored files.
func buildMediaBackend(ctx context.Context, cfg config.MediaConfig) (media.Backend, http.Handler, error) {
	switch cfg.Backend {
	case "s3":
		backend, err := media.NewS3Backend(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, nil, fmt.Errorf("configure s3 media backend: %w", err)
		}
		return backend, nil, nil
	case "", "local":
		local := media.LocalBackend{Dir: cfg.LocalDir, BaseURL: cfg.LocalBaseURL}
		return local, local.Handler(), nil
	default:
		return nil, nil, fmt.Errorf("unknown media backend %q", cfg.Backend)
	}
}

// requeueMissingDurations hands videos uploaded before a restart back to the
// duration worker.
func requeueMissingDurations(ctx context.Context, lister missingDurationLister, queue handlers.DurationQueue, logger *slog.Logger) int {
	videos, err := lister.ListMissingDuration(ctx, requeueBatch)
	if err != nil {
		logger.Warn("list videos missing duration", "error", err)
		return 0
	}
	queued := 0
	for _, video := range videos {
		if err := queue.Enqueue(ctx, video); err != nil {
			logger.Warn("requeue duration probe", "video_id", video.ID, "error", err)
			continue
		}
		queued++
	}
	return queued
}
