package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/skillswap/backend/internal/mailer"
	"github.com/skillswap/backend/internal/metrics"
	"github.com/skillswap/backend/internal/middleware"
	"github.com/skillswap/backend/internal/rtc"
)

// PublicPaths are served without a bearer token.
var PublicPaths = []string{
	"/healthz",
	"/metrics",
	"/media/*",
	"/api/v1/auth/signup",
	"/api/v1/auth/verify",
	"/api/v1/auth/login",
	"/api/v1/auth/refresh",
}

// Dependencies aggregates collaborators required by HTTP handlers.
type Dependencies struct {
	Logger   *slog.Logger
	Verifier middleware.TokenVerifier
	DB       Pinger

	Users    UserStore
	Sessions SessionManager
	Videos   VideoStore
	Comments CommentStore
	Messages MessageStore

	Media      MediaUploader
	MediaFiles http.Handler
	Durations  DurationQueue
	Mailer     mailer.Sender
	Feed       FeedProvider
	Progress   ProgressTracker
	Meetings   MeetingService
	Tokens     rtc.Issuer

	AuthLimiter     middleware.RateLimiter
	CORSOrigins     []string
	VerificationTTL time.Duration
	PollInterval    time.Duration
}

// NewRouter wires HTTP handlers into a chi router.
func NewRouter(deps Dependencies) http.Handler {
	health := HealthHandler{DB: deps.DB}
	auth := AuthHandler{
		Users:           deps.Users,
		Sessions:        deps.Sessions,
		Media:           deps.Media,
		Mailer:          deps.Mailer,
		VerificationTTL: deps.VerificationTTL,
	}
	users := UserHandler{Users: deps.Users, Videos: deps.Videos, Media: deps.Media}
	videos := VideoHandler{Videos: deps.Videos, Comments: deps.Comments, Media: deps.Media, Durations: deps.Durations}
	reactions := ReactionHandler{Videos: deps.Videos, Comments: deps.Comments}
	feed := FeedHandler{Feed: deps.Feed, Users: deps.Users}
	progress := ProgressHandler{Tracker: deps.Progress}
	meetings := MeetingHandler{Meetings: deps.Meetings, Tokens: deps.Tokens, PollInterval: deps.PollInterval}
	deletes := DeleteHandler{Videos: deps.Videos, Messages: deps.Messages}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.Authenticate(deps.Verifier, PublicPaths))

	r.Get("/healthz", health.Handle)
	r.Handle("/metrics", metrics.Handler())
	if deps.MediaFiles != nil {
		r.Handle("/media/*", http.StripPrefix("/media", deps.MediaFiles))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.RateLimit(deps.AuthLimiter, "auth"))
			r.Post("/signup", auth.SignUp)
			r.Post("/verify", auth.Verify)
			r.Post("/login", auth.Login)
			r.Post("/refresh", auth.Refresh)
			r.Post("/logout", auth.Logout)
		})

		r.Get("/users/me", users.Me)
		r.Put("/users/me", users.UpdateMe)
		r.Post("/users/me/watched", users.Watched)
		r.Get("/users/{id}", users.Profile)
		r.Get("/users/{id}/videos", users.OwnerVideos)

		r.Post("/videos", videos.Create)
		r.Get("/videos/{id}", videos.Get)
		r.Post("/videos/{id}/views", videos.View)
		r.Get("/videos/{id}/comments", videos.ListComments)
		r.Post("/videos/{id}/comments", videos.Comment)

		r.Post("/reactions", reactions.React)

		r.Get("/feed", feed.List)
		r.Get("/feed/search", feed.Search)

		r.Get("/progress", progress.Get)
		r.Post("/progress", progress.Update)

		r.Post("/meetings", meetings.Request)
		r.Get("/meetings/latest", meetings.Latest)
		r.Get("/meetings/inbox", meetings.Inbox)
		r.Post("/meetings/token", meetings.Token)
		r.Post("/meetings/{id}/accept", meetings.Accept)
		r.Post("/meetings/{id}/reject", meetings.Reject)

		r.Post("/delete", deletes.Delete)
	})

	return r
}
