package handlers

import (
	"context"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/progress"
)

// UserStore captures the persistence operations required by the account handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
	Update(ctx context.Context, user models.User) error
	MarkVerified(ctx context.Context, id string) error
	IncrementWatched(ctx context.Context, id string) (int64, error)
}

// SessionManager issues and refreshes authentication tokens for users.
type SessionManager interface {
	Issue(ctx context.Context, p auth.Principal) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Revoke(ctx context.Context, refreshToken string)
	RevokeAll(ctx context.Context, userID string) error
}

// VideoStore captures persistence for uploaded videos.
type VideoStore interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	AdjustLikes(ctx context.Context, id string, delta int64) (int64, error)
	DeleteOwned(ctx context.Context, id, ownerID string) error
}

// CommentStore captures persistence for video comments.
type CommentStore interface {
	Create(ctx context.Context, comment models.Comment) error
	ListForVideo(ctx context.Context, videoID string) ([]models.Comment, error)
	AdjustLikes(ctx context.Context, id string, delta int64) (int64, error)
}

// MessageStore removes meeting requests on behalf of their recipient.
type MessageStore interface {
	DeleteForOwner(ctx context.Context, id, ownerID string) error
}

// MediaUploader stores uploaded files and removes the ones left unused.
type MediaUploader interface {
	Upload(ctx context.Context, u media.Upload) (media.Asset, error)
	Discard(ctx context.Context, assets ...media.Asset) error
}

// DurationQueue schedules background duration probes for new videos.
type DurationQueue interface {
	Enqueue(ctx context.Context, video models.Video) error
}

// FeedProvider builds skill-matched feeds.
type FeedProvider interface {
	FeedForUser(ctx context.Context, userID string) ([]models.Video, error)
}

// ProgressTracker records weekly progress.
type ProgressTracker interface {
	Update(ctx context.Context, userID string, value int) (progress.Snapshot, error)
	Today(ctx context.Context, userID string) (progress.Snapshot, error)
}

// MeetingService drives the meeting request handshake.
type MeetingService interface {
	Request(ctx context.Context, senderID, ownerID, text string) (models.Message, error)
	Accept(ctx context.Context, ownerID, messageID string) (models.Message, error)
	Reject(ctx context.Context, ownerID, messageID string) (models.Message, error)
	Latest(ctx context.Context, senderID, ownerID string) (models.Message, error)
	Inbox(ctx context.Context, ownerID string) ([]models.Message, error)
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
