package repositories

import (
	"context"
	"time"

	"github.com/skillswap/backend/internal/models"
)

// UserRepository defines the data access contract for users.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	Usernames(ctx context.Context, ids []string) (map[string]string, error)
	Update(ctx context.Context, user models.User) error
	MarkVerified(ctx context.Context, id string) error
	IncrementWatched(ctx context.Context, id string) (int64, error)
	Progress(ctx context.Context, id string) (models.WeeklyProgress, error)
	UpdateProgress(ctx context.Context, id string, fn func(models.WeeklyProgress) (models.WeeklyProgress, error)) (models.WeeklyProgress, error)
	ResetAllProgress(ctx context.Context) (int64, error)
}

// VideoRepository exposes data access for uploaded videos.
type VideoRepository interface {
	Create(ctx context.Context, video models.Video) error
	FindByID(ctx context.Context, id string) (models.Video, error)
	ListBySkills(ctx context.Context, skills []string) ([]models.Video, error)
	ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error)
	ListMissingDuration(ctx context.Context, limit int) ([]models.Video, error)
	IncrementViews(ctx context.Context, id string) (int64, error)
	AdjustLikes(ctx context.Context, id string, delta int64) (int64, error)
	SetDuration(ctx context.Context, id string, seconds float64) error
	DeleteOwned(ctx context.Context, id, ownerID string) error
}

// CommentRepository exposes data access for video comments.
type CommentRepository interface {
	Create(ctx context.Context, comment models.Comment) error
	ListForVideo(ctx context.Context, videoID string) ([]models.Comment, error)
	AdjustLikes(ctx context.Context, id string, delta int64) (int64, error)
}

// MessageRepository exposes data access for meeting requests.
type MessageRepository interface {
	Create(ctx context.Context, msg models.Message) error
	FindByID(ctx context.Context, id string) (models.Message, error)
	LatestBetween(ctx context.Context, senderID, ownerID string) (models.Message, error)
	ListForOwner(ctx context.Context, ownerID string) ([]models.Message, error)
	Transition(ctx context.Context, id string, from, to models.MeetingStatus, at time.Time) error
	DeleteForOwner(ctx context.Context, id, ownerID string) error
}
