package repositories

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/skillswap/backend/internal/db"
	"github.com/skillswap/backend/internal/models"
)

const videoColumns = `id, owner_id, title, description, video_url, thumbnail_url, skills, views, likes,
        duration, etag, created_at, updated_at`

// PostgresVideoRepository provides PostgreSQL-backed persistence for videos.
type PostgresVideoRepository struct {
	pool db.Pool
}

// NewPostgresVideoRepository constructs a video repository backed by PostgreSQL.
func NewPostgresVideoRepository(pool db.Pool) *PostgresVideoRepository {
	return &PostgresVideoRepository{pool: pool}
}

// Create stores a new video record.
func (r *PostgresVideoRepository) Create(ctx context.Context, video models.Video) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO videos (id, owner_id, title, description, video_url, thumbnail_url, skills, duration, etag, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
    `, video.ID, video.OwnerID, video.Title, video.Description, video.VideoURL, video.ThumbnailURL,
		nonNil(video.Skills), video.Duration, video.ETag, video.CreatedAt, video.UpdatedAt)
	if err != nil {
		if mapped := translate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert video: %w", err)
	}

	return nil
}

// FindByID fetches a single video.
func (r *PostgresVideoRepository) FindByID(ctx context.Context, id string) (models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Video{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	video, err := scanVideo(conn.QueryRow(ctx, `SELECT `+videoColumns+` FROM videos WHERE id = $1`, id))
	if err != nil {
		if isMissing(err) {
			return models.Video{}, ErrNotFound
		}
		return models.Video{}, fmt.Errorf("select video: %w", err)
	}
	return video, nil
}

// ListBySkills returns videos tagged with at least one of skills, newest first.
func (r *PostgresVideoRepository) ListBySkills(ctx context.Context, skills []string) ([]models.Video, error) {
	if len(skills) == 0 {
		return nil, nil
	}
	return r.list(ctx, "list videos by skills", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE skills && $1::TEXT[]
        ORDER BY created_at DESC
    `, skills)
}

// ListByOwner returns the videos uploaded by ownerID, newest first.
func (r *PostgresVideoRepository) ListByOwner(ctx context.Context, ownerID string) ([]models.Video, error) {
	return r.list(ctx, "list videos by owner", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `, ownerID)
}

// ListMissingDuration returns up to limit videos whose duration has not been probed yet.
func (r *PostgresVideoRepository) ListMissingDuration(ctx context.Context, limit int) ([]models.Video, error) {
	return r.list(ctx, "list videos missing duration", `
        SELECT `+videoColumns+`
        FROM videos
        WHERE duration = 0
        ORDER BY created_at ASC
        LIMIT $1
    `, limit)
}

func (r *PostgresVideoRepository) list(ctx context.Context, op, query string, args ...any) ([]models.Video, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, query, args...)
	if err != nil {
		if isMissing(err) {
			return []models.Video{}, nil
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	videos := []models.Video{}
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("scan video: %w", err)
		}
		videos = append(videos, video)
	}
	if err := rows.Err(); err != nil {
		if isMissing(err) {
			return []models.Video{}, nil
		}
		return nil, fmt.Errorf("iterate videos: %w", err)
	}
	return videos, nil
}

// IncrementViews adds one view and returns the new total.
func (r *PostgresVideoRepository) IncrementViews(ctx context.Context, id string) (int64, error) {
	return r.bump(ctx, `UPDATE videos SET views = views + 1 WHERE id = $1 RETURNING views`, id)
}

// AdjustLikes adds delta to the like counter, never going below zero.
func (r *PostgresVideoRepository) AdjustLikes(ctx context.Context, id string, delta int64) (int64, error) {
	return r.bump(ctx, `UPDATE videos SET likes = GREATEST(likes + $2, 0) WHERE id = $1 RETURNING likes`, id, delta)
}

func (r *PostgresVideoRepository) bump(ctx context.Context, query string, args ...any) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var value int64
	if err := conn.QueryRow(ctx, query, args...).Scan(&value); err != nil {
		if isMissing(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update video counter: %w", err)
	}
	return value, nil
}

// SetDuration records the probed length of a video in seconds.
func (r *PostgresVideoRepository) SetDuration(ctx context.Context, id string, seconds float64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE videos SET duration = $2, updated_at = NOW() WHERE id = $1`, id, seconds)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update video duration: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteOwned removes a video only when ownerID uploaded it.
func (r *PostgresVideoRepository) DeleteOwned(ctx context.Context, id, ownerID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM videos WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanVideo(row pgx.Row) (models.Video, error) {
	var v models.Video
	err := row.Scan(&v.ID, &v.OwnerID, &v.Title, &v.Description, &v.VideoURL, &v.ThumbnailURL, &v.Skills,
		&v.Views, &v.Likes, &v.Duration, &v.ETag, &v.CreatedAt, &v.UpdatedAt)
	return v, err
}
