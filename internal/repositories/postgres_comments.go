package repositories

import (
	"context"
	"fmt"

	"github.com/skillswap/backend/internal/db"
	"github.com/skillswap/backend/internal/models"
)

// PostgresCommentRepository provides PostgreSQL-backed persistence for comments.
type PostgresCommentRepository struct {
	pool db.Pool
}

// NewPostgresCommentRepository constructs a comment repository backed by PostgreSQL.
func NewPostgresCommentRepository(pool db.Pool) *PostgresCommentRepository {
	return &PostgresCommentRepository{pool: pool}
}

// Create stores a comment. A missing video or author yields ErrNotFound.
func (r *PostgresCommentRepository) Create(ctx context.Context, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO comments (id, video_id, user_id, text, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, comment.ID, comment.VideoID, comment.UserID, comment.Text, comment.CreatedAt)
	if err != nil {
		if mapped := translate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

// ListForVideo returns a video's comments, newest first.
func (r *PostgresCommentRepository) ListForVideo(ctx context.Context, videoID string) ([]models.Comment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, video_id, user_id, text, likes, created_at
        FROM comments
        WHERE video_id = $1
        ORDER BY created_at DESC
    `, videoID)
	if err != nil {
		if isMissing(err) {
			return []models.Comment{}, nil
		}
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	comments := []models.Comment{}
	for rows.Next() {
		var c models.Comment
		if err := rows.Scan(&c.ID, &c.VideoID, &c.UserID, &c.Text, &c.Likes, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		if isMissing(err) {
			return []models.Comment{}, nil
		}
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

// AdjustLikes adds delta to a comment's likes, never going below zero.
func (r *PostgresCommentRepository) AdjustLikes(ctx context.Context, id string, delta int64) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var likes int64
	err = conn.QueryRow(ctx, `
        UPDATE comments SET likes = GREATEST(likes + $2, 0) WHERE id = $1 RETURNING likes
    `, id, delta).Scan(&likes)
	if err != nil {
		if isMissing(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("update comment likes: %w", err)
	}
	return likes, nil
}
