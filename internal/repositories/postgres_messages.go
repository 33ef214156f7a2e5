package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillswap/backend/internal/db"
	"github.com/skillswap/backend/internal/models"
)

const messageColumns = `id, sender_id, owner_id, text, room_id, link, status, expires_at, responded_at, created_at`

// PostgresMessageRepository provides PostgreSQL-backed persistence for meeting requests.
type PostgresMessageRepository struct {
	pool db.Pool
}

// NewPostgresMessageRepository constructs a message repository backed by PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Create persists a new meeting request.
func (r *PostgresMessageRepository) Create(ctx context.Context, msg models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO messages (id, sender_id, owner_id, text, room_id, link, status, expires_at, responded_at, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
    `, msg.ID, msg.SenderID, msg.OwnerID, msg.Text, msg.RoomID, msg.Link, string(msg.Status), msg.ExpiresAt,
		msg.RespondedAt, msg.CreatedAt)
	if err != nil {
		if mapped := translate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// FindByID fetches a meeting request.
func (r *PostgresMessageRepository) FindByID(ctx context.Context, id string) (models.Message, error) {
	return r.one(ctx, "select message", `SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
}

// LatestBetween returns the newest request senderID sent to ownerID.
func (r *PostgresMessageRepository) LatestBetween(ctx context.Context, senderID, ownerID string) (models.Message, error) {
	return r.one(ctx, "select latest message", `
        SELECT `+messageColumns+`
        FROM messages
        WHERE sender_id = $1 AND owner_id = $2
        ORDER BY created_at DESC
        LIMIT 1
    `, senderID, ownerID)
}

func (r *PostgresMessageRepository) one(ctx context.Context, op, query string, args ...any) (models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Message{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	msg, err := scanMessage(conn.QueryRow(ctx, query, args...))
	if err != nil {
		if isMissing(err) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return msg, nil
}

// ListForOwner returns the requests addressed to ownerID, newest first.
func (r *PostgresMessageRepository) ListForOwner(ctx context.Context, ownerID string) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT `+messageColumns+`
        FROM messages
        WHERE owner_id = $1
        ORDER BY created_at DESC
    `, ownerID)
	if err != nil {
		if isMissing(err) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []models.Message{}
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		if isMissing(err) {
			return []models.Message{}, nil
		}
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// Transition moves a request from one status to another. The write only applies while
// the stored status still equals from; otherwise ErrConflict is returned, or
// ErrNotFound when the request does not exist.
func (r *PostgresMessageRepository) Transition(ctx context.Context, id string, from, to models.MeetingStatus, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE messages SET status = $3, responded_at = $4
        WHERE id = $1 AND status = $2
    `, id, string(from), string(to), at)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("update message status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM messages WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("check message exists: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrConflict
}

// DeleteForOwner removes a request addressed to ownerID.
func (r *PostgresMessageRepository) DeleteForOwner(ctx context.Context, id, ownerID string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `DELETE FROM messages WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("delete message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMessage(row pgx.Row) (models.Message, error) {
	var (
		msg       models.Message
		status    string
		responded *time.Time
	)
	if err := row.Scan(&msg.ID, &msg.SenderID, &msg.OwnerID, &msg.Text, &msg.RoomID, &msg.Link, &status,
		&msg.ExpiresAt, &responded, &msg.CreatedAt); err != nil {
		return models.Message{}, err
	}
	msg.Status = models.MeetingStatus(status)
	if responded != nil {
		t := responded.UTC()
		msg.RespondedAt = &t
	}
	return msg, nil
}
