package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/skillswap/backend/internal/db"
	"github.com/skillswap/backend/internal/models"
)

const userColumns = `id, username, email, password_hash, skills, wanted_skills, verification_code,
        verification_expires_at, verified, watched_videos, profile_pic, progress, created_at, updated_at`

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (id, username, email, password_hash, skills, wanted_skills, verification_code,
            verification_expires_at, verified, profile_pic, progress, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, user.ID, user.Username, user.Email, user.Password, nonNil(user.Skills), nonNil(user.WantedSkills),
		user.VerificationCode, nullTime(user.VerificationExpiresAt), user.Verified, user.ProfilePic,
		progressSlice(user.Progress), user.CreatedAt, user.UpdatedAt)
	if err != nil {
		if mapped := translate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByID fetches a user by identifier.
func (r *PostgresUserRepository) FindByID(ctx context.Context, id string) (models.User, error) {
	return r.findOne(ctx, "id", id)
}

// FindByEmail fetches a user by their email address.
func (r *PostgresUserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return r.findOne(ctx, "email", email)
}

// FindByUsername fetches a user by their username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	return r.findOne(ctx, "username", username)
}

func (r *PostgresUserRepository) findOne(ctx context.Context, column, value string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	// column is one of a fixed set chosen by the callers above.
	row := conn.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+column+` = $1`, value)

	user, err := scanUser(row)
	if err != nil {
		if isMissing(err) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by %s: %w", column, err)
	}
	return user, nil
}

// Usernames resolves user ids to usernames. Unknown ids are omitted.
func (r *PostgresUserRepository) Usernames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `SELECT id, username FROM users WHERE id = ANY($1::UUID[])`, ids)
	if err != nil {
		return nil, fmt.Errorf("query usernames: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scan username: %w", err)
		}
		names[id] = name
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usernames: %w", err)
	}
	return names, nil
}

// Update modifies the mutable columns of an existing user record.
func (r *PostgresUserRepository) Update(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET username = $2, email = $3, password_hash = $4, skills = $5, wanted_skills = $6,
            verification_code = $7, verification_expires_at = $8, profile_pic = $9, updated_at = $10
        WHERE id = $1
    `, user.ID, user.Username, user.Email, user.Password, nonNil(user.Skills), nonNil(user.WantedSkills),
		user.VerificationCode, nullTime(user.VerificationExpiresAt), user.ProfilePic, user.UpdatedAt)
	if err != nil {
		if mapped := translate(err); mapped != nil {
			return mapped
		}
		return fmt.Errorf("update user: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// MarkVerified flags the account as verified and clears the pending code.
func (r *PostgresUserRepository) MarkVerified(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET verified = true, verification_code = '', verification_expires_at = NULL, updated_at = NOW()
        WHERE id = $1
    `, id)
	if err != nil {
		if isMissing(err) {
			return ErrNotFound
		}
		return fmt.Errorf("mark user verified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IncrementWatched bumps the watched-video counter and returns the new value.
func (r *PostgresUserRepository) IncrementWatched(ctx context.Context, id string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var watched int64
	err = conn.QueryRow(ctx, `
        UPDATE users SET watched_videos = watched_videos + 1 WHERE id = $1 RETURNING watched_videos
    `, id).Scan(&watched)
	if err != nil {
		if isMissing(err) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("increment watched videos: %w", err)
	}
	return watched, nil
}

// Progress returns the user's weekly progress.
func (r *PostgresUserRepository) Progress(ctx context.Context, id string) (models.WeeklyProgress, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.WeeklyProgress{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var raw []int64
	if err := conn.QueryRow(ctx, `SELECT progress FROM users WHERE id = $1`, id).Scan(&raw); err != nil {
		if isMissing(err) {
			return models.WeeklyProgress{}, ErrNotFound
		}
		return models.WeeklyProgress{}, fmt.Errorf("select progress: %w", err)
	}
	return toProgress(raw), nil
}

// UpdateProgress runs fn against the locked progress row and stores its result in the
// same transaction, so concurrent updates for one user apply one after another.
func (r *PostgresUserRepository) UpdateProgress(ctx context.Context, id string, fn func(models.WeeklyProgress) (models.WeeklyProgress, error)) (models.WeeklyProgress, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.WeeklyProgress{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return models.WeeklyProgress{}, fmt.Errorf("begin progress transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var raw []int64
	if err := tx.QueryRow(ctx, `SELECT progress FROM users WHERE id = $1 FOR UPDATE`, id).Scan(&raw); err != nil {
		if isMissing(err) {
			return models.WeeklyProgress{}, ErrNotFound
		}
		return models.WeeklyProgress{}, fmt.Errorf("lock progress: %w", err)
	}

	next, err := fn(toProgress(raw))
	if err != nil {
		return models.WeeklyProgress{}, err
	}

	if _, err := tx.Exec(ctx, `UPDATE users SET progress = $2, updated_at = NOW() WHERE id = $1`, id, progressSlice(next)); err != nil {
		return models.WeeklyProgress{}, fmt.Errorf("store progress: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return models.WeeklyProgress{}, fmt.Errorf("commit progress: %w", err)
	}
	return next, nil
}

// ResetAllProgress zeroes every user's week in a single statement.
func (r *PostgresUserRepository) ResetAllProgress(ctx context.Context) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `UPDATE users SET progress = ARRAY[0, 0, 0, 0, 0, 0, 0]::BIGINT[], updated_at = NOW()`)
	if err != nil {
		return 0, fmt.Errorf("reset progress: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var (
		user     models.User
		expires  *time.Time
		progress []int64
	)
	err := row.Scan(&user.ID, &user.Username, &user.Email, &user.Password, &user.Skills, &user.WantedSkills,
		&user.VerificationCode, &expires, &user.Verified, &user.WatchedVideos, &user.ProfilePic, &progress,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return models.User{}, err
	}
	if expires != nil {
		user.VerificationExpiresAt = expires.UTC()
	}
	user.Progress = toProgress(progress)
	return user, nil
}

func toProgress(raw []int64) models.WeeklyProgress {
	var week models.WeeklyProgress
	for i := 0; i < len(raw) && i < len(week); i++ {
		week[i] = int(raw[i])
	}
	return week
}

func progressSlice(week models.WeeklyProgress) []int64 {
	out := make([]int64, len(week))
	for i, v := range week {
		out[i] = int64(v)
	}
	return out
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

var (
	_ UserRepository    = (*PostgresUserRepository)(nil)
	_ VideoRepository   = (*PostgresVideoRepository)(nil)
	_ CommentRepository = (*PostgresCommentRepository)(nil)
	_ MessageRepository = (*PostgresMessageRepository)(nil)
)
