package repositories

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/cockroachdb/cockroach-go/v2/testserver"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/models"
)

var testPool *pgxpool.Pool

func TestMain(m *testing.M) {
	server, err := testserver.NewTestServer()
	if err != nil {
		fmt.Fprintf(os.Stderr, "start cockroach test server: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, server.PGURL().String())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect to cockroach test server: %v\n", err)
		server.Stop()
		os.Exit(1)
	}

	if err := applyMigrations(ctx, pool); err != nil {
		fmt.Fprintf(os.Stderr, "apply migrations: %v\n", err)
		pool.Close()
		server.Stop()
		os.Exit(1)
	}

	testPool = pool

	code := m.Run()

	pool.Close()
	server.Stop()

	os.Exit(code)
}

func TestPostgresUserRepository_CreateFindAndUpdate(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	user := createTestUser(t, repo, "alice", []string{"guitar"}, []string{"cooking"})

	dup := newTestUser("alice2", user.Email)
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate email, got %v", err)
	}
	dup = newTestUser(user.Username, "other@example.com")
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate username, got %v", err)
	}

	byEmail, err := repo.FindByEmail(ctx, user.Email)
	if err != nil {
		t.Fatalf("find by email: %v", err)
	}
	if byEmail.ID != user.ID || byEmail.Verified || len(byEmail.Skills) != 1 || byEmail.Skills[0] != "guitar" {
		t.Fatalf("unexpected user %+v", byEmail)
	}

	byName, err := repo.FindByUsername(ctx, user.Username)
	if err != nil || byName.ID != user.ID {
		t.Fatalf("find by username: %+v %v", byName, err)
	}

	byName.WantedSkills = []string{"cooking", "spanish"}
	byName.ProfilePic = "https://cdn.example.com/a.png"
	byName.UpdatedAt = time.Now().UTC()
	if err := repo.Update(ctx, byName); err != nil {
		t.Fatalf("update: %v", err)
	}

	if err := repo.MarkVerified(ctx, user.ID); err != nil {
		t.Fatalf("mark verified: %v", err)
	}

	loaded, err := repo.FindByID(ctx, user.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if !loaded.Verified || loaded.VerificationCode != "" || !loaded.VerificationExpiresAt.IsZero() {
		t.Fatalf("expected verified account with cleared code: %+v", loaded)
	}
	if len(loaded.WantedSkills) != 2 || loaded.ProfilePic == "" {
		t.Fatalf("update not persisted: %+v", loaded)
	}

	watched, err := repo.IncrementWatched(ctx, user.ID)
	if err != nil || watched != 1 {
		t.Fatalf("increment watched: %d %v", watched, err)
	}

	names, err := repo.Usernames(ctx, []string{user.ID, uuid.NewString()})
	if err != nil {
		t.Fatalf("usernames: %v", err)
	}
	if len(names) != 1 || names[user.ID] != "alice" {
		t.Fatalf("unexpected names %v", names)
	}

	if _, err := repo.FindByID(ctx, uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresUserRepository_Progress(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	repo := NewPostgresUserRepository(testPool)
	alice := createTestUser(t, repo, "alice", nil, nil)
	bob := createTestUser(t, repo, "bob", nil, nil)

	for i := 1; i <= 10; i++ {
		v := i
		_, err := repo.UpdateProgress(ctx, alice.ID, func(week models.WeeklyProgress) (models.WeeklyProgress, error) {
			week[2] += v
			return week, nil
		})
		if err != nil {
			t.Fatalf("update progress: %v", err)
		}
	}

	week, err := repo.Progress(ctx, alice.ID)
	if err != nil {
		t.Fatalf("progress: %v", err)
	}
	if week[2] != 55 {
		t.Fatalf("expected read-modify-write updates to sum to 55, got %v", week)
	}

	sentinel := errors.New("rejected")
	if _, err := repo.UpdateProgress(ctx, bob.ID, func(models.WeeklyProgress) (models.WeeklyProgress, error) {
		return models.WeeklyProgress{}, sentinel
	}); !errors.Is(err, sentinel) {
		t.Fatalf("expected callback error, got %v", err)
	}

	if _, err := repo.UpdateProgress(ctx, uuid.NewString(), func(w models.WeeklyProgress) (models.WeeklyProgress, error) {
		return w, nil
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	affected, err := repo.ResetAllProgress(ctx)
	if err != nil || affected != 2 {
		t.Fatalf("reset all: %d %v", affected, err)
	}
	week, _ = repo.Progress(ctx, alice.ID)
	if week != (models.WeeklyProgress{}) {
		t.Fatalf("expected zeroed week, got %v", week)
	}
}

func TestPostgresVideoRepository_SkillsAndCounters(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, users, "owner", nil, nil)
	other := createTestUser(t, users, "other", nil, nil)

	repo := NewPostgresVideoRepository(testPool)
	base := time.Now().UTC().Add(-time.Hour)
	guitar := createTestVideo(t, repo, owner.ID, []string{"guitar"}, base)
	piano := createTestVideo(t, repo, owner.ID, []string{"piano", "theory"}, base.Add(time.Minute))
	createTestVideo(t, repo, other.ID, []string{"cooking"}, base.Add(2*time.Minute))

	matched, err := repo.ListBySkills(ctx, []string{"guitar", "piano"})
	if err != nil {
		t.Fatalf("list by skills: %v", err)
	}
	if len(matched) != 2 || matched[0].ID != piano.ID || matched[1].ID != guitar.ID {
		t.Fatalf("expected newest-first guitar/piano videos, got %+v", matched)
	}

	owned, err := repo.ListByOwner(ctx, other.ID)
	if err != nil || len(owned) != 1 {
		t.Fatalf("list by owner: %+v %v", owned, err)
	}

	if views, err := repo.IncrementViews(ctx, guitar.ID); err != nil || views != 1 {
		t.Fatalf("increment views: %d %v", views, err)
	}
	if likes, err := repo.AdjustLikes(ctx, guitar.ID, 1); err != nil || likes != 1 {
		t.Fatalf("like: %d %v", likes, err)
	}
	if likes, err := repo.AdjustLikes(ctx, guitar.ID, -5); err != nil || likes != 0 {
		t.Fatalf("dislike should floor at zero: %d %v", likes, err)
	}

	missing, err := repo.ListMissingDuration(ctx, 10)
	if err != nil || len(missing) != 3 {
		t.Fatalf("missing duration: %d %v", len(missing), err)
	}
	if err := repo.SetDuration(ctx, guitar.ID, 312.5); err != nil {
		t.Fatalf("set duration: %v", err)
	}
	loaded, err := repo.FindByID(ctx, guitar.ID)
	if err != nil || loaded.Duration != 312.5 {
		t.Fatalf("duration not stored: %+v %v", loaded, err)
	}

	if err := repo.DeleteOwned(ctx, guitar.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting someone else's video, got %v", err)
	}
	if err := repo.DeleteOwned(ctx, guitar.ID, owner.ID); err != nil {
		t.Fatalf("delete owned: %v", err)
	}
	if _, err := repo.FindByID(ctx, guitar.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted video to be gone, got %v", err)
	}
}

func TestPostgresCommentRepository(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	owner := createTestUser(t, users, "owner", nil, nil)
	video := createTestVideo(t, NewPostgresVideoRepository(testPool), owner.ID, []string{"guitar"}, time.Now().UTC())

	repo := NewPostgresCommentRepository(testPool)
	first := models.Comment{ID: uuid.NewString(), VideoID: video.ID, UserID: owner.ID, Text: "first", CreatedAt: time.Now().UTC().Add(-time.Minute)}
	second := models.Comment{ID: uuid.NewString(), VideoID: video.ID, UserID: owner.ID, Text: "second", CreatedAt: time.Now().UTC()}
	for _, c := range []models.Comment{first, second} {
		if err := repo.Create(ctx, c); err != nil {
			t.Fatalf("create comment: %v", err)
		}
	}

	orphan := models.Comment{ID: uuid.NewString(), VideoID: uuid.NewString(), UserID: owner.ID, Text: "x", CreatedAt: time.Now().UTC()}
	if err := repo.Create(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing video, got %v", err)
	}

	comments, err := repo.ListForVideo(ctx, video.ID)
	if err != nil || len(comments) != 2 || comments[0].Text != "second" {
		t.Fatalf("unexpected comments %+v %v", comments, err)
	}

	if likes, err := repo.AdjustLikes(ctx, first.ID, 1); err != nil || likes != 1 {
		t.Fatalf("like comment: %d %v", likes, err)
	}
	if likes, err := repo.AdjustLikes(ctx, first.ID, -1); err != nil || likes != 0 {
		t.Fatalf("dislike comment: %d %v", likes, err)
	}
}

func TestPostgresMessageRepository_Transitions(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	sender := createTestUser(t, users, "sender", nil, nil)
	owner := createTestUser(t, users, "owner", nil, nil)

	repo := NewPostgresMessageRepository(testPool)
	now := time.Now().UTC()
	older := newTestMessage(sender.ID, owner.ID, now.Add(-time.Minute))
	newer := newTestMessage(sender.ID, owner.ID, now)
	for _, m := range []models.Message{older, newer} {
		if err := repo.Create(ctx, m); err != nil {
			t.Fatalf("create message: %v", err)
		}
	}

	latest, err := repo.LatestBetween(ctx, sender.ID, owner.ID)
	if err != nil || latest.ID != newer.ID || latest.Status != models.MeetingPending {
		t.Fatalf("unexpected latest %+v %v", latest, err)
	}
	if _, err := repo.LatestBetween(ctx, owner.ID, sender.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected direction to matter, got %v", err)
	}

	if err := repo.Transition(ctx, newer.ID, models.MeetingPending, models.MeetingAccepted, now); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := repo.Transition(ctx, newer.ID, models.MeetingPending, models.MeetingRejected, now); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict leaving a terminal state, got %v", err)
	}
	if err := repo.Transition(ctx, uuid.NewString(), models.MeetingPending, models.MeetingRejected, now); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	loaded, err := repo.FindByID(ctx, newer.ID)
	if err != nil || loaded.Status != models.MeetingAccepted || loaded.RespondedAt == nil {
		t.Fatalf("unexpected message %+v %v", loaded, err)
	}

	inbox, err := repo.ListForOwner(ctx, owner.ID)
	if err != nil || len(inbox) != 2 || inbox[0].ID != newer.ID {
		t.Fatalf("unexpected inbox %+v %v", inbox, err)
	}

	if err := repo.DeleteForOwner(ctx, older.ID, sender.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("only the recipient may delete, got %v", err)
	}
	if err := repo.DeleteForOwner(ctx, older.ID, owner.ID); err != nil {
		t.Fatalf("delete for owner: %v", err)
	}
}

func TestPostgresSessionStore_SaveFindAndDelete(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	user := createTestUser(t, NewPostgresUserRepository(testPool), "owner", nil, nil)

	store := NewPostgresSessionStore(testPool)
	expires := time.Now().UTC().Add(24 * time.Hour)
	session := auth.Session{
		RefreshToken: uuid.NewString(),
		UserID:       user.ID,
		ExpiresAt:    expires,
	}

	if err := store.Save(ctx, session); err != nil {
		t.Fatalf("save session: %v", err)
	}

	loaded, err := store.Find(ctx, session.RefreshToken)
	if err != nil {
		t.Fatalf("find session: %v", err)
	}
	if loaded.UserID != session.UserID || !timesClose(loaded.ExpiresAt, expires, time.Millisecond) {
		t.Fatalf("unexpected session loaded: %+v", loaded)
	}

	if err := store.Delete(ctx, session.RefreshToken); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if _, err := store.Find(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, session.RefreshToken); !errors.Is(err, auth.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound deleting twice, got %v", err)
	}

	orphan := auth.Session{RefreshToken: uuid.NewString(), UserID: uuid.NewString(), ExpiresAt: expires}
	if err := store.Save(ctx, orphan); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown user, got %v", err)
	}

	for i := 0; i < 2; i++ {
		s := auth.Session{RefreshToken: uuid.NewString(), UserID: user.ID, ExpiresAt: expires}
		if err := store.Save(ctx, s); err != nil {
			t.Fatalf("save session: %v", err)
		}
	}
	if n, err := store.DeleteForUser(ctx, user.ID); err != nil || n != 2 {
		t.Fatalf("expected two sessions removed, got %d %v", n, err)
	}
	if n, err := store.DeleteForUser(ctx, "not-a-uuid"); err != nil || n != 0 {
		t.Fatalf("expected malformed user id to remove nothing, got %d %v", n, err)
	}
}

func TestRepositories_MalformedIDsReadAsNotFound(t *testing.T) {
	ctx := context.Background()
	resetDatabase(t)

	users := NewPostgresUserRepository(testPool)
	videos := NewPostgresVideoRepository(testPool)
	comments := NewPostgresCommentRepository(testPool)
	messages := NewPostgresMessageRepository(testPool)
	owner := createTestUser(t, users, "owner", nil, nil)

	if _, err := users.FindByID(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for user id, got %v", err)
	}
	if err := users.MarkVerified(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound marking verified, got %v", err)
	}
	if _, err := videos.FindByID(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for video id, got %v", err)
	}
	if _, err := videos.IncrementViews(ctx, "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound incrementing views, got %v", err)
	}
	if err := videos.DeleteOwned(ctx, "1", owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting video, got %v", err)
	}
	if list, err := videos.ListByOwner(ctx, "abc"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty owner list, got %v %v", list, err)
	}
	if list, err := comments.ListForVideo(ctx, "abc"); err != nil || len(list) != 0 {
		t.Fatalf("expected empty comment list, got %v %v", list, err)
	}

	msg := newTestMessage(owner.ID, "bob", time.Now().UTC())
	if err := messages.Create(ctx, msg); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown recipient, got %v", err)
	}
	if _, err := messages.FindByID(ctx, "xyz"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for message id, got %v", err)
	}
	if err := messages.Transition(ctx, "xyz", models.MeetingPending, models.MeetingAccepted, time.Now()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound answering, got %v", err)
	}
	if err := messages.DeleteForOwner(ctx, "1", owner.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting message, got %v", err)
	}
}

func TestTranslate(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{codeUniqueViolation, ErrConflict},
		{codeForeignKeyViolation, ErrNotFound},
		{codeInvalidTextInput, ErrNotFound},
		{"40001", nil},
	}
	for _, tc := range cases {
		err := fmt.Errorf("wrapped: %w", &pgconn.PgError{Code: tc.code})
		if got := translate(err); got != tc.want {
			t.Fatalf("translate(%s) = %v, want %v", tc.code, got, tc.want)
		}
	}
	if !isMissing(&pgconn.PgError{Code: codeInvalidTextInput}) || isMissing(errors.New("boom")) {
		t.Fatal("unexpected isMissing result")
	}
}

func applyMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrationsDir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(migrationsDir)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		contents, err := os.ReadFile(filepath.Join(migrationsDir, entry.Name()))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", entry.Name(), err)
		}

		if _, err := pool.Exec(ctx, string(contents)); err != nil {
			return fmt.Errorf("apply migration %s: %w", entry.Name(), err)
		}
	}

	return nil
}

func resetDatabase(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	conn, err := testPool.Acquire(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "TRUNCATE TABLE messages, comments, videos, sessions, users CASCADE"); err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

func newTestUser(username, email string) models.User {
	now := time.Now().UTC()
	return models.User{
		ID:                    uuid.NewString(),
		Username:              username,
		Email:                 email,
		Password:              "password-hash",
		VerificationCode:      "123456",
		VerificationExpiresAt: now.Add(time.Hour),
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

func createTestUser(t *testing.T, repo *PostgresUserRepository, username string, skills, wanted []string) models.User {
	t.Helper()
	user := newTestUser(username, username+"@example.com")
	user.Skills = skills
	user.WantedSkills = wanted
	if err := repo.Create(context.Background(), user); err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return user
}

func createTestVideo(t *testing.T, repo *PostgresVideoRepository, ownerID string, skills []string, createdAt time.Time) models.Video {
	t.Helper()
	video := models.Video{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Title:       "Lesson",
		Description: "A lesson",
		VideoURL:    "https://cdn.example.com/video.mp4",
		Skills:      skills,
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	if err := repo.Create(context.Background(), video); err != nil {
		t.Fatalf("create test video: %v", err)
	}
	return video
}

func newTestMessage(senderID, ownerID string, createdAt time.Time) models.Message {
	room := uuid.NewString()
	return models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		OwnerID:   ownerID,
		Text:      "Let's meet",
		RoomID:    room,
		Link:      "/video-meet/" + room,
		Status:    models.MeetingPending,
		ExpiresAt: createdAt.Add(time.Minute),
		CreatedAt: createdAt,
	}
}

func timesClose(a, b time.Time, delta time.Duration) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= delta
}
