package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/skillswap/backend/internal/auth"
	"github.com/skillswap/backend/internal/mailer"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/meetings"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/progress"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/rtc"
)

type inMemoryUserStore struct {
	mu    sync.Mutex
	users map[string]models.User
}

func newInMemoryUserStore() *inMemoryUserStore {
	return &inMemoryUserStore{users: make(map[string]models.User)}
}

func (s *inMemoryUserStore) put(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.ID] = user
}

func (s *inMemoryUserStore) get(id string) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users[id]
}

func (s *inMemoryUserStore) Create(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email || u.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return models.User{}, repositories.ErrNotFound
	}
	return user, nil
}

func (s *inMemoryUserStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Email == email })
}

func (s *inMemoryUserStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.findBy(func(u models.User) bool { return u.Username == username })
}

func (s *inMemoryUserStore) findBy(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return models.User{}, repositories.ErrNotFound
}

func (s *inMemoryUserStore) Usernames(_ context.Context, ids []string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out[id] = u.Username
		}
	}
	return out, nil
}

func (s *inMemoryUserStore) Update(_ context.Context, user models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[user.ID]; !ok {
		return repositories.ErrNotFound
	}
	for id, u := range s.users {
		if id != user.ID && u.Username == user.Username {
			return repositories.ErrConflict
		}
	}
	s.users[user.ID] = user
	return nil
}

func (s *inMemoryUserStore) MarkVerified(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return repositories.ErrNotFound
	}
	u.Verified = true
	u.VerificationCode = ""
	s.users[id] = u
	return nil
}

func (s *inMemoryUserStore) IncrementWatched(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	u.WatchedVideos++
	s.users[id] = u
	return u.WatchedVideos, nil
}

type videoStoreStub struct {
	mu        sync.Mutex
	videos    map[string]models.Video
	createErr error
}

func newVideoStoreStub(videos ...models.Video) *videoStoreStub {
	s := &videoStoreStub{videos: make(map[string]models.Video)}
	for _, v := range videos {
		s.videos[v.ID] = v
	}
	return s
}

func (s *videoStoreStub) Create(_ context.Context, video models.Video) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.videos[video.ID] = video
	return nil
}

func (s *videoStoreStub) FindByID(_ context.Context, id string) (models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return models.Video{}, repositories.ErrNotFound
	}
	return v, nil
}

func (s *videoStoreStub) ListByOwner(_ context.Context, ownerID string) ([]models.Video, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Video{}
	for _, v := range s.videos {
		if v.OwnerID == ownerID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *videoStoreStub) IncrementViews(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	v.Views++
	s.videos[id] = v
	return v.Views, nil
}

func (s *videoStoreStub) AdjustLikes(_ context.Context, id string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok {
		return 0, repositories.ErrNotFound
	}
	v.Likes = max(v.Likes+delta, 0)
	s.videos[id] = v
	return v.Likes, nil
}

func (s *videoStoreStub) DeleteOwned(_ context.Context, id, ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.videos[id]
	if !ok || v.OwnerID != ownerID {
		return repositories.ErrNotFound
	}
	delete(s.videos, id)
	return nil
}

type commentStoreStub struct {
	mu       sync.Mutex
	comments []models.Comment
	videos   *videoStoreStub
}

func (s *commentStoreStub) Create(ctx context.Context, c models.Comment) error {
	if _, err := s.videos.FindByID(ctx, c.VideoID); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append([]models.Comment{c}, s.comments...)
	return nil
}

func (s *commentStoreStub) ListForVideo(_ context.Context, videoID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Comment{}
	for _, c := range s.comments {
		if c.VideoID == videoID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *commentStoreStub) AdjustLikes(_ context.Context, id string, delta int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.comments {
		if c.ID == id {
			s.comments[i].Likes = max(c.Likes+delta, 0)
			return s.comments[i].Likes, nil
		}
	}
	return 0, repositories.ErrNotFound
}

type messageStoreStub struct {
	deleted []string
	owners  map[string]string
}

func (s *messageStoreStub) DeleteForOwner(_ context.Context, id, ownerID string) error {
	if s.owners[id] != ownerID {
		return repositories.ErrNotFound
	}
	s.deleted = append(s.deleted, id)
	return nil
}

type memoryBackend struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memoryBackend) Put(_ context.Context, key, _ string, body io.Reader) (string, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = make(map[string][]byte)
	}
	m.objects[key] = data
	return "https://cdn.example.com/" + key, nil
}

func (m *memoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

type durationQueueStub struct {
	mu     sync.Mutex
	queued []models.Video
}

func (d *durationQueueStub) Enqueue(_ context.Context, video models.Video) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queued = append(d.queued, video)
	return nil
}

type mailerStub struct {
	mu   sync.Mutex
	sent []mailer.Verification
	err  error
}

func (m *mailerStub) SendVerification(_ context.Context, v mailer.Verification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, v)
	return nil
}

type feedStub struct {
	videos []models.Video
	err    error
}

func (f feedStub) FeedForUser(context.Context, string) ([]models.Video, error) {
	return f.videos, f.err
}

type trackerStub struct {
	userID string
	value  int
}

func (t *trackerStub) Update(_ context.Context, userID string, value int) (progress.Snapshot, error) {
	if value < 0 || value > 100 {
		return progress.Snapshot{}, progress.ErrOutOfRange
	}
	t.userID, t.value = userID, value
	week, _ := progress.Apply(models.WeeklyProgress{}, progress.Wednesday, value)
	return progress.Snapshot{Day: progress.Wednesday.String(), Index: progress.Wednesday, Progress: value, Week: week}, nil
}

func (t *trackerStub) Today(_ context.Context, userID string) (progress.Snapshot, error) {
	if userID == "" {
		return progress.Snapshot{}, repositories.ErrNotFound
	}
	return progress.Snapshot{Day: progress.Wednesday.String(), Index: progress.Wednesday}, nil
}

type meetingServiceStub struct {
	messages map[string]models.Message
	err      error
}

func (m *meetingServiceStub) Request(_ context.Context, senderID, ownerID, text string) (models.Message, error) {
	if senderID == ownerID {
		return models.Message{}, meetings.ErrSelfRequest
	}
	msg := models.Message{ID: "msg-1", SenderID: senderID, OwnerID: ownerID, Text: text, RoomID: "room-1", Link: meetings.Link("room-1"), Status: models.MeetingPending}
	m.messages[msg.ID] = msg
	return msg, nil
}

func (m *meetingServiceStub) Accept(_ context.Context, ownerID, id string) (models.Message, error) {
	return m.answer(ownerID, id, models.MeetingAccepted)
}

func (m *meetingServiceStub) Reject(_ context.Context, ownerID, id string) (models.Message, error) {
	return m.answer(ownerID, id, models.MeetingRejected)
}

func (m *meetingServiceStub) answer(ownerID, id string, to models.MeetingStatus) (models.Message, error) {
	if m.err != nil {
		return models.Message{}, m.err
	}
	msg, ok := m.messages[id]
	if !ok || msg.OwnerID != ownerID {
		return models.Message{}, meetings.ErrNotFound
	}
	if msg.Status != models.MeetingPending {
		return msg, meetings.ErrStateConflict
	}
	msg.Status = to
	m.messages[id] = msg
	return msg, nil
}

func (m *meetingServiceStub) Latest(_ context.Context, senderID, ownerID string) (models.Message, error) {
	for _, msg := range m.messages {
		if msg.SenderID == senderID && msg.OwnerID == ownerID {
			return msg, nil
		}
	}
	return models.Message{}, meetings.ErrNotFound
}

func (m *meetingServiceStub) Inbox(_ context.Context, ownerID string) ([]models.Message, error) {
	out := []models.Message{}
	for _, msg := range m.messages {
		if msg.OwnerID == ownerID {
			out = append(out, msg)
		}
	}
	return out, nil
}

type testEnv struct {
	t        *testing.T
	router   http.Handler
	users    *inMemoryUserStore
	videos   *videoStoreStub
	comments *commentStoreStub
	messages *messageStoreStub
	backend  *memoryBackend
	queue    *durationQueueStub
	mail     *mailerStub
	tracker  *trackerStub
	meetings *meetingServiceStub
	sessions *auth.Manager
	feed     *feedStub

	// feedSource replaces feed when set.
	feedSource FeedProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		t:        t,
		users:    newInMemoryUserStore(),
		videos:   newVideoStoreStub(),
		messages: &messageStoreStub{owners: map[string]string{}},
		backend:  &memoryBackend{},
		queue:    &durationQueueStub{},
		mail:     &mailerStub{},
		tracker:  &trackerStub{},
		meetings: &meetingServiceStub{messages: map[string]models.Message{}},
		feed:     &feedStub{},
	}
	env.comments = &commentStoreStub{videos: env.videos}

	resolver := auth.PrincipalResolverFunc(func(ctx context.Context, userID string) (auth.Principal, error) {
		u, err := env.users.FindByID(ctx, userID)
		if err != nil {
			return auth.Principal{}, err
		}
		return auth.Principal{UserID: u.ID, Username: u.Username, Verified: u.Verified}, nil
	})
	env.sessions = auth.NewManager("test-secret", time.Minute, time.Hour, auth.NewInMemorySessionStore(), resolver)

	env.router = NewRouter(Dependencies{
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
		Verifier:     env.sessions,
		Users:        env.users,
		Sessions:     env.sessions,
		Videos:       env.videos,
		Comments:     env.comments,
		Messages:     env.messages,
		Media:        media.Broker{Backend: env.backend},
		Durations:    env.queue,
		Mailer:       env.mail,
		Feed:         feedProxy{env},
		Progress:     env.tracker,
		Meetings:     env.meetings,
		Tokens:       rtc.HMACIssuer{AppID: 42, Secret: "rtc-secret"},
		CORSOrigins:  []string{"http://localhost:3000"},
		PollInterval: 30 * time.Second,
	})
	return env
}

// feedProxy lets tests swap the feed after the router is built.
type feedProxy struct{ env *testEnv }

func (f feedProxy) FeedForUser(ctx context.Context, userID string) ([]models.Video, error) {
	if f.env.feedSource != nil {
		return f.env.feedSource.FeedForUser(ctx, userID)
	}
	return f.env.feed.FeedForUser(ctx, userID)
}

func (e *testEnv) addUser(user models.User) string {
	e.t.Helper()
	e.users.put(user)
	tokens, err := e.sessions.Issue(context.Background(), auth.Principal{UserID: user.ID, Username: user.Username, Verified: user.Verified})
	if err != nil {
		e.t.Fatalf("issue tokens: %v", err)
	}
	return tokens.AccessToken
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) doRequest(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type formFilePart struct {
	field       string
	filename    string
	contentType string
	data        []byte
}

func multipartBody(t *testing.T, fields map[string]string, files ...formFilePart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="`+f.field+`"; filename="`+f.filename+`"`)
		h.Set("Content-Type", f.contentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		if _, err := part.Write(f.data); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Raw     json.RawMessage `json:"-"`
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, into any) apiResponse {
	t.Helper()
	body := rec.Body.Bytes()
	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decode response %q: %v", body, err)
	}
	if into != nil {
		if err := json.Unmarshal(body, into); err != nil {
			t.Fatalf("decode response payload: %v", err)
		}
	}
	resp.Raw = body
	return resp
}
