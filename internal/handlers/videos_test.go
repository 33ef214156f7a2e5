package handlers

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/models"
)

func newVideoUpload(t *testing.T, fields map[string]string, files ...formFilePart) *http.Request {
	t.Helper()
	body, contentType := multipartBody(t, fields, files...)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos", body)
	req.Header.Set("Content-Type", contentType)
	return req
}

func TestVideoHandlerCreateSuccess(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "owner-1", Username: "ada", Verified: true})

	req := newVideoUpload(t, map[string]string{
		"title":       "Guitar Basics",
		"description": "Chords for beginners",
		"skills":      `["Guitar","music"]`,
	},
		formFilePart{field: "video", filename: "lesson.mp4", contentType: "video/mp4", data: []byte("mp4-bytes")},
		formFilePart{field: "thumbnail", filename: "thumb.jpg", contentType: "image/jpeg", data: []byte("jpg-bytes")},
	)

	rec := env.doRequest(req, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("unexpected status: got %d want %d: %s", rec.Code, http.StatusCreated, rec.Body)
	}

	var resp struct {
		Video models.Video `json:"video"`
	}
	decodeResponse(t, rec, &resp)

	stored, err := env.videos.FindByID(req.Context(), resp.Video.ID)
	if err != nil {
		t.Fatalf("expected video to be stored: %v", err)
	}
	if stored.OwnerID != "owner-1" || stored.Title != "Guitar Basics" {
		t.Fatalf("unexpected video %+v", stored)
	}
	if len(stored.Skills) != 2 || stored.Skills[0] != "guitar" {
		t.Fatalf("expected lower-cased skills, got %v", stored.Skills)
	}
	if stored.VideoURL == "" || stored.ThumbnailURL == "" || stored.ETag == "" {
		t.Fatalf("expected media fields to be populated, got %+v", stored)
	}
	if env.backend.count() != 2 {
		t.Fatalf("expected video and thumbnail to be stored, got %d objects", env.backend.count())
	}
	if len(env.queue.queued) != 1 || env.queue.queued[0].ID != stored.ID {
		t.Fatalf("expected a duration probe to be scheduled, got %+v", env.queue.queued)
	}
}

func TestVideoHandlerCreateDiscardsUploadsWhenInsertFails(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "owner-1", Username: "ada", Verified: true})
	env.videos.createErr = errors.New("insert failed")

	req := newVideoUpload(t, map[string]string{"title": "Guitar", "description": "Chords"},
		formFilePart{field: "video", filename: "lesson.mp4", contentType: "video/mp4", data: []byte("mp4-bytes")},
		formFilePart{field: "thumbnail", filename: "thumb.jpg", contentType: "image/jpeg", data: []byte("jpg-bytes")},
	)

	rec := env.doRequest(req, token)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusInternalServerError)
	}
	if env.backend.count() != 0 {
		t.Fatalf("expected uploads to be removed, %d objects left", env.backend.count())
	}
	if len(env.queue.queued) != 0 {
		t.Fatal("no duration probe should be scheduled for a failed insert")
	}
}

func TestVideoHandlerCreateDiscardsVideoWhenThumbnailRejected(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "owner-1", Username: "ada", Verified: true})

	req := newVideoUpload(t, map[string]string{"title": "Guitar", "description": "Chords"},
		formFilePart{field: "video", filename: "lesson.mp4", contentType: "video/mp4", data: []byte("mp4-bytes")},
		formFilePart{field: "thumbnail", filename: "thumb.bmp", contentType: "image/bmp", data: []byte("bmp-bytes")},
	)

	rec := env.doRequest(req, token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d want %d", rec.Code, http.StatusBadRequest)
	}
	if env.backend.count() != 0 {
		t.Fatalf("expected video upload to be removed, %d objects left", env.backend.count())
	}
}

func TestVideoHandlerCreateRejectsBadInput(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "owner-1", Username: "ada"})

	fields := map[string]string{"title": "Guitar", "description": "Chords"}

	rec := env.doRequest(newVideoUpload(t, fields), token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing video to fail, got %d", rec.Code)
	}

	rec = env.doRequest(newVideoUpload(t, map[string]string{"description": "Chords"},
		formFilePart{field: "video", filename: "a.mp4", contentType: "video/mp4", data: []byte("x")}), token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected missing title to fail, got %d", rec.Code)
	}

	rec = env.doRequest(newVideoUpload(t, fields,
		formFilePart{field: "video", filename: "a.mkv", contentType: "video/x-matroska", data: []byte("x")}), token)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unsupported type to fail, got %d", rec.Code)
	}

	if env.backend.count() != 0 || len(env.queue.queued) != 0 {
		t.Fatal("rejected uploads must not be stored")
	}
}

func TestUploadStatus(t *testing.T) {
	cases := map[error]int{
		media.ErrUnsupportedType:    http.StatusBadRequest,
		media.ErrTooLarge:           http.StatusRequestEntityTooLarge,
		media.ErrEmpty:              http.StatusBadRequest,
		media.ErrBackendUnavailable: http.StatusBadGateway,
	}
	for err, want := range cases {
		if got, _ := uploadStatus(err); got != want {
			t.Fatalf("%v: expected %d got %d", err, want, got)
		}
	}
}

func TestVideoHandlerGetAndViews(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "u1", Username: "ada"})
	env.videos.videos["v1"] = models.Video{ID: "v1", OwnerID: "u2", Title: "Knots"}

	rec := env.do(http.MethodGet, "/api/v1/videos/v1", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}

	env.do(http.MethodPost, "/api/v1/videos/v1/views", token, nil)
	rec = env.do(http.MethodPost, "/api/v1/videos/v1/views", token, nil)
	var resp struct {
		Views int64 `json:"views"`
	}
	decodeResponse(t, rec, &resp)
	if resp.Views != 2 {
		t.Fatalf("expected 2 views got %d", resp.Views)
	}

	if rec := env.do(http.MethodGet, "/api/v1/videos/missing", token, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rec.Code)
	}
}

func TestVideoHandlerComments(t *testing.T) {
	env := newTestEnv(t)
	token := env.addUser(models.User{ID: "u1", Username: "ada"})
	env.videos.videos["v1"] = models.Video{ID: "v1", OwnerID: "u2"}

	for _, text := range []string{"first", "second"} {
		rec := env.do(http.MethodPost, "/api/v1/videos/v1/comments", token, createCommentRequest{Text: text})
		if rec.Code != http.StatusCreated {
			t.Fatalf("expected 201 got %d: %s", rec.Code, rec.Body)
		}
	}

	rec := env.do(http.MethodGet, "/api/v1/videos/v1/comments", token, nil)
	var resp struct {
		Comments []models.Comment `json:"comments"`
	}
	decodeResponse(t, rec, &resp)
	if len(resp.Comments) != 2 || resp.Comments[0].Text != "second" || resp.Comments[0].UserID != "u1" {
		t.Fatalf("expected newest comment first, got %+v", resp.Comments)
	}

	if rec := env.do(http.MethodPost, "/api/v1/videos/v1/comments", token, createCommentRequest{Text: "  "}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected blank comment to fail, got %d", rec.Code)
	}
	if rec := env.do(http.MethodPost, "/api/v1/videos/missing/comments", token, createCommentRequest{Text: "hi"}); rec.Code != http.StatusNotFound {
		t.Fatalf("expected missing video to 404, got %d", rec.Code)
	}

	raw := bytes.NewBufferString(`{"text":`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/videos/v1/comments", raw)
	if rec := env.doRequest(req, token); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected malformed body to fail, got %d", rec.Code)
	}
}
