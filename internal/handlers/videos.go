package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/matching"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// VideoHandler provides endpoints for uploading and watching videos.
type VideoHandler struct {
	Videos    VideoStore
	Comments  CommentStore
	Media     MediaUploader
	Durations DurationQueue
	NowFunc   func() time.Time
}

type createVideoRequest struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Description string   `json:"description" validate:"required,max=500"`
	Skills      []string `json:"skills" validate:"max=10,dive,min=2,max=20"`
}

type createCommentRequest struct {
	Text string `json:"text" validate:"required,max=500"`
}

// Create handles POST /api/v1/videos. The multipart form carries title,
// description, skills, a video file and an optional thumbnail.
func (h VideoHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if h.Videos == nil || h.Media == nil {
		logger.Error("video dependencies unavailable", "hasVideos", h.Videos != nil, "hasMedia", h.Media != nil)
		respondError(ctx, w, http.StatusInternalServerError, "video services unavailable")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, media.MaxVideoBytes+media.MaxImageBytes+(1<<20))
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		status, msg := parseFormStatus(err)
		respondError(ctx, w, status, msg)
		return
	}
	defer r.MultipartForm.RemoveAll()

	req := createVideoRequest{
		Title:       strings.TrimSpace(r.FormValue("title")),
		Description: strings.TrimSpace(r.FormValue("description")),
		Skills:      matching.NormalizeSkills(parseList(r.FormValue("skills"))),
	}
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	videoFile, err := formFile(r, "video")
	if err != nil || videoFile == nil {
		respondError(ctx, w, http.StatusBadRequest, "video file is required")
		return
	}
	thumbFile, err := formFile(r, "thumbnail")
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid thumbnail")
		return
	}

	asset, err := storeUpload(ctx, h.Media, media.KindVideo, videoFile)
	if err != nil {
		status, msg := uploadStatus(err)
		logger.Warn("video upload rejected", "error", err)
		respondError(ctx, w, status, msg)
		return
	}

	stored := []media.Asset{asset}
	now := h.now()
	video := models.Video{
		ID:          uuid.NewString(),
		OwnerID:     principal.UserID,
		Title:       req.Title,
		Description: req.Description,
		VideoURL:    asset.URL,
		Skills:      req.Skills,
		ETag:        asset.ETag,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if thumbFile != nil {
		thumb, err := storeUpload(ctx, h.Media, media.KindImage, thumbFile)
		if err != nil {
			status, msg := uploadStatus(err)
			logger.Warn("thumbnail upload rejected", "error", err)
			discardUploads(ctx, h.Media, asset)
			respondError(ctx, w, status, msg)
			return
		}
		video.ThumbnailURL = thumb.URL
		stored = append(stored, thumb)
	}

	if err := h.Videos.Create(ctx, video); err != nil {
		discardUploads(ctx, h.Media, stored...)
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}
		logger.Error("failed to store video", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to save video")
		return
	}

	if h.Durations != nil {
		if err := h.Durations.Enqueue(ctx, video); err != nil {
			logger.Warn("failed to schedule duration probe", "error", err, "videoId", video.ID)
		}
	}

	respondSuccess(ctx, w, http.StatusCreated, "video uploaded successfully", envelope{"video": video})
}

// Get handles GET /api/v1/videos/{id}.
func (h VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	video, err := h.Videos.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		videoLookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "video loaded", envelope{"video": video})
}

// View handles POST /api/v1/videos/{id}/views.
func (h VideoHandler) View(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.Videos.IncrementViews(ctx, chi.URLParam(r, "id"))
	if err != nil {
		videoLookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "view recorded", envelope{"views": views})
}

// ListComments handles GET /api/v1/videos/{id}/comments, newest first.
func (h VideoHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	comments, err := h.Comments.ListForVideo(ctx, chi.URLParam(r, "id"))
	if err != nil {
		logging.FromContext(ctx).Error("list comments failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load comments")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "comments loaded", envelope{"comments": comments})
}

// Comment handles POST /api/v1/videos/{id}/comments.
func (h VideoHandler) Comment(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req createCommentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Text = strings.TrimSpace(req.Text)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	comment := models.Comment{
		ID:        uuid.NewString(),
		VideoID:   chi.URLParam(r, "id"),
		UserID:    principal.UserID,
		Text:      req.Text,
		CreatedAt: h.now(),
	}
	if err := h.Comments.Create(ctx, comment); err != nil {
		videoLookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusCreated, "comment added successfully", envelope{"comment": comment})
}

// discardUploads removes assets no row refers to. Failures only leave the keys in
// the log for manual cleanup.
func discardUploads(ctx context.Context, uploader MediaUploader, assets ...media.Asset) {
	if err := uploader.Discard(ctx, assets...); err != nil {
		keys := make([]string, len(assets))
		for i, a := range assets {
			keys[i] = a.Key
		}
		logging.FromContext(ctx).Warn("orphaned media left in storage", "error", err, "keys", keys)
	}
}

func videoLookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "video not found")
		return
	}
	logging.FromContext(ctx).Error("video operation failed", "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "video operation failed")
}

func (h VideoHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
