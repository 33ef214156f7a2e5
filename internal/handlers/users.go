package handlers

import (
	"errors"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/matching"
	"github.com/skillswap/backend/internal/media"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// UserHandler serves member profiles.
type UserHandler struct {
	Users   UserStore
	Videos  VideoStore
	Media   MediaUploader
	NowFunc func() time.Time
}

type updateProfileRequest struct {
	Username     string   `json:"username" validate:"omitempty,min=2,max=20"`
	Skills       []string `json:"skills" validate:"omitempty,max=10,dive,min=2,max=30"`
	WantedSkills []string `json:"wantedSkills" validate:"omitempty,max=10"`
}

// Me handles GET /api/v1/users/me.
func (h UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	user, err := h.Users.FindByID(ctx, principal.UserID)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "profile loaded", envelope{"user": user})
}

// UpdateMe handles PUT /api/v1/users/me. Only verified members may edit their
// profile; absent fields are left unchanged.
func (h UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req updateProfileRequest
	var picture *multipart.FileHeader
	if isMultipart(r) {
		r.Body = http.MaxBytesReader(w, r.Body, media.MaxImageBytes+(1<<20))
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			status, msg := parseFormStatus(err)
			respondError(ctx, w, status, msg)
			return
		}
		req = updateProfileRequest{
			Username:     r.FormValue("username"),
			Skills:       parseList(r.FormValue("skills")),
			WantedSkills: parseList(r.FormValue("wantedSkills")),
		}
		header, err := formFile(r, "profilePic")
		if err != nil {
			respondError(ctx, w, http.StatusBadRequest, "invalid profile picture")
			return
		}
		picture = header
	} else if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Skills = matching.NormalizeSkills(req.Skills)
	req.WantedSkills = matching.NormalizeSkills(req.WantedSkills)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := h.Users.FindByID(ctx, principal.UserID)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	if !user.Verified {
		respondError(ctx, w, http.StatusForbidden, "verify your account before editing your profile")
		return
	}

	if req.Username != "" {
		user.Username = req.Username
	}
	if len(req.Skills) > 0 {
		user.Skills = req.Skills
	}
	if len(req.WantedSkills) > 0 {
		user.WantedSkills = req.WantedSkills
	}
	if picture != nil {
		asset, err := storeUpload(ctx, h.Media, media.KindImage, picture)
		if err != nil {
			status, msg := uploadStatus(err)
			logger.Warn("profile picture rejected", "error", err)
			respondError(ctx, w, status, msg)
			return
		}
		user.ProfilePic = asset.URL
	}
	user.UpdatedAt = h.now()

	if err := h.Users.Update(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondError(ctx, w, http.StatusConflict, "username already exists")
			return
		}
		logger.Error("profile update failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update profile")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "profile updated", envelope{"user": user})
}

// Watched handles POST /api/v1/users/me/watched.
func (h UserHandler) Watched(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	count, err := h.Users.IncrementWatched(ctx, principal.UserID)
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "watched videos updated", envelope{"watchedVideos": count})
}

// Profile handles GET /api/v1/users/{id}.
func (h UserHandler) Profile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	user, err := h.Users.FindByID(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.lookupFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "profile loaded", envelope{"user": user.Public()})
}

// OwnerVideos handles GET /api/v1/users/{id}/videos.
func (h UserHandler) OwnerVideos(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	videos, err := h.Videos.ListByOwner(ctx, chi.URLParam(r, "id"))
	if err != nil {
		logging.FromContext(ctx).Error("list owner videos failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load videos")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "videos loaded", envelope{"videos": videos})
}

func (h UserHandler) lookupFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, repositories.ErrNotFound) {
		respondError(ctx, w, http.StatusNotFound, "user not found")
		return
	}
	logging.FromContext(ctx).Error("user lookup failed", "error", err)
	respondError(ctx, w, http.StatusInternalServerError, "failed to load user")
}

func (h UserHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
