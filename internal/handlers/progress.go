package handlers

import (
	"errors"
	"net/http"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/progress"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// ProgressHandler exposes the weekly progress tracker.
type ProgressHandler struct {
	Tracker ProgressTracker
}

type updateProgressRequest struct {
	Progress *int `json:"progress" validate:"required,gte=0,lte=100"`
}

// Get handles GET /api/v1/progress.
func (h ProgressHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	snap, err := h.Tracker.Today(ctx, principal.UserID)
	if err != nil {
		progressFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "progress loaded", envelope{"progress": snap})
}

// Update handles POST /api/v1/progress.
func (h ProgressHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req updateProgressRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	snap, err := h.Tracker.Update(ctx, principal.UserID, *req.Progress)
	if err != nil {
		progressFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "progress updated", envelope{"progress": snap})
}

func progressFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, progress.ErrOutOfRange):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repositories.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "user not found")
	default:
		logging.FromContext(ctx).Error("progress operation failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to update progress")
	}
}
