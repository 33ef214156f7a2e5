package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// DeleteHandler removes records the caller owns.
type DeleteHandler struct {
	Videos   VideoStore
	Messages MessageStore
}

type deleteRequest struct {
	ID    string `json:"id" validate:"required"`
	Model string `json:"model" validate:"required"`
}

// Delete handles POST /api/v1/delete. Videos may be deleted by their owner and
// meeting requests by their recipient. Unknown model names are ignored and
// answered with success.
func (h DeleteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req deleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	var err error
	switch strings.ToLower(strings.TrimSpace(req.Model)) {
	case "video":
		err = h.Videos.DeleteOwned(ctx, req.ID, principal.UserID)
	case "message":
		err = h.Messages.DeleteForOwner(ctx, req.ID, principal.UserID)
	default:
		logger.Warn("delete requested for unknown model", "model", req.Model, "id", req.ID)
		respondSuccess(ctx, w, http.StatusOK, "deleted successfully", nil)
		return
	}

	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, "record not found")
			return
		}
		logger.Error("delete failed", "error", err, "model", req.Model)
		respondError(ctx, w, http.StatusInternalServerError, "failed to delete record")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "deleted successfully", nil)
}
