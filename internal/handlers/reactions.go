package handlers

import (
	"errors"
	"net/http"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/repositories"
	"github.com/skillswap/backend/internal/validation"
)

// ReactionHandler records likes and dislikes on videos and comments.
type ReactionHandler struct {
	Videos   VideoStore
	Comments CommentStore
}

type reactionRequest struct {
	Type   string `json:"type" validate:"required,oneof=video comment"`
	ID     string `json:"id" validate:"required"`
	Action string `json:"action" validate:"required,oneof=like dislike"`
}

// React handles POST /api/v1/reactions. A dislike removes one like and never
// takes the counter below zero.
func (h ReactionHandler) React(w http.ResponseWriter, r *http.Request) {
	if _, ok := requirePrincipal(w, r); !ok {
		return
	}
	ctx := r.Context()

	var req reactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request")
		return
	}
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	delta := int64(1)
	message := "liked successfully"
	if req.Action == "dislike" {
		delta = -1
		message = "disliked successfully"
	}

	var (
		likes int64
		err   error
	)
	if req.Type == "video" {
		likes, err = h.Videos.AdjustLikes(ctx, req.ID, delta)
	} else {
		likes, err = h.Comments.AdjustLikes(ctx, req.ID, delta)
	}
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondError(ctx, w, http.StatusNotFound, req.Type+" not found")
			return
		}
		logging.FromContext(ctx).Error("reaction failed", "error", err, "type", req.Type)
		respondError(ctx, w, http.StatusInternalServerError, "failed to record reaction")
		return
	}

	respondSuccess(ctx, w, http.StatusOK, message, envelope{"likes": likes})
}
