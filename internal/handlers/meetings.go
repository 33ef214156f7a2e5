package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/meetings"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/rtc"
	"github.com/skillswap/backend/internal/validation"
)

// MeetingHandler exposes the meeting request handshake and room tokens.
type MeetingHandler struct {
	Meetings     MeetingService
	Tokens       rtc.Issuer
	PollInterval time.Duration
}

type meetingRequest struct {
	OwnerID string `json:"ownerId" validate:"required"`
	Text    string `json:"text" validate:"max=500"`
}

type roomTokenRequest struct {
	RoomID string `json:"roomId" validate:"required,max=128"`
}

type meetingView struct {
	models.Message
	IsAccepted *bool `json:"isAccepted"`
}

func viewOf(m models.Message) meetingView {
	return meetingView{Message: m, IsAccepted: m.IsAccepted()}
}

// Request handles POST /api/v1/meetings.
func (h MeetingHandler) Request(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	var req meetingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.OwnerID = strings.TrimSpace(req.OwnerID)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	msg, err := h.Meetings.Request(ctx, principal.UserID, req.OwnerID, req.Text)
	if err != nil {
		meetingFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusCreated, "meeting requested", envelope{
		"meeting":             viewOf(msg),
		"pollIntervalSeconds": int(h.PollInterval / time.Second),
	})
}

// Latest handles GET /api/v1/meetings/latest?ownerId=, the requester's poll for
// an answer.
func (h MeetingHandler) Latest(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	ownerID := strings.TrimSpace(r.URL.Query().Get("ownerId"))
	if ownerID == "" {
		respondError(ctx, w, http.StatusBadRequest, "ownerId is required")
		return
	}

	msg, err := h.Meetings.Latest(ctx, principal.UserID, ownerID)
	if err != nil {
		meetingFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "meeting loaded", envelope{"meeting": viewOf(msg)})
}

// Inbox handles GET /api/v1/meetings/inbox.
func (h MeetingHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	messages, err := h.Meetings.Inbox(ctx, principal.UserID)
	if err != nil {
		meetingFailed(w, r, err)
		return
	}
	views := make([]meetingView, len(messages))
	for i, m := range messages {
		views[i] = viewOf(m)
	}
	respondSuccess(ctx, w, http.StatusOK, "messages loaded", envelope{"messages": views})
}

// Accept handles POST /api/v1/meetings/{id}/accept.
func (h MeetingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Meetings.Accept, "meeting accepted")
}

// Reject handles POST /api/v1/meetings/{id}/reject.
func (h MeetingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.respond(w, r, h.Meetings.Reject, "meeting rejected")
}

type answerFunc func(ctx context.Context, ownerID, messageID string) (models.Message, error)

func (h MeetingHandler) respond(w http.ResponseWriter, r *http.Request, answer answerFunc, message string) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	msg, err := answer(ctx, principal.UserID, chi.URLParam(r, "id"))
	if err != nil {
		meetingFailed(w, r, err)
		return
	}
	respondSuccess(ctx, w, http.StatusOK, message, envelope{"meeting": viewOf(msg)})
}

// Token handles POST /api/v1/meetings/token.
func (h MeetingHandler) Token(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	if h.Tokens == nil {
		respondError(ctx, w, http.StatusInternalServerError, "video meetings are not configured")
		return
	}

	var req roomTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RoomID = strings.TrimSpace(req.RoomID)
	if err := validation.Struct(req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, err.Error())
		return
	}

	token, err := h.Tokens.Issue(principal.UserID, req.RoomID)
	if err != nil {
		logging.FromContext(ctx).Error("room token issue failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to generate token")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "token generated", envelope{"token": token.Token, "details": token, "username": principal.Username})
}

func meetingFailed(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	switch {
	case errors.Is(err, meetings.ErrNotFound):
		respondError(ctx, w, http.StatusNotFound, "meeting request not found")
	case errors.Is(err, meetings.ErrSelfRequest):
		respondError(ctx, w, http.StatusBadRequest, err.Error())
	case errors.Is(err, meetings.ErrExpired), errors.Is(err, meetings.ErrStateConflict):
		respondError(ctx, w, http.StatusConflict, err.Error())
	default:
		logging.FromContext(ctx).Error("meeting operation failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "meeting operation failed")
	}
}
