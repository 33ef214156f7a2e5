// Package meetings implements the meeting request handshake between a learner and a
// video owner: pending requests are accepted, rejected or expire after a timeout.
package meetings

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/metrics"
	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/repositories"
)

var (
	// ErrExpired is returned when responding to a request whose deadline passed.
	ErrExpired = errors.New("meeting request expired")
	// ErrStateConflict is returned when the request already left the pending state.
	ErrStateConflict = errors.New("meeting request already answered")
	// ErrSelfRequest is returned when a member asks to meet themselves.
	ErrSelfRequest = errors.New("cannot request a meeting with yourself")
	// ErrNotFound is returned when the request does not exist or is addressed to someone else.
	ErrNotFound = errors.New("meeting request not found")
)

// DefaultText is used when a request carries no message.
const DefaultText = "I'd like to learn from your video. Can we meet?"

// Policy bounds how long a request may wait for an answer and how often clients
// should poll for it.
type Policy struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

// DefaultPolicy waits one minute, polled every thirty seconds.
func DefaultPolicy() Policy {
	return Policy{Timeout: 60 * time.Second, PollInterval: 30 * time.Second}
}

// Store persists meeting requests.
type Store interface {
	Create(ctx context.Context, msg models.Message) error
	FindByID(ctx context.Context, id string) (models.Message, error)
	LatestBetween(ctx context.Context, senderID, ownerID string) (models.Message, error)
	ListForOwner(ctx context.Context, ownerID string) ([]models.Message, error)
	Transition(ctx context.Context, id string, from, to models.MeetingStatus, at time.Time) error
}

// Service drives the handshake state machine.
type Service struct {
	Store   Store
	Policy  Policy
	NowFunc func() time.Time
}

func (s Service) now() time.Time {
	if s.NowFunc != nil {
		return s.NowFunc().UTC()
	}
	return time.Now().UTC()
}

func (s Service) policy() Policy {
	p := s.Policy
	def := DefaultPolicy()
	if p.Timeout <= 0 {
		p.Timeout = def.Timeout
	}
	if p.PollInterval <= 0 {
		p.PollInterval = def.PollInterval
	}
	return p
}

// Link is the in-app path that joins room.
func Link(room string) string {
	return "/video-meet/" + room
}

// CanTransition reports whether from → to is a legal handshake step.
func CanTransition(from, to models.MeetingStatus) bool {
	if from != models.MeetingPending {
		return false
	}
	switch to {
	case models.MeetingAccepted, models.MeetingRejected, models.MeetingExpired:
		return true
	}
	return false
}

// Request opens a pending meeting request from senderID to ownerID.
func (s Service) Request(ctx context.Context, senderID, ownerID, text string) (models.Message, error) {
	if senderID == ownerID {
		return models.Message{}, ErrSelfRequest
	}
	text = strings.TrimSpace(text)
	if text == "" {
		text = DefaultText
	}

	now := s.now()
	room := uuid.NewString()
	msg := models.Message{
		ID:        uuid.NewString(),
		SenderID:  senderID,
		OwnerID:   ownerID,
		Text:      text,
		RoomID:    room,
		Link:      Link(room),
		Status:    models.MeetingPending,
		ExpiresAt: now.Add(s.policy().Timeout),
		CreatedAt: now,
	}

	if err := s.Store.Create(ctx, msg); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("create meeting request: %w", err)
	}

	metrics.MeetingTransitions.WithLabelValues(string(models.MeetingPending)).Inc()
	logging.FromContext(ctx).Info("meeting requested", "message_id", msg.ID, "owner_id", ownerID)
	return msg, nil
}

// Accept answers a pending request addressed to ownerID.
func (s Service) Accept(ctx context.Context, ownerID, messageID string) (models.Message, error) {
	return s.respond(ctx, ownerID, messageID, models.MeetingAccepted)
}

// Reject declines a pending request addressed to ownerID.
func (s Service) Reject(ctx context.Context, ownerID, messageID string) (models.Message, error) {
	return s.respond(ctx, ownerID, messageID, models.MeetingRejected)
}

func (s Service) respond(ctx context.Context, ownerID, messageID string, to models.MeetingStatus) (models.Message, error) {
	msg, err := s.Store.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("load meeting request: %w", err)
	}
	if msg.OwnerID != ownerID {
		return models.Message{}, ErrNotFound
	}

	msg, err = s.resolve(ctx, msg)
	if err != nil {
		return models.Message{}, err
	}
	switch msg.Status {
	case models.MeetingPending:
	case models.MeetingExpired:
		return msg, ErrExpired
	default:
		return msg, ErrStateConflict
	}

	if err := s.transition(ctx, &msg, to); err != nil {
		return models.Message{}, err
	}
	return msg, nil
}

// Latest returns the newest request senderID sent to ownerID, expiring it first when
// its deadline has passed.
func (s Service) Latest(ctx context.Context, senderID, ownerID string) (models.Message, error) {
	msg, err := s.Store.LatestBetween(ctx, senderID, ownerID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.Message{}, ErrNotFound
		}
		return models.Message{}, fmt.Errorf("load latest meeting request: %w", err)
	}
	return s.resolve(ctx, msg)
}

// Inbox lists the requests addressed to ownerID, newest first.
func (s Service) Inbox(ctx context.Context, ownerID string) ([]models.Message, error) {
	messages, err := s.Store.ListForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list meeting requests: %w", err)
	}
	for i := range messages {
		resolved, err := s.resolve(ctx, messages[i])
		if err != nil {
			return nil, err
		}
		messages[i] = resolved
	}
	return messages, nil
}

// resolve persists the expiry of a pending request whose deadline has passed.
func (s Service) resolve(ctx context.Context, msg models.Message) (models.Message, error) {
	if msg.Status != models.MeetingPending || s.now().Before(msg.ExpiresAt) {
		return msg, nil
	}
	err := s.transition(ctx, &msg, models.MeetingExpired)
	if errors.Is(err, ErrStateConflict) {
		// Someone answered concurrently; report what was stored.
		fresh, ferr := s.Store.FindByID(ctx, msg.ID)
		if ferr != nil {
			return models.Message{}, fmt.Errorf("reload meeting request: %w", ferr)
		}
		return fresh, nil
	}
	return msg, err
}

func (s Service) transition(ctx context.Context, msg *models.Message, to models.MeetingStatus) error {
	if !CanTransition(msg.Status, to) {
		return ErrStateConflict
	}
	at := s.now()
	if err := s.Store.Transition(ctx, msg.ID, msg.Status, to, at); err != nil {
		switch {
		case errors.Is(err, repositories.ErrConflict):
			return ErrStateConflict
		case errors.Is(err, repositories.ErrNotFound):
			return ErrNotFound
		}
		return fmt.Errorf("update meeting request: %w", err)
	}

	msg.Status = to
	msg.RespondedAt = &at
	metrics.MeetingTransitions.WithLabelValues(string(to)).Inc()
	logging.FromContext(ctx).Info("meeting request transitioned", "message_id", msg.ID, "status", string(to))
	return nil
}
