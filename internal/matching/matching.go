// Package matching selects the videos that teach what a member wants to learn.
package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/skillswap/backend/internal/models"
	"github.com/skillswap/backend/internal/repositories"
)

// NormalizeSkills trims and lower-cases skills, dropping blanks and duplicates while
// keeping first-seen order.
func NormalizeSkills(skills []string) []string {
	out := make([]string, 0, len(skills))
	seen := make(map[string]struct{}, len(skills))
	for _, s := range skills {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Intersects reports whether any tag appears in wanted.
func Intersects(tags, wanted []string) bool {
	if len(tags) == 0 || len(wanted) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(wanted))
	for _, w := range NormalizeSkills(wanted) {
		set[w] = struct{}{}
	}
	for _, t := range NormalizeSkills(tags) {
		if _, ok := set[t]; ok {
			return true
		}
	}
	return false
}

// Filter keeps, in order, the videos tagged with at least one wanted skill.
func Filter(videos []models.Video, wanted []string) []models.Video {
	out := make([]models.Video, 0, len(videos))
	if len(wanted) == 0 {
		return out
	}
	for _, v := range videos {
		if Intersects(v.Skills, wanted) {
			out = append(out, v)
		}
	}
	return out
}

// UserLookup resolves a member by username or id.
type UserLookup interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
}

// VideoSource lists videos tagged with any of the given skills, newest first.
type VideoSource interface {
	ListBySkills(ctx context.Context, skills []string) ([]models.Video, error)
}

// Service builds skill-matched feeds.
type Service struct {
	Users  UserLookup
	Videos VideoSource
}

// FeedFor returns the videos matching the wanted skills of username. An unknown
// user has nothing they want, so the feed is empty rather than an error.
func (s Service) FeedFor(ctx context.Context, username string) ([]models.Video, error) {
	user, err := s.Users.FindByUsername(ctx, username)
	return s.feed(ctx, user, err)
}

// FeedForUser is FeedFor keyed by user id, which survives a rename.
func (s Service) FeedForUser(ctx context.Context, userID string) ([]models.Video, error) {
	user, err := s.Users.FindByID(ctx, userID)
	return s.feed(ctx, user, err)
}

func (s Service) feed(ctx context.Context, user models.User, err error) ([]models.Video, error) {
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return []models.Video{}, nil
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	wanted := NormalizeSkills(user.WantedSkills)
	if len(wanted) == 0 {
		return []models.Video{}, nil
	}

	videos, err := s.Videos.ListBySkills(ctx, wanted)
	if err != nil {
		return nil, fmt.Errorf("list videos: %w", err)
	}
	return Filter(videos, wanted), nil
}
