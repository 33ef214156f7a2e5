package handlers

import (
	"net/http"
	"strings"

	"github.com/skillswap/backend/internal/logging"
	"github.com/skillswap/backend/internal/search"
)

// FeedHandler serves the skill-matched feed and its relevance search.
type FeedHandler struct {
	Feed  FeedProvider
	Users UserStore
}

// List handles GET /api/v1/feed.
func (h FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()

	videos, err := h.Feed.FeedForUser(ctx, principal.UserID)
	if err != nil {
		logging.FromContext(ctx).Error("feed failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load feed")
		return
	}
	respondSuccess(ctx, w, http.StatusOK, "feed loaded", envelope{"videos": videos})
}

// Search handles GET /api/v1/feed/search?q=. Results are ranked against a fresh
// copy of the caller's feed; a blank query returns the feed in its own order.
func (h FeedHandler) Search(w http.ResponseWriter, r *http.Request) {
	principal, ok := requirePrincipal(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	videos, err := h.Feed.FeedForUser(ctx, principal.UserID)
	if err != nil {
		logger.Error("search feed failed", "error", err)
		respondError(ctx, w, http.StatusInternalServerError, "failed to load feed")
		return
	}

	ownerIDs := make([]string, 0, len(videos))
	seen := make(map[string]struct{}, len(videos))
	for _, v := range videos {
		if _, ok := seen[v.OwnerID]; ok {
			continue
		}
		seen[v.OwnerID] = struct{}{}
		ownerIDs = append(ownerIDs, v.OwnerID)
	}

	owners := map[string]string{}
	if len(ownerIDs) > 0 {
		owners, err = h.Users.Usernames(ctx, ownerIDs)
		if err != nil {
			logger.Error("search owner lookup failed", "error", err)
			respondError(ctx, w, http.StatusInternalServerError, "failed to load feed")
			return
		}
	}

	snapshot := search.Join(videos, owners)
	query := r.URL.Query().Get("q")

	var results []search.Result
	if strings.TrimSpace(query) == "" {
		results = make([]search.Result, len(snapshot))
		for i, c := range snapshot {
			results[i] = search.Result{Candidate: c}
		}
	} else {
		results = search.Rank(query, snapshot)
	}
	if results == nil {
		results = []search.Result{}
	}

	respondSuccess(ctx, w, http.StatusOK, "search complete", envelope{"query": query, "results": results})
}
