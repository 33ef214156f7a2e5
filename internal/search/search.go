// Package search ranks a feed snapshot against a free-text query.
package search

import (
	"sort"
	"strings"

	"github.com/skillswap/backend/internal/models"
)

const (
	titlePhraseWeight       = 50
	titleTermWeight         = 20
	descriptionTermWeight   = 5
	descriptionPhraseWeight = 10
	skillPhraseWeight       = 15
	skillTermWeight         = 7
	ownerPhraseWeight       = 5
)

// Candidate is a video with its uploader's display name.
type Candidate struct {
	Video     models.Video `json:"video"`
	OwnerName string       `json:"ownerName"`
}

// Result is a candidate with its relevance score.
type Result struct {
	Candidate
	Score int `json:"score"`
}

// Join pairs each video with its owner's name; unknown owners get an empty name.
func Join(videos []models.Video, owners map[string]string) []Candidate {
	out := make([]Candidate, len(videos))
	for i, v := range videos {
		out[i] = Candidate{Video: v, OwnerName: owners[v.OwnerID]}
	}
	return out
}

// Score computes the relevance of c to query. Matching is a case-insensitive
// substring test of the whole phrase and of each whitespace-separated term.
func Score(query string, c Candidate) int {
	phrase := strings.ToLower(strings.TrimSpace(query))
	if phrase == "" {
		return 0
	}
	terms := strings.Fields(phrase)

	title := strings.ToLower(c.Video.Title)
	description := strings.ToLower(c.Video.Description)

	score := 0
	if strings.Contains(title, phrase) {
		score += titlePhraseWeight
	}
	for _, term := range terms {
		if strings.Contains(title, term) {
			score += titleTermWeight
		}
		if strings.Contains(description, term) {
			score += descriptionTermWeight
		}
	}
	if strings.Contains(description, phrase) {
		score += descriptionPhraseWeight
	}

	for _, skill := range c.Video.Skills {
		skill = strings.ToLower(skill)
		if strings.Contains(skill, phrase) {
			score += skillPhraseWeight
		}
		for _, term := range terms {
			if strings.Contains(skill, term) {
				score += skillTermWeight
			}
		}
	}

	if strings.Contains(strings.ToLower(c.OwnerName), phrase) {
		score += ownerPhraseWeight
	}

	return score
}

// Rank scores every candidate, drops those scoring zero and orders the rest by
// descending score. Ties keep snapshot order. A blank query yields nil.
func Rank(query string, snapshot []Candidate) []Result {
	if strings.TrimSpace(query) == "" {
		return nil
	}

	results := make([]Result, 0, len(snapshot))
	for _, c := range snapshot {
		if s := Score(query, c); s > 0 {
			results = append(results, Result{Candidate: c, Score: s})
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	return results
}
