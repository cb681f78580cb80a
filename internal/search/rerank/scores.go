// internal/search/rerank/scores.go
package rerank

import (
	"math"
	"strings"
	"time"
)

const (
	localityExact     = 30.0
	localityPartial   = 15.0
	completionWeight  = 20.0
	ratingBase        = 15.0
	ratingCap         = 20.0
	reviewMultiplier  = 1.5
	queryExactName    = 25.0
	queryNamePrefix   = 15.0
	queryNameContains = 10.0
	queryCategory     = 8.0
	queryBio          = 5.0
	queryAcronym      = 12.0
	queryCap          = 25.0
)

// LocalityScore returns 30 for an exact suburb match, 15 when one suburb
// contains the other and 0 otherwise.
func LocalityScore(r BusinessRecord, sc SearchContext) float64 {
	target := normalize(sc.TargetSuburb())
	suburb := normalize(r.Suburb)
	if target == "" || suburb == "" {
		return 0
	}

	switch {
	case suburb == target:
		return localityExact
	case strings.Contains(suburb, target) || strings.Contains(target, suburb):
		return localityPartial
	default:
		return 0
	}
}

// CompletionFraction is the share of optional profile fields that are filled
// in. A precomputed value on the record wins.
func CompletionFraction(r BusinessRecord) float64 {
	if r.CompletionScore != nil {
		return clamp(*r.CompletionScore, 0, 1)
	}

	fields := []string{r.Bio, r.Logo, r.Website, r.Phone, r.Category}
	filled := 0
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			filled++
		}
	}
	return float64(filled) / float64(len(fields))
}

func CompletionScore(r BusinessRecord) float64 {
	return CompletionFraction(r) * completionWeight
}

// RatingScore rewards rating and review volume. The review multiplier is
// min(reviews/10, 1.5), so a rated listing with no reviews scores 0.
func RatingScore(r BusinessRecord) float64 {
	if r.Rating == nil || *r.Rating <= 0 {
		return 0
	}

	reviews := 0
	if r.ReviewCount != nil && *r.ReviewCount > 0 {
		reviews = *r.ReviewCount
	}

	base := (clamp(*r.Rating, 0, 5) / 5) * ratingBase
	multiplier := math.Min(float64(reviews)/10, reviewMultiplier)
	return math.Min(base*multiplier, ratingCap)
}

// RecencyScore steps down with whole days since the last update.
func RecencyScore(r BusinessRecord, now time.Time) float64 {
	days := math.Floor(now.Sub(r.UpdatedAt).Hours() / 24)

	switch {
	case days <= 7:
		return 10
	case days <= 30:
		return 5
	case days <= 90:
		return 2
	default:
		return 0
	}
}

// QueryRelevanceScore matches the query against name, category, bio and the
// name's acronym. Only one name band applies; the total is capped at 25.
func QueryRelevanceScore(r BusinessRecord, sc SearchContext) float64 {
	query := normalize(sc.Query)
	if query == "" {
		return 0
	}

	name := normalize(r.Name)
	score := 0.0

	switch {
	case name == query:
		score += queryExactName
	case strings.HasPrefix(name, query):
		score += queryNamePrefix
	case strings.Contains(name, query):
		score += queryNameContains
	}

	if strings.Contains(normalize(r.Category), query) {
		score += queryCategory
	}
	if strings.Contains(normalize(r.Bio), query) {
		score += queryBio
	}
	if acronym := Acronym(r.Name); acronym != "" && acronym == query {
		score += queryAcronym
	}

	return math.Min(score, queryCap)
}

// Acronym is the lower-cased first letter of every word in name.
func Acronym(name string) string {
	var b strings.Builder
	for _, word := range strings.Fields(name) {
		for _, r := range word {
			b.WriteRune(r)
			break
		}
	}
	return strings.ToLower(b.String())
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
