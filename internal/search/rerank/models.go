// internal/search/rerank/models.go
package rerank

import "time"

// BusinessRecord is a candidate listing as returned by search. Optional string
// fields are absent when empty.
type BusinessRecord struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Suburb          string    `json:"suburb"`
	Category        string    `json:"category,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Logo            string    `json:"logo,omitempty"`
	Website         string    `json:"website,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Rating          *float64  `json:"rating,omitempty"`
	ReviewCount     *int      `json:"reviewCount,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
	CompletionScore *float64  `json:"completionScore,omitempty"`
}

// Location carries the target suburb when callers nest it.
type Location struct {
	Suburb string `json:"suburb,omitempty"`
}

type SearchContext struct {
	Query    string    `json:"query,omitempty"`
	Suburb   string    `json:"suburb,omitempty"`
	Category string    `json:"category,omitempty"`
	Location *Location `json:"location,omitempty"`
}

// TargetSuburb prefers the top-level suburb over the nested location.
func (c SearchContext) TargetSuburb() string {
	if s := c.Suburb; s != "" {
		return s
	}
	if c.Location != nil {
		return c.Location.Suburb
	}
	return ""
}

type Breakdown struct {
	Locality       float64 `json:"locality"`
	Completion     float64 `json:"completion"`
	Rating         float64 `json:"rating"`
	Recency        float64 `json:"recency"`
	QueryRelevance float64 `json:"queryRelevance"`
}

// Total is the unweighted sum of the five sub-scores.
func (b Breakdown) Total() float64 {
	return b.Locality + b.Completion + b.Rating + b.Recency + b.QueryRelevance
}

type ScoredRecord struct {
	BusinessRecord
	RerankScore float64   `json:"rerankScore"`
	Breakdown   Breakdown `json:"breakdown"`
}
