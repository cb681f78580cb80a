// internal/workers/search/rerank-listings/models.go
package reranklistings

import (
	"suburbmates-workers/internal/common/validation"
	"suburbmates-workers/internal/search/rerank"
)

type Input struct {
	Records       []rerank.BusinessRecord `json:"records"`
	SearchContext rerank.SearchContext    `json:"searchContext"`
	Limit         int                     `json:"limit,omitempty"`
}

type Output struct {
	RankedListings []rerank.ScoredRecord `json:"rankedListings"`
	RerankEnabled  bool                  `json:"rerankEnabled"`
	TotalCount     int                   `json:"totalCount"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["records"],
	"properties": {
		"records": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["id", "name"],
				"properties": {
					"id":              {"type": "string", "minLength": 1},
					"name":            {"type": "string"},
					"suburb":          {"type": "string"},
					"rating":          {"type": ["number", "null"]},
					"reviewCount":     {"type": ["integer", "null"], "minimum": 0},
					"completionScore": {"type": ["number", "null"]}
				}
			}
		},
		"searchContext": {"type": "object"},
		"limit": {"type": "integer", "minimum": 0}
	}
}`)
