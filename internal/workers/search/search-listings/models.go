// internal/workers/search/search-listings/models.go
package searchlistings

import (
	"suburbmates-workers/internal/common/validation"
	"suburbmates-workers/internal/search/rerank"
)

type Input struct {
	Query    string           `json:"query"`
	Suburb   string           `json:"suburb,omitempty"`
	Category string           `json:"category,omitempty"`
	Location *rerank.Location `json:"location,omitempty"`
	Size     int              `json:"size,omitempty"`
}

// Output carries the search context forward so rerank-listings can use it
// without the process re-mapping variables.
type Output struct {
	Records       []rerank.BusinessRecord `json:"records"`
	TotalHits     int64                   `json:"totalHits"`
	Took          int64                   `json:"took"`
	SearchContext rerank.SearchContext    `json:"searchContext"`
}

var inputSchema = validation.MustCompile(`{
	"type": "object",
	"properties": {
		"query":    {"type": "string", "maxLength": 200},
		"suburb":   {"type": "string", "maxLength": 100},
		"category": {"type": "string", "maxLength": 100},
		"location": {"type": ["object", "null"], "properties": {"suburb": {"type": "string"}}},
		"size":     {"type": "integer", "minimum": 0, "maximum": 100}
	}
}`)
