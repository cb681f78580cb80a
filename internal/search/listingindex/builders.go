// Package listingindex owns the Elasticsearch representation of business
// listings: the index mapping, search request builders and document writes.
package listingindex

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"suburbmates-workers/internal/search/rerank"

	"github.com/elastic/go-elasticsearch/v8/esapi"
)

const (
	StatusApproved = "approved"
	MaxSize        = 100
	DefaultSize    = 50
)

var ErrMissingIndex = errors.New("index name is required")

// Mapping is used when the worker manager creates the index.
const Mapping = `{
  "mappings": {
    "properties": {
      "id":               {"type": "keyword"},
      "name":             {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "suburb":           {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "category":         {"type": "text", "fields": {"keyword": {"type": "keyword"}}},
      "bio":              {"type": "text"},
      "logo":             {"type": "keyword", "index": false},
      "website":          {"type": "keyword", "index": false},
      "phone":            {"type": "keyword", "index": false},
      "status":           {"type": "keyword"},
      "rating":           {"type": "float"},
      "review_count":     {"type": "integer"},
      "completion_score": {"type": "float"},
      "created_at":       {"type": "date"},
      "updated_at":       {"type": "date"}
    }
  }
}`

// Document is a listing as stored in the index.
type Document struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Suburb          string    `json:"suburb"`
	Category        string    `json:"category,omitempty"`
	Bio             string    `json:"bio,omitempty"`
	Logo            string    `json:"logo,omitempty"`
	Website         string    `json:"website,omitempty"`
	Phone           string    `json:"phone,omitempty"`
	Status          string    `json:"status"`
	Rating          *float64  `json:"rating,omitempty"`
	ReviewCount     *int      `json:"review_count,omitempty"`
	CompletionScore *float64  `json:"completion_score,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (d Document) Record() rerank.BusinessRecord {
	return rerank.BusinessRecord{
		ID:              d.ID,
		Name:            d.Name,
		Suburb:          d.Suburb,
		Category:        d.Category,
		Bio:             d.Bio,
		Logo:            d.Logo,
		Website:         d.Website,
		Phone:           d.Phone,
		Rating:          d.Rating,
		ReviewCount:     d.ReviewCount,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
		CompletionScore: d.CompletionScore,
	}
}

type Query struct {
	Index    string
	Text     string
	Suburb   string
	Category string
	Size     int
}

// BuildSearchRequest matches free text against name, category and bio,
// restricted to approved listings. A suburb only boosts, it never filters.
func BuildSearchRequest(q Query) (*esapi.SearchRequest, error) {
	if q.Index == "" {
		return nil, ErrMissingIndex
	}

	body, err := json.Marshal(buildQueryBody(q))
	if err != nil {
		return nil, err
	}

	size := q.Size
	if size < 1 {
		size = DefaultSize
	}
	if size > MaxSize {
		size = MaxSize
	}

	return &esapi.SearchRequest{
		Index: []string{q.Index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}, nil
}

func buildQueryBody(q Query) map[string]interface{} {
	var must []interface{}
	if text := strings.TrimSpace(q.Text); text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  text,
				"fields": []string{"name^3", "category^2", "bio"},
				"type":   "best_fields",
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	filter := []interface{}{
		map[string]interface{}{"term": map[string]interface{}{"status": StatusApproved}},
	}
	if category := strings.TrimSpace(q.Category); category != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"category.keyword": category},
		})
	}

	boolQuery := map[string]interface{}{
		"must":   must,
		"filter": filter,
	}
	if suburb := strings.TrimSpace(q.Suburb); suburb != "" {
		boolQuery["should"] = []interface{}{
			map[string]interface{}{"match": map[string]interface{}{"suburb": suburb}},
		}
	}

	return map[string]interface{}{
		"query": map[string]interface{}{"bool": boolQuery},
	}
}
