package listingindex

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"suburbmates-workers/internal/search/rerank"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

var ErrIndexNotFound = errors.New("index not found")

type SearchResult struct {
	Records   []rerank.BusinessRecord
	TotalHits int64
	Took      int64
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source Document `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func Search(ctx context.Context, client *elasticsearch.Client, q Query) (*SearchResult, error) {
	req, err := BuildSearchRequest(q)
	if err != nil {
		return nil, err
	}

	res, err := req.Do(ctx, client)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	if err := responseError(res, q.Index); err != nil {
		return nil, err
	}

	var r searchResponse
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	records := make([]rerank.BusinessRecord, 0, len(r.Hits.Hits))
	for _, hit := range r.Hits.Hits {
		records = append(records, hit.Source.Record())
	}

	return &SearchResult{
		Records:   records,
		TotalHits: r.Hits.Total.Value,
		Took:      r.Took,
	}, nil
}

// Put writes doc under its ID and refreshes so searches see it at once.
func Put(ctx context.Context, client *elasticsearch.Client, index string, doc Document) error {
	if index == "" {
		return ErrMissingIndex
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return err
	}

	res, err := esapi.IndexRequest{
		Index:      index,
		DocumentID: doc.ID,
		Body:       bytes.NewReader(body),
		Refresh:    "true",
	}.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	return responseError(res, index)
}

// Remove deletes a listing. A missing document is not an error.
func Remove(ctx context.Context, client *elasticsearch.Client, index, id string) error {
	if index == "" {
		return ErrMissingIndex
	}

	res, err := esapi.DeleteRequest{
		Index:      index,
		DocumentID: id,
		Refresh:    "true",
	}.Do(ctx, client)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil
	}
	return responseError(res, index)
}

func responseError(res *esapi.Response, index string) error {
	if !res.IsError() {
		return nil
	}
	if res.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrIndexNotFound, index)
	}
	return fmt.Errorf("elasticsearch error: %s", res.String())
}
