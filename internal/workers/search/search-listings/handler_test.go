package searchlistings

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/search/rerank"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return &Config{
		Timeout:     5 * time.Second,
		Index:       "businesses",
		DefaultSize: 25,
	}
}

func newFakeES(t *testing.T, handler http.HandlerFunc) *elasticsearch.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Elastic-Product", "Elasticsearch")
		w.Header().Set("Content-Type", "application/json")
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses:  []string{srv.URL},
		MaxRetries: 1,
	})
	require.NoError(t, err)
	return client
}

const twoHits = `{
	"took": 3,
	"hits": {
		"total": {"value": 2},
		"hits": [
			{"_source": {"id": "biz-1", "name": "ABC Plumbing", "suburb": "Richmond", "category": "Plumbing",
				"status": "approved", "created_at": "2026-01-01T00:00:00Z", "updated_at": "2026-03-10T00:00:00Z"}},
			{"_source": {"id": "biz-2", "name": "Richmond Pipes", "suburb": "Richmond", "status": "approved",
				"created_at": "2026-02-01T00:00:00Z", "updated_at": "2026-02-01T00:00:00Z"}}
		]
	}
}`

// ==========================
// Execute tests
// ==========================

func TestHandler_Execute_Success(t *testing.T) {
	var captured map[string]interface{}
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/businesses/_search", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("size"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &captured))
		_, _ = w.Write([]byte(twoHits))
	})

	h := NewHandler(createTestConfig(), client, logger.NewTestLogger(t))
	output, err := h.Execute(context.Background(), &Input{
		Query:    "plumber",
		Location: &rerank.Location{Suburb: "Richmond"},
	})

	require.NoError(t, err)
	require.Len(t, output.Records, 2)
	assert.Equal(t, "biz-1", output.Records[0].ID)
	assert.Equal(t, int64(2), output.TotalHits)
	assert.Equal(t, "plumber", output.SearchContext.Query)
	assert.Equal(t, "Richmond", output.SearchContext.TargetSuburb())

	raw, _ := json.Marshal(captured)
	assert.Contains(t, string(raw), `"multi_match"`)
	assert.Contains(t, string(raw), `"status":"approved"`)
	assert.Contains(t, string(raw), `"suburb":"Richmond"`)
}

// The completed job variables feed rerank-listings directly, which reads
// "records".
func TestOutput_VariablesFeedRerank(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(twoHits))
	})
	h := NewHandler(createTestConfig(), client, logger.NewTestLogger(t))
	output, err := h.Execute(context.Background(), &Input{Query: "plumber"})
	require.NoError(t, err)

	raw, err := json.Marshal(output)
	require.NoError(t, err)
	var vars map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &vars))
	assert.Contains(t, vars, "records")
	assert.NotContains(t, vars, "candidates")

	var next struct {
		Records []rerank.BusinessRecord `json:"records"`
	}
	require.NoError(t, json.Unmarshal(raw, &next))
	assert.Len(t, next.Records, 2)
}

func TestHandler_Execute_CategoryFilterAndSize(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "10", r.URL.Query().Get("size"))
		raw, _ := io.ReadAll(r.Body)
		assert.True(t, strings.Contains(string(raw), `"category.keyword":"Electrical"`))
		_, _ = w.Write([]byte(`{"took":1,"hits":{"total":{"value":0},"hits":[]}}`))
	})

	h := NewHandler(createTestConfig(), client, logger.NewTestLogger(t))
	output, err := h.Execute(context.Background(), &Input{Query: "sparky", Category: "Electrical", Size: 10})

	require.NoError(t, err)
	assert.NotNil(t, output.Records)
	assert.Empty(t, output.Records)
}

func TestHandler_Execute_Errors(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		expected error
		code     apperrors.ErrorCode
	}{
		{
			name:     "index not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"type":"index_not_found_exception"},"status":404}`,
			expected: ErrIndexNotFound,
			code:     apperrors.ErrCodeIndexNotFound,
		},
		{
			name:     "bad query",
			status:   http.StatusBadRequest,
			body:     `{"error":{"type":"parsing_exception"},"status":400}`,
			expected: ErrSearchQueryFailed,
			code:     apperrors.ErrCodeSearchQueryFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			h := NewHandler(createTestConfig(), client, logger.NewTestLogger(t))
			_, err := h.Execute(context.Background(), &Input{Query: "x"})

			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.expected))
			assert.Equal(t, tt.code, h.toStandardError(err).Code)
		})
	}
}

func TestHandler_Execute_Timeout(t *testing.T) {
	client := newFakeES(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(twoHits))
	})

	h := NewHandler(createTestConfig(), client, logger.NewNoOpLogger())
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := h.Execute(ctx, &Input{Query: "plumber"})

	assert.ErrorIs(t, err, ErrSearchTimeout)
	assert.Equal(t, apperrors.ErrCodeSearchTimeout, h.toStandardError(err).Code)
	assert.True(t, h.toStandardError(err).Retryable)
}

func TestHandler_Execute_NilInput(t *testing.T) {
	h := NewHandler(createTestConfig(), nil, logger.NewNoOpLogger())
	_, err := h.Execute(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInternal, h.toStandardError(err).Code)
}

// ==========================
// Input schema tests
// ==========================

func TestInputSchema(t *testing.T) {
	assert.NoError(t, inputSchema.ValidateJSON(`{"query":"plumber","suburb":"Richmond","size":20}`))
	assert.NoError(t, inputSchema.ValidateJSON(`{}`))
	assert.Error(t, inputSchema.ValidateJSON(`{"size":500}`))
	assert.Error(t, inputSchema.ValidateJSON(`{"query":42}`))
}
