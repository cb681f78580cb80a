// internal/search/rerank/reranker_test.go
package rerank

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"suburbmates-workers/internal/common/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

var fixedNow = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func ptrFloat(v float64) *float64 { return &v }
func ptrInt(v int) *int           { return &v }

func daysAgo(d int) time.Time {
	return fixedNow.Add(-time.Duration(d) * 24 * time.Hour)
}

func flagOn(context.Context, string) (bool, error)  { return true, nil }
func flagOff(context.Context, string) (bool, error) { return false, nil }

func newTestReranker(t *testing.T, flag FlagFunc) *Reranker {
	return New(Config{}, flag, logger.NewTestLogger(t), WithClock(func() time.Time { return fixedNow }))
}

func abcPlumbing() BusinessRecord {
	return BusinessRecord{
		ID:          "biz-abc",
		Name:        "ABC Plumbing",
		Suburb:      "Richmond",
		Category:    "plumbing",
		Rating:      ptrFloat(4.5),
		ReviewCount: ptrInt(20),
		CreatedAt:   daysAgo(400),
		UpdatedAt:   daysAgo(3),
	}
}

func sampleRecords() []BusinessRecord {
	return []BusinessRecord{
		{
			ID:        "biz-1",
			Name:      "Fitzroy Florist",
			Suburb:    "Fitzroy",
			Category:  "florist",
			CreatedAt: daysAgo(100),
			UpdatedAt: daysAgo(200),
		},
		abcPlumbing(),
		{
			ID:          "biz-3",
			Name:        "Richmond Hill Bakery",
			Suburb:      "Richmond Hill",
			Category:    "bakery",
			Bio:         "Sourdough and pastries baked daily",
			Logo:        "https://cdn.example.com/logo.png",
			Website:     "https://bakery.example.com",
			Phone:       "0399990000",
			Rating:      ptrFloat(4.9),
			ReviewCount: ptrInt(8),
			CreatedAt:   daysAgo(50),
			UpdatedAt:   daysAgo(20),
		},
	}
}

// ==========================
// Sub-score Tests
// ==========================

func TestLocalityScore(t *testing.T) {
	tests := []struct {
		name     string
		suburb   string
		ctx      SearchContext
		expected float64
	}{
		{"no target suburb", "Richmond", SearchContext{}, 0},
		{"exact match ignores case", "Richmond", SearchContext{Suburb: "RICHMOND"}, 30},
		{"record suburb contains target", "North Richmond", SearchContext{Suburb: "richmond"}, 15},
		{"target contains record suburb", "Carlton", SearchContext{Suburb: "Carlton North"}, 15},
		{"no match", "Fitzroy", SearchContext{Suburb: "Richmond"}, 0},
		{"nested location", "Richmond", SearchContext{Location: &Location{Suburb: "Richmond"}}, 30},
		{"top-level suburb wins over location", "Richmond", SearchContext{Suburb: "Fitzroy", Location: &Location{Suburb: "Richmond"}}, 0},
		{"empty record suburb never matches", "", SearchContext{Suburb: "Richmond"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LocalityScore(BusinessRecord{Suburb: tt.suburb}, tt.ctx)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestCompletionScore(t *testing.T) {
	t.Run("empty profile", func(t *testing.T) {
		assert.Equal(t, 0.0, CompletionScore(BusinessRecord{}))
	})

	t.Run("all fields present", func(t *testing.T) {
		rec := BusinessRecord{Bio: "b", Logo: "l", Website: "w", Phone: "p", Category: "c"}
		assert.Equal(t, 20.0, CompletionScore(rec))
	})

	t.Run("whitespace is not content", func(t *testing.T) {
		rec := BusinessRecord{Bio: "   ", Phone: "0400000000"}
		assert.InDelta(t, 4.0, CompletionScore(rec), 1e-9)
	})

	t.Run("precomputed value is authoritative", func(t *testing.T) {
		rec := BusinessRecord{CompletionScore: ptrFloat(0.5)}
		assert.Equal(t, 10.0, CompletionScore(rec))
	})

	t.Run("precomputed value is clamped", func(t *testing.T) {
		assert.Equal(t, 20.0, CompletionScore(BusinessRecord{CompletionScore: ptrFloat(3)}))
		assert.Equal(t, 0.0, CompletionScore(BusinessRecord{CompletionScore: ptrFloat(-1)}))
	})
}

func TestRatingScore(t *testing.T) {
	tests := []struct {
		name     string
		rating   *float64
		reviews  *int
		expected float64
	}{
		{"no rating", nil, ptrInt(50), 0},
		{"zero rating", ptrFloat(0), ptrInt(50), 0},
		{"rated with no reviews", ptrFloat(5), ptrInt(0), 0},
		{"rated with missing review count", ptrFloat(5), nil, 0},
		{"ten reviews uses base", ptrFloat(4), ptrInt(10), 12},
		{"five reviews halves base", ptrFloat(5), ptrInt(5), 7.5},
		{"multiplier capped at 1.5", ptrFloat(4), ptrInt(1000), 18},
		{"score capped at 20", ptrFloat(4.5), ptrInt(20), 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RatingScore(BusinessRecord{Rating: tt.rating, ReviewCount: tt.reviews})
			assert.InDelta(t, tt.expected, got, 1e-9)
		})
	}
}

func TestRatingScore_MonotonicInReviewCount(t *testing.T) {
	for _, rating := range []float64{0.5, 2, 3.7, 5} {
		prev := -1.0
		for reviews := 0; reviews <= 40; reviews++ {
			got := RatingScore(BusinessRecord{Rating: ptrFloat(rating), ReviewCount: ptrInt(reviews)})
			assert.GreaterOrEqual(t, got, prev, "rating=%v reviews=%d", rating, reviews)
			assert.LessOrEqual(t, got, 20.0)
			prev = got
		}
	}
}

func TestRecencyScore(t *testing.T) {
	tests := []struct {
		name      string
		updatedAt time.Time
		expected  float64
	}{
		{"today", fixedNow, 10},
		{"seven days", daysAgo(7), 10},
		{"eight days", daysAgo(8), 5},
		{"thirty days", daysAgo(30), 5},
		{"thirty one days", daysAgo(31), 2},
		{"ninety days", daysAgo(90), 2},
		{"ninety one days", daysAgo(91), 0},
		{"seven and a half days floors to seven", fixedNow.Add(-(7*24 + 12) * time.Hour), 10},
		{"never updated", time.Time{}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, RecencyScore(BusinessRecord{UpdatedAt: tt.updatedAt}, fixedNow))
		})
	}
}

func TestQueryRelevanceScore(t *testing.T) {
	rec := BusinessRecord{
		Name:     "Smith & Sons Electrical",
		Category: "electrician",
		Bio:      "Licensed electrician servicing the inner east",
	}

	tests := []struct {
		name     string
		query    string
		record   BusinessRecord
		expected float64
	}{
		{"no query", "", rec, 0},
		{"whitespace query", "   ", rec, 0},
		{"exact name", "smith & sons electrical", rec, 25},
		{"name prefix", "Smith", rec, 15},
		{"name contains", "sons", rec, 10},
		{"category and bio", "electrician", rec, 13},
		{"bio only", "inner east", rec, 5},
		{"acronym", "s&se", rec, 12},
		{"name contains plus category capped", "electric", rec, 23},
		{"no match", "plumber", rec, 0},
		{"cap at 25", "ab", BusinessRecord{Name: "Ab", Category: "ab", Bio: "ab"}, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := QueryRelevanceScore(tt.record, SearchContext{Query: tt.query})
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestAcronym(t *testing.T) {
	assert.Equal(t, "abc", Acronym("Alpha Bravo  Charlie"))
	assert.Equal(t, "", Acronym("   "))
	assert.Equal(t, "éc", Acronym("Éclair Café"))
}

// ==========================
// Rerank Tests
// ==========================

func TestRerank_WorkedExample(t *testing.T) {
	r := newTestReranker(t, flagOn)

	out := r.Rerank(context.Background(), []BusinessRecord{abcPlumbing()}, SearchContext{Query: "abc", Suburb: "Richmond"})

	require.Len(t, out, 1)
	b := out[0].Breakdown
	assert.Equal(t, 30.0, b.Locality)
	assert.Equal(t, 10.0, b.Recency)
	assert.Equal(t, 15.0, b.QueryRelevance)
	assert.Equal(t, 20.0, b.Rating)
	assert.InDelta(t, 4.0, b.Completion, 1e-9)
	assert.InDelta(t, 79.0, out[0].RerankScore, 1e-9)
}

func TestRerank_OrdersByScore(t *testing.T) {
	r := newTestReranker(t, flagOn)

	out := r.Rerank(context.Background(), sampleRecords(), SearchContext{Query: "abc", Suburb: "Richmond"})

	require.Len(t, out, 3)
	assert.Equal(t, "biz-abc", out[0].ID)
	assert.Equal(t, "biz-3", out[1].ID)
	assert.Equal(t, "biz-1", out[2].ID)
	for i := 1; i < len(out); i++ {
		assert.GreaterOrEqual(t, out[i-1].RerankScore, out[i].RerankScore)
	}
}

func TestRerank_SubScoreBands(t *testing.T) {
	r := newTestReranker(t, flagOn)
	contexts := []SearchContext{
		{},
		{Query: "richmond", Suburb: "Richmond"},
		{Query: "b", Location: &Location{Suburb: "hill"}},
	}

	for _, sc := range contexts {
		for _, s := range r.Rerank(context.Background(), sampleRecords(), sc) {
			b := s.Breakdown
			assert.Contains(t, []float64{0, 15, 30}, b.Locality)
			assert.Contains(t, []float64{0, 2, 5, 10}, b.Recency)
			assert.True(t, b.Completion >= 0 && b.Completion <= 20)
			assert.True(t, b.Rating >= 0 && b.Rating <= 20)
			assert.True(t, b.QueryRelevance >= 0 && b.QueryRelevance <= 25)
			assert.Equal(t, b.Total(), s.RerankScore)
		}
	}
}

func TestRerank_TieBreaks(t *testing.T) {
	r := newTestReranker(t, flagOn)

	t.Run("newer createdAt first", func(t *testing.T) {
		records := []BusinessRecord{
			{ID: "older", Name: "Same", CreatedAt: daysAgo(10), UpdatedAt: daysAgo(200)},
			{ID: "newer", Name: "Same", CreatedAt: daysAgo(2), UpdatedAt: daysAgo(200)},
		}
		out := r.Rerank(context.Background(), records, SearchContext{})
		require.Len(t, out, 2)
		assert.Equal(t, out[0].RerankScore, out[1].RerankScore)
		assert.Equal(t, "newer", out[0].ID)
	})

	t.Run("full ties keep input order", func(t *testing.T) {
		created := daysAgo(5)
		records := []BusinessRecord{
			{ID: "a", CreatedAt: created, UpdatedAt: daysAgo(200)},
			{ID: "b", CreatedAt: created, UpdatedAt: daysAgo(200)},
			{ID: "c", CreatedAt: created, UpdatedAt: daysAgo(200)},
		}
		out := r.Rerank(context.Background(), records, SearchContext{})
		ids := []string{out[0].ID, out[1].ID, out[2].ID}
		assert.Equal(t, []string{"a", "b", "c"}, ids)
	})
}

func TestRerank_Idempotent(t *testing.T) {
	r := newTestReranker(t, flagOn)
	sc := SearchContext{Query: "bakery", Suburb: "Richmond"}

	first := r.Rerank(context.Background(), sampleRecords(), sc)
	second := r.Rerank(context.Background(), sampleRecords(), sc)

	assert.Equal(t, first, second)
}

func TestRerank_EmptyInput(t *testing.T) {
	for name, flag := range map[string]FlagFunc{"on": flagOn, "off": flagOff, "nil": nil} {
		t.Run(name, func(t *testing.T) {
			r := newTestReranker(t, flag)
			out := r.Rerank(context.Background(), nil, SearchContext{Query: "x", Suburb: "y"})
			assert.NotNil(t, out)
			assert.Empty(t, out)
		})
	}
}

func TestRerank_Disabled(t *testing.T) {
	failing := func(context.Context, string) (bool, error) {
		return false, errors.New("redis: connection refused")
	}
	slow := func(ctx context.Context, _ string) (bool, error) {
		time.Sleep(2 * time.Second)
		return true, nil
	}

	tests := []struct {
		name string
		flag FlagFunc
	}{
		{"flag off", flagOff},
		{"flag lookup error fails open", failing},
		{"flag lookup timeout fails open", slow},
		{"no flag source", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(Config{FlagTimeout: 20 * time.Millisecond}, tt.flag, logger.NewTestLogger(t),
				WithClock(func() time.Time { return fixedNow }))
			records := sampleRecords()

			start := time.Now()
			out := r.Rerank(context.Background(), records, SearchContext{Query: "abc", Suburb: "Richmond"})
			assert.Less(t, time.Since(start), time.Second)

			require.Len(t, out, len(records))
			for i, s := range out {
				assert.Equal(t, records[i].ID, s.ID)
				assert.Equal(t, 0.0, s.RerankScore)
				assert.Equal(t, Breakdown{}, s.Breakdown)
			}
		})
	}
}

func TestRerank_UsesConfiguredFlagKey(t *testing.T) {
	var seen atomic.Value
	flag := func(_ context.Context, key string) (bool, error) {
		seen.Store(key)
		return true, nil
	}

	r := New(Config{FlagKey: "search_reranker_v2"}, flag, logger.NewNoOpLogger())
	r.Rerank(context.Background(), sampleRecords(), SearchContext{})

	assert.Equal(t, "search_reranker_v2", seen.Load())
}

func TestRerank_DoesNotMutateInput(t *testing.T) {
	r := newTestReranker(t, flagOn)
	records := sampleRecords()
	ids := []string{records[0].ID, records[1].ID, records[2].ID}

	r.Rerank(context.Background(), records, SearchContext{Query: "abc", Suburb: "Richmond"})

	assert.Equal(t, ids, []string{records[0].ID, records[1].ID, records[2].ID})
}

func TestRun_ReportsGateState(t *testing.T) {
	on := newTestReranker(t, flagOn).Run(context.Background(), sampleRecords(), SearchContext{Query: "abc"})
	assert.True(t, on.Enabled)
	assert.Len(t, on.Records, 3)

	off := newTestReranker(t, flagOff).Run(context.Background(), sampleRecords(), SearchContext{Query: "abc"})
	assert.False(t, off.Enabled)

	empty := newTestReranker(t, flagOn).Run(context.Background(), nil, SearchContext{})
	assert.False(t, empty.Enabled)
	assert.NotNil(t, empty.Records)
}
