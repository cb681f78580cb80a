// test/e2e/e2e_test.go
package e2e

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"suburbmates-workers/internal/common/camunda"
	"suburbmates-workers/internal/common/config"
	"suburbmates-workers/internal/common/database"
	"suburbmates-workers/internal/common/featureflags"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/moderation"
	"suburbmates-workers/internal/search/listingindex"

	reviewlisting "suburbmates-workers/internal/workers/listings/review-listing"
	moderatecontent "suburbmates-workers/internal/workers/moderation/moderate-content"
	reranklistings "suburbmates-workers/internal/workers/search/rerank-listings"
	searchlistings "suburbmates-workers/internal/workers/search/search-listings"
)

type environment struct {
	pg    *database.PostgresClient
	es    *database.ElasticsearchClient
	redis *database.RedisClient
	index string
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// setup connects to the docker-compose services. The suite only runs when
// E2E_POSTGRES_HOST is set.
func setup(t *testing.T) *environment {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping E2E tests in short mode")
	}
	host := os.Getenv("E2E_POSTGRES_HOST")
	if host == "" {
		t.Skip("E2E_POSTGRES_HOST not set")
	}

	ctx := context.Background()

	pg, err := database.NewPostgres(config.PostgresConfig{
		Host:           host,
		Port:           5432,
		Database:       getenv("E2E_POSTGRES_DB", "suburbmates"),
		User:           getenv("E2E_POSTGRES_USER", "postgres"),
		Password:       getenv("E2E_POSTGRES_PASSWORD", "postgres"),
		MaxConnections: 5,
		MaxIdle:        2,
		SSLMode:        "disable",
	})
	require.NoError(t, err)
	require.NoError(t, pg.Ping(ctx), "PostgreSQL ping failed")
	require.NoError(t, pg.Migrate(ctx))
	t.Cleanup(func() { pg.Close() })

	es, err := database.NewElasticsearch(config.ElasticsearchConfig{
		URL: getenv("E2E_ELASTICSEARCH_URL", "http://localhost:9200"),
	})
	require.NoError(t, err)
	require.NoError(t, es.Ping(ctx), "Elasticsearch ping failed")

	index := fmt.Sprintf("businesses-e2e-%d", time.Now().UnixNano())
	require.NoError(t, es.EnsureIndex(ctx, index, listingindex.Mapping))
	t.Cleanup(func() {
		res, err := es.Client.Indices.Delete([]string{index})
		if err == nil {
			res.Body.Close()
		}
	})

	rdb, err := database.NewRedis(config.RedisConfig{Address: getenv("E2E_REDIS_ADDRESS", "localhost:6379")})
	require.NoError(t, err)
	require.NoError(t, rdb.Ping(ctx), "Redis ping failed")
	t.Cleanup(func() { rdb.Close() })

	return &environment{pg: pg, es: es, redis: rdb, index: index}
}

func TestZeebeConnectivity(t *testing.T) {
	addr := os.Getenv("ZEEBE_ADDRESS")
	if addr == "" {
		t.Skip("ZEEBE_ADDRESS not set")
	}

	client, err := camunda.Connect(context.Background(), &camunda.ClientConfig{
		GatewayAddress:         addr,
		UsePlaintextConnection: true,
		RetryConfig:            &camunda.RetryConfig{MaxRetries: 3, BaseDelay: time.Second, MaxDelay: 4 * time.Second},
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer client.Close()
}

// TestListingLifecycle approves a listing, finds it through search, reranks
// the candidates and moderates an inquiry about it.
func TestListingLifecycle(t *testing.T) {
	env := setup(t)
	ctx := context.Background()
	log := logger.NewTestLogger(t)

	bizID := fmt.Sprintf("e2e-%d", time.Now().UnixNano())
	_, err := env.pg.DB.ExecContext(ctx, `
		INSERT INTO businesses (id, name, suburb, category, bio, website, owner_email, status, rating, review_count)
		VALUES ($1, 'ABC Plumbing', 'Richmond', 'Plumbing', 'Licensed plumbers for blocked drains', 'https://abc.example', '', 'pending', 4.5, 20)`,
		bizID)
	require.NoError(t, err)
	t.Cleanup(func() {
		env.pg.DB.Exec(`DELETE FROM listing_reviews WHERE business_id = $1`, bizID)
		env.pg.DB.Exec(`DELETE FROM businesses WHERE id = $1`, bizID)
	})

	// 1. Approve
	review := reviewlisting.NewHandler(&reviewlisting.Config{Timeout: 10 * time.Second, Index: env.index},
		env.pg.DB, env.es.Client, nil, log)
	reviewed, err := review.Execute(ctx, &reviewlisting.Input{BusinessID: bizID, Action: "approve", ReviewerID: "e2e-admin"})
	require.NoError(t, err)
	assert.Equal(t, "approved", reviewed.ToStatus)
	assert.True(t, reviewed.Indexed)

	// Approving twice is refused.
	_, err = review.Execute(ctx, &reviewlisting.Input{BusinessID: bizID, Action: "approve", ReviewerID: "e2e-admin"})
	assert.ErrorIs(t, err, reviewlisting.ErrInvalidTransition)

	// 2. Search
	search := searchlistings.NewHandler(&searchlistings.Config{Timeout: 10 * time.Second, Index: env.index, DefaultSize: 10},
		env.es.Client, log)
	found, err := search.Execute(ctx, &searchlistings.Input{Query: "abc", Suburb: "Richmond"})
	require.NoError(t, err)
	require.NotEmpty(t, found.Records)
	assert.Equal(t, bizID, found.Records[0].ID)

	// 3. Rerank behind the flag
	flags := featureflags.NewStore(env.pg.DB, env.redis.Client, time.Second, log)
	require.NoError(t, flags.Set(ctx, "search_reranker", true))

	rerank := reranklistings.NewHandler(reranklistings.LoadConfig(), flags, log)
	ranked, err := rerank.Execute(ctx, &reranklistings.Input{Records: found.Records, SearchContext: found.SearchContext})
	require.NoError(t, err)
	require.True(t, ranked.RerankEnabled)
	top := ranked.RankedListings[0]
	assert.Equal(t, 30.0, top.Breakdown.Locality)
	assert.Equal(t, 20.0, top.Breakdown.Rating)

	// 4. Moderate an inquiry
	modCfg := moderatecontent.LoadConfig()
	modCfg.BaseLists = moderation.DefaultLists()
	moderate := moderatecontent.NewHandler(modCfg, env.pg.DB, env.redis.Client, moderatecontent.Notifiers{}, nil, log)
	result, err := moderate.Execute(ctx, &moderatecontent.Input{
		SubmissionID:   "inq-" + bizID,
		SubmissionType: "inquiry",
		Fields: map[string]string{
			"message": "See https://a.example https://b.example https://c.example https://d.example for details",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, moderation.DecisionFlag, result.Decision)
	assert.Contains(t, result.Reasons, moderation.ReasonExcessiveLinks)
	assert.True(t, result.Persisted)

	// 5. Suspend removes it from search.
	_, err = review.Execute(ctx, &reviewlisting.Input{BusinessID: bizID, Action: "suspend", ReviewerID: "e2e-admin", Reason: "e2e"})
	require.NoError(t, err)
	found, err = search.Execute(ctx, &searchlistings.Input{Query: "abc"})
	require.NoError(t, err)
	for _, c := range found.Records {
		assert.NotEqual(t, bizID, c.ID)
	}
}
