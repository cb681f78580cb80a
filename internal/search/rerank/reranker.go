// internal/search/rerank/reranker.go
package rerank

import (
	"context"
	"sort"
	"time"

	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultFlagKey     = "search_reranker"
	DefaultFlagTimeout = 200 * time.Millisecond
)

// FlagFunc reports whether a feature flag is enabled. featureflags.Store and
// featureflags.Static both satisfy it via their IsEnabled method.
type FlagFunc func(ctx context.Context, key string) (bool, error)

type Config struct {
	FlagKey     string
	FlagTimeout time.Duration
}

type Reranker struct {
	config  Config
	enabled FlagFunc
	logger  logger.Logger
	tracer  trace.Tracer
	now     func() time.Time
}

type Option func(*Reranker)

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Reranker) { r.now = now }
}

func New(config Config, enabled FlagFunc, log logger.Logger, opts ...Option) *Reranker {
	if config.FlagKey == "" {
		config.FlagKey = DefaultFlagKey
	}
	if config.FlagTimeout <= 0 {
		config.FlagTimeout = DefaultFlagTimeout
	}
	r := &Reranker{
		config:  config,
		enabled: enabled,
		logger:  log.WithFields(map[string]interface{}{"component": "reranker"}),
		tracer:  otel.Tracer("suburbmates-workers/search/rerank"),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank scores every record and orders them by score, newest first on ties.
// When the flag is off or cannot be read, records come back in input order
// with zero scores.
func (r *Reranker) Rerank(ctx context.Context, records []BusinessRecord, sc SearchContext) []ScoredRecord {
	return r.Run(ctx, records, sc).Records
}

// Result is the reranked slice plus whether scoring actually ran.
type Result struct {
	Records []ScoredRecord
	Enabled bool
}

// Run is Rerank that also reports the gate state. Empty input skips the flag
// lookup and reports disabled.
func (r *Reranker) Run(ctx context.Context, records []BusinessRecord, sc SearchContext) Result {
	out := make([]ScoredRecord, 0, len(records))
	if len(records) == 0 {
		return Result{Records: out}
	}

	ctx, span := r.tracer.Start(ctx, "rerank")
	defer span.End()

	start := time.Now()
	enabled := r.isEnabled(ctx)
	span.SetAttributes(
		attribute.Int("rerank.records", len(records)),
		attribute.Bool("rerank.enabled", enabled),
	)

	if !enabled {
		for _, rec := range records {
			out = append(out, ScoredRecord{BusinessRecord: rec})
		}
		metrics.RerankRequests.WithLabelValues("disabled").Inc()
		return Result{Records: out}
	}

	now := r.now()
	for _, rec := range records {
		out = append(out, Score(rec, sc, now))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RerankScore != out[j].RerankScore {
			return out[i].RerankScore > out[j].RerankScore
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	metrics.RerankRequests.WithLabelValues("enabled").Inc()
	metrics.RerankDuration.Observe(time.Since(start).Seconds())

	r.logger.Debug("rerank completed", map[string]interface{}{
		"records":  len(out),
		"topScore": out[0].RerankScore,
	})

	return Result{Records: out, Enabled: true}
}

// Score computes the breakdown for a single record.
func Score(rec BusinessRecord, sc SearchContext, now time.Time) ScoredRecord {
	b := Breakdown{
		Locality:       LocalityScore(rec, sc),
		Completion:     CompletionScore(rec),
		Rating:         RatingScore(rec),
		Recency:        RecencyScore(rec, now),
		QueryRelevance: QueryRelevanceScore(rec, sc),
	}
	return ScoredRecord{
		BusinessRecord: rec,
		RerankScore:    b.Total(),
		Breakdown:      b,
	}
}

func (r *Reranker) isEnabled(ctx context.Context) bool {
	if r.enabled == nil {
		return false
	}

	ctx, cancel := context.WithTimeout(ctx, r.config.FlagTimeout)
	defer cancel()

	type lookup struct {
		enabled bool
		err     error
	}
	// Buffered: the sender must not block once we stop waiting.
	done := make(chan lookup, 1)
	go func() {
		enabled, err := r.enabled(ctx, r.config.FlagKey)
		done <- lookup{enabled: enabled, err: err}
	}()

	var res lookup
	select {
	case res = <-done:
	case <-ctx.Done():
		res = lookup{err: ctx.Err()}
	}

	enabled, err := res.enabled, res.err
	if err != nil {
		metrics.FeatureFlagErrors.WithLabelValues(r.config.FlagKey).Inc()
		r.logger.Warn("feature flag lookup failed, reranking disabled", map[string]interface{}{
			"flag":  r.config.FlagKey,
			"error": err.Error(),
		})
		return false
	}
	return enabled
}
