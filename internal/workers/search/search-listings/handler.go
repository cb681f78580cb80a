// internal/workers/search/search-listings/handler.go
package searchlistings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"
	"suburbmates-workers/internal/search/listingindex"
	"suburbmates-workers/internal/search/rerank"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
)

const (
	TaskType = "search-listings"
)

var (
	ErrSearchQueryFailed = errors.New("SEARCH_QUERY_FAILED")
	ErrSearchTimeout     = errors.New("SEARCH_TIMEOUT")
	ErrIndexNotFound     = errors.New("INDEX_NOT_FOUND")
)

type Handler struct {
	config       *Config
	client       *elasticsearch.Client
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, client *elasticsearch.Client, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		client:       client,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	start := time.Now()
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := inputSchema.ValidateJSON(job.Variables); err != nil {
		h.fail(ctx, client, job, apperrors.NewInputValidationError(err.Error()))
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.fail(ctx, client, job, apperrors.NewParseError(err))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.fail(ctx, client, job, h.toStandardError(err))
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	size := input.Size
	if size <= 0 {
		size = h.config.DefaultSize
	}

	sc := rerank.SearchContext{
		Query:    input.Query,
		Suburb:   input.Suburb,
		Category: input.Category,
		Location: input.Location,
	}

	result, err := listingindex.Search(ctx, h.client, listingindex.Query{
		Index:    h.config.Index,
		Text:     input.Query,
		Suburb:   sc.TargetSuburb(),
		Category: input.Category,
		Size:     size,
	})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSearchTimeout
		}
		if errors.Is(err, listingindex.ErrIndexNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrIndexNotFound, h.config.Index)
		}
		return nil, fmt.Errorf("%w: %v", ErrSearchQueryFailed, err)
	}

	h.logger.Debug("search completed", map[string]interface{}{
		"query":     input.Query,
		"totalHits": result.TotalHits,
		"returned":  len(result.Records),
	})

	return &Output{
		Records:       result.Records,
		TotalHits:     result.TotalHits,
		Took:          result.Took,
		SearchContext: sc,
	}, nil
}

func (h *Handler) toStandardError(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, ErrIndexNotFound):
		return apperrors.NewIndexNotFoundError(h.config.Index)
	case errors.Is(err, ErrSearchTimeout):
		return apperrors.NewSearchTimeoutError(h.config.Index)
	case errors.Is(err, ErrSearchQueryFailed):
		return apperrors.NewSearchQueryFailedError(err)
	}
	return apperrors.NewInternalError(err)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
	}
}

func (h *Handler) fail(ctx context.Context, client worker.JobClient, job entities.Job, stdErr *apperrors.StandardError) {
	metrics.WorkerJobsFailed.WithLabelValues(TaskType, string(stdErr.Code)).Inc()
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
