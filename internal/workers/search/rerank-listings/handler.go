// internal/workers/search/rerank-listings/handler.go
package reranklistings

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"
	"suburbmates-workers/internal/search/rerank"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "rerank-listings"
)

// FlagChecker is satisfied by featureflags.Store, Static and Layered.
type FlagChecker interface {
	IsEnabled(ctx context.Context, key string) (bool, error)
}

type Handler struct {
	config       *Config
	reranker     *rerank.Reranker
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
}

func NewHandler(config *Config, flags FlagChecker, log logger.Logger, opts ...rerank.Option) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})

	var flagFunc rerank.FlagFunc
	if flags != nil {
		flagFunc = flags.IsEnabled
	}

	return &Handler{
		config: config,
		reranker: rerank.New(rerank.Config{
			FlagKey:     config.FlagKey,
			FlagTimeout: config.FlagTimeout,
		}, flagFunc, log, opts...),
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
		h.fail(ctx, client, job, apperrors.Normalize(err))
		return
	}

	h.completeJob(ctx, client, job, output)
	metrics.WorkerJobsCompleted.WithLabelValues(TaskType).Inc()
	metrics.WorkerJobDuration.WithLabelValues(TaskType).Observe(time.Since(start).Seconds())
}

// execute never fails on flag problems; the reranker degrades to input order.
func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	result := h.reranker.Run(ctx, input.Records, input.SearchContext)

	limit := input.Limit
	if limit <= 0 {
		limit = h.config.DefaultLimit
	}
	ranked := result.Records
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}

	h.logger.Info("listings reranked", map[string]interface{}{
		"candidates":    len(input.Records),
		"returned":      len(ranked),
		"rerankEnabled": result.Enabled,
	})

	return &Output{
		RankedListings: ranked,
		RerankEnabled:  result.Enabled,
		TotalCount:     len(result.Records),
	}, nil
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
