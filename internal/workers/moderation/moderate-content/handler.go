// internal/workers/moderation/moderate-content/handler.go
package moderatecontent

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	awsx "suburbmates-workers/internal/common/aws"
	"suburbmates-workers/internal/common/database"
	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"
	"suburbmates-workers/internal/common/observability"
	"suburbmates-workers/internal/moderation"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"
)

const (
	TaskType = "moderate-content"
)

var (
	ErrModerationTermsFailed = errors.New("MODERATION_TERMS_FAILED")
)

// Notifiers groups the outbound channels. Either may be nil.
type Notifiers struct {
	SES awsx.SESService
	SNS awsx.SNSService
}

type Handler struct {
	config       *Config
	db           *sql.DB
	redis        *redis.Client
	notifiers    Notifiers
	obs          *observability.Observability
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	newID        func() string
}

func NewHandler(config *Config, db *sql.DB, rdb *redis.Client, notifiers Notifiers, obs *observability.Observability, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		redis:        rdb,
		notifiers:    notifiers,
		obs:          obs,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
		newID:        func() string { return uuid.NewString() },
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
	h.obs.RecordJobProcessed(ctx, TaskType, "completed")
	h.obs.RecordJobDuration(ctx, TaskType, time.Since(start), "completed")
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if input == nil {
		return nil, errors.New("input cannot be nil")
	}

	ctx, span := h.obs.StartSpan(ctx, "moderation.score",
		attribute.String("submission.id", input.SubmissionID),
		attribute.String("submission.type", input.SubmissionType),
	)
	defer span.End()

	lists, err := h.loadLists(ctx)
	if err != nil {
		return nil, err
	}

	result := moderation.NewScorer(lists).Score(moderation.Submission{
		Type:  input.SubmissionType,
		Text:  input.Text(),
		Email: input.Email,
	})

	span.SetAttributes(
		attribute.String("moderation.decision", string(result.Decision)),
		attribute.Float64("moderation.confidence", result.Confidence),
	)
	metrics.ModerationDecisions.WithLabelValues(input.SubmissionType, string(result.Decision)).Inc()
	h.obs.RecordModerationConfidence(ctx, string(result.Decision), result.Confidence)

	output := &Output{
		Result:       result,
		ModerationID: h.newID(),
		SubmissionID: input.SubmissionID,
	}

	// The decision stands even when the record or notifications fail.
	if err := h.persist(ctx, input, output); err != nil {
		h.logger.Error("failed to persist moderation result", map[string]interface{}{
			"submissionId": input.SubmissionID,
			"error":        err.Error(),
		})
	} else {
		output.Persisted = true
	}
	h.notify(ctx, input, output)

	h.logger.Info("content moderated", map[string]interface{}{
		"submissionId": input.SubmissionID,
		"decision":     result.Decision,
		"confidence":   result.Confidence,
		"reasons":      result.Reasons,
	})

	return output, nil
}

// loadLists merges the moderation_terms table, cached in Redis, over the
// configured base lists.
func (h *Handler) loadLists(ctx context.Context) (moderation.Lists, error) {
	base := h.config.BaseLists

	var extra moderation.Lists
	if h.redis != nil {
		found, err := database.GetJSON(ctx, h.redis, h.config.TermsCacheKey, &extra)
		if err != nil {
			h.logger.Debug("moderation terms cache read failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
		if found {
			return base.Merge(extra), nil
		}
	}

	if h.db == nil {
		return base, nil
	}

	rows, err := h.db.QueryContext(ctx, `SELECT kind, term FROM moderation_terms`)
	if err != nil {
		return moderation.Lists{}, fmt.Errorf("%w: %v", ErrModerationTermsFailed, err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind, term string
		if err := rows.Scan(&kind, &term); err != nil {
			return moderation.Lists{}, fmt.Errorf("%w: %v", ErrModerationTermsFailed, err)
		}
		if err := extra.Add(kind, term); err != nil {
			h.logger.Warn("skipping moderation term", map[string]interface{}{
				"kind":  kind,
				"error": err.Error(),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return moderation.Lists{}, fmt.Errorf("%w: %v", ErrModerationTermsFailed, err)
	}

	if h.redis != nil {
		if err := database.SetJSON(ctx, h.redis, h.config.TermsCacheKey, extra, h.config.TermsTTL); err != nil {
			h.logger.Debug("moderation terms cache write failed", map[string]interface{}{
				"error": err.Error(),
			})
		}
	}

	return base.Merge(extra), nil
}

func (h *Handler) persist(ctx context.Context, input *Input, output *Output) error {
	if h.db == nil {
		return errors.New("no database configured")
	}

	reasons, err := json.Marshal(output.Reasons)
	if err != nil {
		return err
	}
	flags, err := json.Marshal(output.Flags)
	if err != nil {
		return err
	}

	_, err = h.db.ExecContext(ctx, `
		INSERT INTO moderation_results
			(id, submission_id, submission_type, decision, confidence, reasons, flags)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		output.ModerationID,
		input.SubmissionID,
		input.SubmissionType,
		string(output.Decision),
		output.Confidence,
		string(reasons),
		string(flags),
	)
	return err
}

// notify emails the admin on flag and publishes to the topic on block.
func (h *Handler) notify(ctx context.Context, input *Input, output *Output) {
	switch output.Decision {
	case moderation.DecisionFlag:
		if !h.config.NotifyOnFlag || h.notifiers.SES == nil || h.config.AdminEmail == "" {
			return
		}
		subject := fmt.Sprintf("[SuburbMates] %s %s flagged for review", input.SubmissionType, input.SubmissionID)
		body := fmt.Sprintf(
			"Submission %s (%s) was flagged.\n\nConfidence: %.2f\nReasons: %s\nModeration ID: %s\n",
			input.SubmissionID, input.SubmissionType, output.Confidence,
			strings.Join(output.Reasons, ", "), output.ModerationID,
		)
		_, err := h.notifiers.SES.SendEmail(ctx, awsx.EmailInput(h.config.FromEmail, h.config.AdminEmail, subject, body))
		h.logNotification("ses", input.SubmissionID, err)

	case moderation.DecisionBlock:
		if h.notifiers.SNS == nil || h.config.TopicARN == "" {
			return
		}
		message, err := json.Marshal(output)
		if err != nil {
			h.logNotification("sns", input.SubmissionID, err)
			return
		}
		_, err = h.notifiers.SNS.Publish(ctx, awsx.TopicInput(
			h.config.TopicARN,
			"Content blocked",
			string(message),
			map[string]string{
				"decision":       string(output.Decision),
				"submissionType": input.SubmissionType,
			},
		))
		h.logNotification("sns", input.SubmissionID, err)
	}
}

func (h *Handler) logNotification(channel, submissionID string, err error) {
	if err == nil {
		h.logger.Debug("moderation notification sent", map[string]interface{}{
			"channel":      channel,
			"submissionId": submissionID,
		})
		return
	}
	stdErr := apperrors.NewNotificationSendFailedError(channel, err)
	h.logger.Error(stdErr.Message, map[string]interface{}{
		"submissionId": submissionID,
		"error":        err.Error(),
		"code":         stdErr.Code,
	})
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
	h.obs.RecordJobProcessed(ctx, TaskType, "failed")
	h.errorHandler.HandleJobError(ctx, client, job, stdErr)
}

func (h *Handler) toStandardError(err error) *apperrors.StandardError {
	switch {
	case errors.Is(err, ErrModerationTermsFailed):
		return apperrors.NewModerationTermsFailedError(err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
