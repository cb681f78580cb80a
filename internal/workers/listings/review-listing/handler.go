// internal/workers/listings/review-listing/handler.go
package reviewlisting

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	awsx "suburbmates-workers/internal/common/aws"
	"suburbmates-workers/internal/common/database"
	apperrors "suburbmates-workers/internal/common/errors"
	"suburbmates-workers/internal/common/logger"
	"suburbmates-workers/internal/common/metrics"
	"suburbmates-workers/internal/search/listingindex"
	"suburbmates-workers/internal/search/rerank"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

const (
	TaskType = "review-listing"
)

var (
	ErrListingNotFound      = errors.New("LISTING_NOT_FOUND")
	ErrInvalidTransition    = errors.New("INVALID_TRANSITION")
	ErrDatabaseUpdateFailed = errors.New("DATABASE_UPDATE_FAILED")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

// transitionError keeps the status the listing was in when the action was refused.
type transitionError struct {
	from   string
	action string
}

func (e *transitionError) Error() string {
	return fmt.Sprintf("%s: cannot %s a %s listing", ErrInvalidTransition, e.action, e.from)
}

func (e *transitionError) Unwrap() error { return ErrInvalidTransition }

type Handler struct {
	config       *Config
	db           *sql.DB
	es           *elasticsearch.Client
	ses          awsx.SESService
	logger       logger.Logger
	errorHandler *apperrors.ErrorHandler
	newID        func() string
	now          func() time.Time
}

func NewHandler(config *Config, db *sql.DB, es *elasticsearch.Client, ses awsx.SESService, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:       config,
		db:           db,
		es:           es,
		ses:          ses,
		logger:       log,
		errorHandler: apperrors.NewErrorHandler(log),
		newID:        func() string { return uuid.NewString() },
		now:          func() time.Time { return time.Now().UTC() },
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
		h.fail(ctx, client, job, h.toStandardError(input.BusinessID, err))
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

	step, ok := transitions[input.Action]
	if !ok {
		return nil, &transitionError{from: "unknown", action: input.Action}
	}

	var (
		biz      *business
		reviewID = h.newID()
		now      = h.now()
	)

	err := database.WithTx(ctx, h.db, func(tx *sql.Tx) error {
		var err error
		biz, err = lockBusiness(ctx, tx, input.BusinessID)
		if err != nil {
			return err
		}
		if biz.Status != step.from {
			return &transitionError{from: biz.Status, action: input.Action}
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE businesses SET status = $1, updated_at = $2 WHERE id = $3`,
			step.to, now, biz.ID,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseUpdateFailed, err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO listing_reviews
				(id, business_id, reviewer_id, action, from_status, to_status, reason, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			reviewID, biz.ID, input.ReviewerID, input.Action, biz.Status, step.to, input.Reason, now,
		); err != nil {
			return fmt.Errorf("%w: %v", ErrDatabaseUpdateFailed, err)
		}
		return nil
	})
	if err != nil {
		if isReviewError(err) {
			return nil, err
		}
		// Begin or commit failed.
		return nil, fmt.Errorf("%w: %v", ErrDatabaseUpdateFailed, err)
	}

	metrics.ListingReviews.WithLabelValues(input.Action).Inc()

	fromStatus := biz.Status
	biz.Status = step.to
	biz.UpdatedAt = now

	output := &Output{
		BusinessID: biz.ID,
		ReviewID:   reviewID,
		Action:     input.Action,
		FromStatus: fromStatus,
		ToStatus:   step.to,
		ReviewedAt: now,
	}

	// The status change is committed; index and email problems are reported
	// in the output rather than failing the job.
	output.Indexed = h.syncIndex(ctx, biz)
	output.OwnerNotified = h.notifyOwner(ctx, biz, input)

	h.logger.Info("listing reviewed", map[string]interface{}{
		"businessId": biz.ID,
		"action":     input.Action,
		"from":       fromStatus,
		"to":         step.to,
		"indexed":    output.Indexed,
	})

	return output, nil
}

func isReviewError(err error) bool {
	return errors.Is(err, ErrListingNotFound) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrDatabaseUpdateFailed) ||
		errors.Is(err, ErrQueryExecutionFailed)
}

func lockBusiness(ctx context.Context, tx *sql.Tx, id string) (*business, error) {
	var (
		b           business
		rating      sql.NullFloat64
		reviewCount sql.NullInt64
	)

	err := tx.QueryRowContext(ctx, `
		SELECT id, name, suburb, category, bio, logo, website, phone, owner_email,
		       status, rating, review_count, created_at, updated_at
		FROM businesses
		WHERE id = $1
		FOR UPDATE`, id,
	).Scan(
		&b.ID, &b.Name, &b.Suburb, &b.Category, &b.Bio, &b.Logo, &b.Website, &b.Phone, &b.OwnerEmail,
		&b.Status, &rating, &reviewCount, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err)
	}

	if rating.Valid {
		b.Rating = &rating.Float64
	}
	if reviewCount.Valid {
		n := int(reviewCount.Int64)
		b.ReviewCount = &n
	}
	return &b, nil
}

// syncIndex puts approved listings into the search index and removes the rest.
func (h *Handler) syncIndex(ctx context.Context, b *business) bool {
	if h.es == nil {
		return false
	}

	var err error
	if b.Status == StatusApproved {
		err = listingindex.Put(ctx, h.es, h.config.Index, toDocument(b))
	} else {
		err = listingindex.Remove(ctx, h.es, h.config.Index, b.ID)
	}
	if err != nil {
		stdErr := apperrors.NewIndexUpdateFailedError(b.ID, err)
		h.logger.Error(stdErr.Message, map[string]interface{}{
			"code":  stdErr.Code,
			"error": err.Error(),
		})
		return false
	}
	return true
}

func toDocument(b *business) listingindex.Document {
	doc := listingindex.Document{
		ID:          b.ID,
		Name:        b.Name,
		Suburb:      b.Suburb,
		Category:    b.Category,
		Bio:         b.Bio,
		Logo:        b.Logo,
		Website:     b.Website,
		Phone:       b.Phone,
		Status:      b.Status,
		Rating:      b.Rating,
		ReviewCount: b.ReviewCount,
		CreatedAt:   b.CreatedAt,
		UpdatedAt:   b.UpdatedAt,
	}
	completion := rerank.CompletionFraction(doc.Record())
	doc.CompletionScore = &completion
	return doc
}

func (h *Handler) notifyOwner(ctx context.Context, b *business, input *Input) bool {
	if !h.config.NotifyOwner || h.ses == nil || b.OwnerEmail == "" {
		return false
	}

	subject, body := ownerMessage(b, input)
	if _, err := h.ses.SendEmail(ctx, awsx.EmailInput(h.config.FromEmail, b.OwnerEmail, subject, body)); err != nil {
		stdErr := apperrors.NewNotificationSendFailedError("ses", err)
		h.logger.Error(stdErr.Message, map[string]interface{}{
			"businessId": b.ID,
			"code":       stdErr.Code,
			"error":      err.Error(),
		})
		return false
	}
	return true
}

func ownerMessage(b *business, input *Input) (subject, body string) {
	switch input.Action {
	case ActionApprove:
		subject = fmt.Sprintf("%s is now live on SuburbMates", b.Name)
		body = fmt.Sprintf("Good news! Your listing %q has been approved and is now visible in search.\n", b.Name)
	case ActionReject:
		subject = fmt.Sprintf("Your SuburbMates listing %s was not approved", b.Name)
		body = fmt.Sprintf("Your listing %q was not approved.\n", b.Name)
	case ActionSuspend:
		subject = fmt.Sprintf("Your SuburbMates listing %s has been suspended", b.Name)
		body = fmt.Sprintf("Your listing %q has been suspended and removed from search.\n", b.Name)
	case ActionReinstate:
		subject = fmt.Sprintf("%s has been reinstated on SuburbMates", b.Name)
		body = fmt.Sprintf("Your listing %q has been reinstated and is visible in search again.\n", b.Name)
	}
	if input.Reason != "" {
		body += "\nReason: " + input.Reason + "\n"
	}
	return subject, body
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

func (h *Handler) toStandardError(businessID string, err error) *apperrors.StandardError {
	var te *transitionError
	switch {
	case errors.As(err, &te):
		return apperrors.NewInvalidTransitionError(te.from, te.action).
			WithMetadata("businessId", businessID)
	case errors.Is(err, ErrListingNotFound):
		return apperrors.NewListingNotFoundError(businessID)
	case errors.Is(err, ErrDatabaseUpdateFailed):
		return apperrors.NewDatabaseUpdateFailedError(err)
	case errors.Is(err, ErrQueryExecutionFailed):
		return apperrors.NewQueryExecutionFailedError("lock business", err)
	default:
		return apperrors.NewInternalError(err)
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}
