package gojob

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	goerrors "github.com/goliatone/go-errors"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

const (
	JobIDNotificationBackfill = "activation.notification.backfill"

	ParamSessionID    = "session_id"
	ParamActivationID = "activation_id"
	ParamTier         = "tier"

	MetricBackfillJobs = "activation.backfill.jobs"
)

// RetryPolicy bounds how often the worker retries a backfill job.
type RetryPolicy struct {
	MaxAttempts     int
	BaseDelay       time.Duration
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultRetryPolicy retries a failed notification five times with
// exponential backoff starting at 30s and capped at 30m.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:     5,
		BaseDelay:       30 * time.Second,
		MaxDelay:        30 * time.Minute,
		DeadLetterOnMax: true,
	}
}

// Decide maps a failed attempt to a nack. Missing activations, invalid
// messages and terminal errors are dead-lettered at once; anything else is
// requeued with backoff until MaxAttempts.
func (p RetryPolicy) Decide(attempt int, err error) queue.NackOptions {
	if attempt <= 0 {
		attempt = 1
	}
	reason := ""
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	if permanentFailure(err) {
		return queue.NackOptions{Disposition: queue.NackDispositionDeadLetter, Reason: reason}
	}
	if p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		disposition := queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			disposition = queue.NackDispositionDeadLetter
		}
		return queue.NackOptions{Disposition: disposition, Reason: reason}
	}
	return queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       p.Backoff(attempt),
		Reason:      reason,
	}
}

// Backoff returns the requeue delay for the given 1-based attempt.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if p.BaseDelay <= 0 || attempt <= 0 {
		return 0
	}
	delay := p.BaseDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.MaxDelay > 0 && delay >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func permanentFailure(err error) bool {
	if err == nil {
		return false
	}
	var terminal job.NonRetryableError
	if errors.As(err, &terminal) && terminal.NonRetryable() {
		return true
	}
	// a session that was never stored will not appear on retry
	return core.HasTextCode(err, core.ErrorNotFound) || core.HasTextCode(err, core.ErrorBadInput)
}

// NotificationMessage builds the go-job message that asks a worker to resend
// the activation email for one session. The queue drops duplicates by
// idempotency key, so the commander itself ignores it.
func NotificationMessage(activation core.Activation) *job.ExecutionMessage {
	sessionID := strings.TrimSpace(activation.SessionID)
	return &job.ExecutionMessage{
		JobID:      JobIDNotificationBackfill,
		ScriptPath: JobIDNotificationBackfill,
		Parameters: map[string]any{
			ParamSessionID:    sessionID,
			ParamActivationID: strings.TrimSpace(activation.ID),
			ParamTier:         string(activation.Tier),
		},
		IdempotencyKey: JobIDNotificationBackfill + ":" + sessionID,
		DedupPolicy:    job.DedupPolicyIgnore,
	}
}

// BackfillEnqueuer hands failed activation emails to a go-job queue.
type BackfillEnqueuer struct {
	enqueuer queue.Enqueuer
}

func NewBackfillEnqueuer(enqueuer queue.Enqueuer) *BackfillEnqueuer {
	return &BackfillEnqueuer{enqueuer: enqueuer}
}

func (a *BackfillEnqueuer) EnqueueNotification(ctx context.Context, activation core.Activation) error {
	if a == nil || a.enqueuer == nil {
		return core.NewError(
			"gojob: enqueuer is not configured",
			goerrors.CategoryInternal,
			http.StatusInternalServerError,
			core.ErrorInternal,
			nil,
		)
	}
	if strings.TrimSpace(activation.SessionID) == "" {
		return jobError("gojob: activation session id is required", map[string]any{"activation_id": activation.ID})
	}
	_, err := a.enqueuer.Enqueue(ctx, NotificationMessage(activation))
	return err
}

func jobError(message string, metadata map[string]any) error {
	return core.NewError(message, goerrors.CategoryBadInput, http.StatusBadRequest, core.ErrorBadInput, metadata)
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

var (
	_ core.NotificationBackfill = (*BackfillEnqueuer)(nil)
	_ worker.RetryPolicy        = RetryPolicy{}
)
