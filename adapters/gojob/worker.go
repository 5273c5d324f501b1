package gojob

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/adapters/gocommand"
	"github.com/goliatone/go-checkout-activation/core"
	gocmd "github.com/goliatone/go-command"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	"github.com/goliatone/go-job/queue/worker"
)

const queueResolverKey = "queue"

// NotificationRetrier resends a stored activation email.
type NotificationRetrier interface {
	RetryNotification(ctx context.Context, sessionID string) (core.ActivationOutcome, error)
}

// BackfillNotificationMessage is the decoded form of a backfill job's
// parameters.
type BackfillNotificationMessage struct {
	SessionID    string `json:"session_id"`
	ActivationID string `json:"activation_id"`
	Tier         string `json:"tier"`
}

func (BackfillNotificationMessage) Type() string { return JobIDNotificationBackfill }

func (m BackfillNotificationMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return jobError("gojob: session id parameter is required", map[string]any{"job_id": JobIDNotificationBackfill})
	}
	return nil
}

// BackfillNotificationCommand resends one activation email. Unlike the retry
// command it fails while the email is still undelivered, so the queue keeps
// the job until the retry policy gives up.
type BackfillNotificationCommand struct {
	retrier NotificationRetrier
}

func NewBackfillNotificationCommand(retrier NotificationRetrier) *BackfillNotificationCommand {
	return &BackfillNotificationCommand{retrier: retrier}
}

func (c *BackfillNotificationCommand) Execute(ctx context.Context, msg BackfillNotificationMessage) error {
	if c == nil || c.retrier == nil {
		return core.ConfigurationMissingError("notification retrier")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	sessionID := strings.TrimSpace(msg.SessionID)
	outcome, err := c.retrier.RetryNotification(ctx, sessionID)
	if err != nil {
		return err
	}
	if !outcome.Notified {
		return core.NewError(
			"gojob: activation email was not delivered",
			goerrors.CategoryExternal,
			http.StatusBadGateway,
			core.ErrorEmailProviderFailure,
			map[string]any{"session_id": sessionID, "status": string(outcome.Status)},
		)
	}
	return nil
}

// WorkerConfig tunes the queue worker built by NewNotificationWorker.
type WorkerConfig struct {
	Policy      RetryPolicy
	Hooks       []worker.Hook
	Logger      job.Logger
	Concurrency int
	IdleDelay   time.Duration
}

// NewNotificationWorker registers the backfill command in a go-command
// registry, mirrors it into a go-job queue registry through the queue
// resolver and builds the local worker that drains dequeuer. Start and Stop
// the returned worker to run it.
func NewNotificationWorker(dequeuer queue.Dequeuer, retrier NotificationRetrier, cfg WorkerConfig) (*worker.Worker, error) {
	if dequeuer == nil {
		return nil, core.ConfigurationMissingError("backfill queue")
	}
	if retrier == nil {
		return nil, core.ConfigurationMissingError("notification retrier")
	}

	queueRegistry := jobqueuecommand.NewRegistry()
	adapter := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	if err := adapter.AddQueueResolver(queueResolverKey, queueRegistry); err != nil {
		return nil, err
	}
	if err := adapter.RegisterCommand(NewBackfillNotificationCommand(retrier)); err != nil {
		return nil, err
	}
	if err := adapter.Initialize(); err != nil {
		return nil, err
	}

	policy := cfg.Policy
	if policy == (RetryPolicy{}) {
		policy = DefaultRetryPolicy()
	}
	opts := []worker.Option{
		worker.WithRetryPolicy(policy),
		worker.WithHooks(cfg.Hooks...),
	}
	if cfg.Logger != nil {
		opts = append(opts, worker.WithLogger(cfg.Logger))
	}
	if cfg.Concurrency > 0 {
		opts = append(opts, worker.WithConcurrency(cfg.Concurrency))
	}
	if cfg.IdleDelay > 0 {
		opts = append(opts, worker.WithIdleDelay(cfg.IdleDelay))
	}
	return jobqueuecommand.NewLocalWorker(dequeuer, queueRegistry, jobqueuecommand.LocalWorkerConfig{
		IDs:           []string{JobIDNotificationBackfill},
		WorkerOptions: opts,
	})
}

// LoggingHook reports worker events through glog and the metrics recorder.
type LoggingHook struct {
	Logger  glog.Logger
	Metrics core.MetricsRecorder
}

func (h LoggingHook) OnStart(ctx context.Context, event worker.Event) {
	core.LogWithLevel(ctx, h.Logger, "debug", "backfill job started", eventFields(event))
}

func (h LoggingHook) OnSuccess(ctx context.Context, event worker.Event) {
	core.LogWithLevel(ctx, h.Logger, "info", "backfill job delivered", eventFields(event))
	h.count(ctx, "success")
}

func (h LoggingHook) OnFailure(ctx context.Context, event worker.Event) {
	fields := eventFields(event)
	fields["text_code"] = core.ErrorEmailProviderFailure
	core.LogWithLevel(ctx, h.Logger, "error", "backfill job abandoned", fields)
	h.count(ctx, "failure")
}

func (h LoggingHook) OnRetry(ctx context.Context, event worker.Event) {
	core.LogWithLevel(ctx, h.Logger, "warn", "backfill job requeued", eventFields(event))
	h.count(ctx, "retry")
}

func (h LoggingHook) count(ctx context.Context, status string) {
	if h.Metrics == nil {
		return
	}
	h.Metrics.IncCounter(ctx, MetricBackfillJobs, 1, map[string]string{"status": status})
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{
		"attempt": event.Attempt,
	}
	if event.Message != nil {
		fields["job_id"] = event.Message.JobID
		fields["idempotency_key"] = event.Message.IdempotencyKey
		if sessionID, ok := event.Message.Parameters[ParamSessionID]; ok {
			fields[ParamSessionID] = sessionID
		}
	}
	if event.Delay > 0 {
		fields["delay"] = event.Delay.String()
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

var (
	_ worker.Hook                                  = LoggingHook{}
	_ gocmd.Commander[BackfillNotificationMessage] = (*BackfillNotificationCommand)(nil)
)
