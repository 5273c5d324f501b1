package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// IdempotencyClaimStore guards side effects behind an atomic claim on a key.
// Claim returns accepted=false while a live claim or a completed entry exists.
type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string, keyTTL time.Duration) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

type EventHandler interface {
	EventType() string
	Handle(ctx context.Context, event VerifiedEvent) (InboundResult, error)
}

// ActivationStore persists issued codes. Create must be safe against a
// concurrent insert for the same session: the loser receives the stored record
// and created=false.
type ActivationStore interface {
	Create(ctx context.Context, activation Activation) (stored Activation, created bool, err error)
	FindBySession(ctx context.Context, sessionID string) (Activation, bool, error)
	MarkNotification(ctx context.Context, id string, status NotificationStatus, at time.Time) error
}

// PendingNotificationReader lists activations still waiting on their email,
// oldest first.
type PendingNotificationReader interface {
	ListUnnotified(ctx context.Context, before time.Time, limit int) ([]Activation, error)
}

type ActivationNotifier interface {
	SendActivationEmail(ctx context.Context, notice ActivationNotice) bool
}

// NotificationBackfill hands failed notifications to an out-of-band worker.
type NotificationBackfill interface {
	EnqueueNotification(ctx context.Context, activation Activation) error
}

type CodeSource interface {
	Generate(plan Plan) (string, error)
}

// ActivationIssuer is the surface command and inbound handlers depend on.
type ActivationIssuer interface {
	IssueActivation(ctx context.Context, req IssueActivationRequest) (ActivationOutcome, error)
	RetryNotification(ctx context.Context, sessionID string) (ActivationOutcome, error)
	HandlePaymentSucceeded(ctx context.Context, intent PaymentIntent) error
}
