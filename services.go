package activation

import "github.com/goliatone/go-checkout-activation/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type ActivationStore = core.ActivationStore
type ActivationNotifier = core.ActivationNotifier
type IdempotencyClaimStore = core.IdempotencyClaimStore
type NotificationBackfill = core.NotificationBackfill

type Activation = core.Activation
type ActivationOutcome = core.ActivationOutcome

type IssueActivationRequest = core.IssueActivationRequest

type PurchaseSession = core.PurchaseSession

var (
	WithLogger               = core.WithLogger
	WithLoggerProvider       = core.WithLoggerProvider
	WithMetricsRecorder      = core.WithMetricsRecorder
	WithConfigProvider       = core.WithConfigProvider
	WithOptionsResolver      = core.WithOptionsResolver
	WithActivationStore      = core.WithActivationStore
	WithNotifier             = core.WithNotifier
	WithCodeSource           = core.WithCodeSource
	WithNotificationBackfill = core.WithNotificationBackfill
	WithClock                = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}
