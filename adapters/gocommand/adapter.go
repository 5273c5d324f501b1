package gocommand

import (
	"context"
	"fmt"
	"strings"

	activationcommand "github.com/goliatone/go-checkout-activation/command"
	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.RegisterCommand(cmd)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered command into a go-job queue
// registry so it can also run from a queue consumer.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	return a.registry.Initialize()
}

func SubscribeCommand[T any](cmd command.Commander[T], runnerOpts ...runner.Option) commanddispatcher.Subscription {
	return commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
}

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, fmt.Errorf("gocommand: registry is not configured")
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// Subscriptions groups dispatcher subscriptions so they can be released
// together on shutdown.
type Subscriptions []commanddispatcher.Subscription

func (s Subscriptions) Unsubscribe() {
	for _, subscription := range s {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
}

// RegisterActivationCommands registers and subscribes the issue, retry and
// payment commands against issuer.
func RegisterActivationCommands(
	adapter *RegistryAdapter,
	issuer core.ActivationIssuer,
	runnerOpts ...runner.Option,
) (Subscriptions, error) {
	if issuer == nil {
		return nil, fmt.Errorf("gocommand: activation issuer is required")
	}
	var subs Subscriptions
	issueSub, err := RegisterAndSubscribe[activationcommand.IssueActivationMessage](
		adapter, activationcommand.NewIssueActivationCommand(issuer), runnerOpts...)
	if err != nil {
		return nil, err
	}
	subs = append(subs, issueSub)

	retrySub, err := RegisterAndSubscribe[activationcommand.RetryNotificationMessage](
		adapter, activationcommand.NewRetryNotificationCommand(issuer), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	subs = append(subs, retrySub)

	paymentSub, err := RegisterAndSubscribe[activationcommand.PaymentSucceededMessage](
		adapter, activationcommand.NewPaymentSucceededCommand(issuer), runnerOpts...)
	if err != nil {
		subs.Unsubscribe()
		return nil, err
	}
	return append(subs, paymentSub), nil
}

// DispatchRetryNotification sends a RetryNotificationMessage through the
// dispatcher and returns the outcome the command stored.
func DispatchRetryNotification(ctx context.Context, sessionID string) (core.ActivationOutcome, bool, error) {
	collector := command.NewResult[core.ActivationOutcome]()
	ctx = command.ContextWithResult(ctx, collector)
	msg := activationcommand.RetryNotificationMessage{SessionID: strings.TrimSpace(sessionID)}
	if err := ValidateMessageContract(msg); err != nil {
		return core.ActivationOutcome{}, false, err
	}
	if err := Dispatch(ctx, msg); err != nil {
		return core.ActivationOutcome{}, false, err
	}
	outcome, ok := collector.Load()
	return outcome, ok, nil
}
