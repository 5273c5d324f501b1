package activation

import (
	"fmt"

	activationcommand "github.com/goliatone/go-checkout-activation/command"
	"github.com/goliatone/go-checkout-activation/core"
	activationquery "github.com/goliatone/go-checkout-activation/query"
)

type Commands struct {
	IssueActivation   *activationcommand.IssueActivationCommand
	RetryNotification *activationcommand.RetryNotificationCommand
	PaymentSucceeded  *activationcommand.PaymentSucceededCommand
}

type Queries struct {
	GetActivation            *activationquery.GetActivationQuery
	ListPendingNotifications *activationquery.ListPendingNotificationsQuery
}

type Facade struct {
	service  core.ActivationIssuer
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	activationReader activationquery.ActivationReader
	pendingReader    core.PendingNotificationReader
}

func WithActivationReader(reader activationquery.ActivationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.activationReader = reader
	}
}

func WithPendingNotificationReader(reader core.PendingNotificationReader) FacadeOption {
	return func(options *facadeOptions) {
		options.pendingReader = reader
	}
}

// NewFacade wires the command and query handlers. Readers default to the
// activation store the service was built with.
func NewFacade(service core.ActivationIssuer, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("activation: issuer is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	store := resolveActivationStore(service)
	if cfg.activationReader == nil && store != nil {
		cfg.activationReader = store
	}
	if cfg.pendingReader == nil {
		if reader, ok := store.(core.PendingNotificationReader); ok {
			cfg.pendingReader = reader
		}
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		IssueActivation:   activationcommand.NewIssueActivationCommand(service),
		RetryNotification: activationcommand.NewRetryNotificationCommand(service),
		PaymentSucceeded:  activationcommand.NewPaymentSucceededCommand(service),
	}
	facade.queries = Queries{
		GetActivation:            activationquery.NewGetActivationQuery(cfg.activationReader),
		ListPendingNotifications: activationquery.NewListPendingNotificationsQuery(cfg.pendingReader),
	}
	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() core.ActivationIssuer {
	if f == nil {
		return nil
	}
	return f.service
}

func resolveActivationStore(service core.ActivationIssuer) core.ActivationStore {
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	return provider.Dependencies().ActivationStore
}
