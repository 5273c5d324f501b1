package command

import (
	"context"

	"github.com/goliatone/go-checkout-activation/core"
	gocmd "github.com/goliatone/go-command"
)

type IssueActivationCommand struct {
	service core.ActivationIssuer
}

func NewIssueActivationCommand(service core.ActivationIssuer) *IssueActivationCommand {
	return &IssueActivationCommand{service: service}
}

// Execute issues (or resumes) the activation for the session. The outcome is
// stored in the result collector carried by ctx, when one is present.
func (c *IssueActivationCommand) Execute(ctx context.Context, msg IssueActivationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: activation issuer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.IssueActivation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryNotificationCommand struct {
	service core.ActivationIssuer
}

func NewRetryNotificationCommand(service core.ActivationIssuer) *RetryNotificationCommand {
	return &RetryNotificationCommand{service: service}
}

func (c *RetryNotificationCommand) Execute(ctx context.Context, msg RetryNotificationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: activation issuer is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.RetryNotification(ctx, msg.SessionID)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PaymentSucceededCommand struct {
	service core.ActivationIssuer
}

func NewPaymentSucceededCommand(service core.ActivationIssuer) *PaymentSucceededCommand {
	return &PaymentSucceededCommand{service: service}
}

func (c *PaymentSucceededCommand) Execute(ctx context.Context, msg PaymentSucceededMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: activation issuer is required")
	}
	return c.service.HandlePaymentSucceeded(ctx, msg.Intent)
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
