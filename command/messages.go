package command

import (
	"strings"

	"github.com/goliatone/go-checkout-activation/core"
)

const (
	TypeIssueActivation   = "activation.command.issue"
	TypeRetryNotification = "activation.command.notification.retry"
	TypePaymentSucceeded  = "activation.command.payment.succeeded"
)

type IssueActivationMessage struct {
	Request core.IssueActivationRequest
}

func (IssueActivationMessage) Type() string { return TypeIssueActivation }

func (m IssueActivationMessage) Validate() error {
	if strings.TrimSpace(m.Request.Session.ID) == "" {
		return commandValidationError("session.id", "checkout session id is required")
	}
	return nil
}

type RetryNotificationMessage struct {
	SessionID string
}

func (RetryNotificationMessage) Type() string { return TypeRetryNotification }

func (m RetryNotificationMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return commandValidationError("session_id", "checkout session id is required")
	}
	return nil
}

type PaymentSucceededMessage struct {
	Intent core.PaymentIntent
}

func (PaymentSucceededMessage) Type() string { return TypePaymentSucceeded }

func (m PaymentSucceededMessage) Validate() error {
	if strings.TrimSpace(m.Intent.ID) == "" {
		return commandValidationError("intent.id", "payment intent id is required")
	}
	return nil
}
