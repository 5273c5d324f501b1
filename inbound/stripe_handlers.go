package inbound

import (
	"context"
	"net/http"

	"github.com/goliatone/go-checkout-activation/command"
	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/webhooks"
	gocmd "github.com/goliatone/go-command"
)

// CheckoutCompletedHandler turns a completed checkout into an activation by
// executing the issue command.
type CheckoutCompletedHandler struct {
	Command gocmd.Commander[command.IssueActivationMessage]
}

func NewCheckoutCompletedHandler(issuer core.ActivationIssuer) *CheckoutCompletedHandler {
	return &CheckoutCompletedHandler{Command: command.NewIssueActivationCommand(issuer)}
}

func (h *CheckoutCompletedHandler) EventType() string {
	return core.EventCheckoutSessionCompleted
}

func (h *CheckoutCompletedHandler) Handle(ctx context.Context, event core.VerifiedEvent) (core.InboundResult, error) {
	if h == nil || h.Command == nil {
		return core.InboundResult{}, inboundInternal("inbound: issue activation command is required", nil)
	}
	session, err := webhooks.DecodeCheckoutSession(event)
	if err != nil {
		return core.InboundResult{}, err
	}
	collector := gocmd.NewResult[core.ActivationOutcome]()
	execCtx := gocmd.ContextWithResult(ctx, collector)
	if err := h.Command.Execute(execCtx, command.IssueActivationMessage{
		Request: core.IssueActivationRequest{Session: session},
	}); err != nil {
		return core.InboundResult{}, err
	}
	metadata := map[string]any{"session_id": session.ID}
	if outcome, ok := collector.Load(); ok {
		metadata["outcome"] = string(outcome.Status)
		metadata["notified"] = outcome.Notified
		if outcome.Activation != nil {
			metadata["tier"] = string(outcome.Activation.Tier)
		}
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   metadata,
	}, nil
}

type PaymentSucceededHandler struct {
	Command gocmd.Commander[command.PaymentSucceededMessage]
}

func NewPaymentSucceededHandler(issuer core.ActivationIssuer) *PaymentSucceededHandler {
	return &PaymentSucceededHandler{Command: command.NewPaymentSucceededCommand(issuer)}
}

func (h *PaymentSucceededHandler) EventType() string {
	return core.EventPaymentIntentSucceeded
}

func (h *PaymentSucceededHandler) Handle(ctx context.Context, event core.VerifiedEvent) (core.InboundResult, error) {
	if h == nil || h.Command == nil {
		return core.InboundResult{}, inboundInternal("inbound: payment succeeded command is required", nil)
	}
	intent, err := webhooks.DecodePaymentIntent(event)
	if err != nil {
		return core.InboundResult{}, err
	}
	if intent.ID == "" {
		intent.ID = event.ID
	}
	if err := h.Command.Execute(ctx, command.PaymentSucceededMessage{Intent: intent}); err != nil {
		return core.InboundResult{}, err
	}
	return core.InboundResult{
		Accepted:   true,
		StatusCode: http.StatusOK,
		Metadata:   map[string]any{"payment_intent_id": intent.ID},
	}, nil
}

// RegisterStripeHandlers registers the checkout and payment handlers.
func RegisterStripeHandlers(dispatcher *Dispatcher, issuer core.ActivationIssuer) error {
	if dispatcher == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if issuer == nil {
		return inboundInternal("inbound: activation issuer is required", nil)
	}
	if err := dispatcher.Register(NewCheckoutCompletedHandler(issuer)); err != nil {
		return err
	}
	return dispatcher.Register(NewPaymentSucceededHandler(issuer))
}

var (
	_ core.EventHandler = (*CheckoutCompletedHandler)(nil)
	_ core.EventHandler = (*PaymentSucceededHandler)(nil)
)
