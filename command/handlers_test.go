package command

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-checkout-activation/core"
	gocmd "github.com/goliatone/go-command"
)

func TestIssueActivationCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.ActivationOutcome{
		Status:    core.OutcomeIssued,
		SessionID: "cs_test_1",
		Activation: &core.Activation{
			SessionID: "cs_test_1",
			Tier:      core.TierPremium,
			Code:      "PREM-ABCDEFGH",
		},
		Notified: true,
	}
	called := false
	svc := stubIssuer{
		issueFn: func(_ context.Context, req core.IssueActivationRequest) (core.ActivationOutcome, error) {
			called = true
			if req.Session.ID != "cs_test_1" {
				t.Fatalf("expected session cs_test_1, got %q", req.Session.ID)
			}
			return expected, nil
		},
	}

	cmd := NewIssueActivationCommand(svc)
	collector := gocmd.NewResult[core.ActivationOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)

	err := cmd.Execute(ctx, IssueActivationMessage{Request: core.IssueActivationRequest{
		Session: core.PurchaseSession{ID: "cs_test_1", AmountTotal: 4900, Currency: "eur"},
	}})
	if err != nil {
		t.Fatalf("execute issue activation: %v", err)
	}
	if !called {
		t.Fatalf("expected issuer invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result.Status != core.OutcomeIssued || result.Activation == nil || result.Activation.Code != "PREM-ABCDEFGH" {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestIssueActivationCommand_ExecuteWithoutCollector(t *testing.T) {
	svc := stubIssuer{
		issueFn: func(context.Context, core.IssueActivationRequest) (core.ActivationOutcome, error) {
			return core.ActivationOutcome{Status: core.OutcomeAlreadyNotified}, nil
		},
	}
	err := NewIssueActivationCommand(svc).Execute(context.Background(), IssueActivationMessage{
		Request: core.IssueActivationRequest{Session: core.PurchaseSession{ID: "cs_test_2"}},
	})
	if err != nil {
		t.Fatalf("execute without collector: %v", err)
	}
}

func TestIssueActivationCommand_PropagatesServiceError(t *testing.T) {
	boom := errors.New("store offline")
	svc := stubIssuer{
		issueFn: func(context.Context, core.IssueActivationRequest) (core.ActivationOutcome, error) {
			return core.ActivationOutcome{}, boom
		},
	}
	collector := gocmd.NewResult[core.ActivationOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewIssueActivationCommand(svc).Execute(ctx, IssueActivationMessage{
		Request: core.IssueActivationRequest{Session: core.PurchaseSession{ID: "cs_test_3"}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected service error, got %v", err)
	}
	if _, ok := collector.Load(); ok {
		t.Fatalf("expected no stored result on failure")
	}
}

func TestIssueActivationCommand_RejectsMissingSession(t *testing.T) {
	called := false
	svc := stubIssuer{
		issueFn: func(context.Context, core.IssueActivationRequest) (core.ActivationOutcome, error) {
			called = true
			return core.ActivationOutcome{}, nil
		},
	}
	err := NewIssueActivationCommand(svc).Execute(context.Background(), IssueActivationMessage{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if called {
		t.Fatalf("expected issuer not to be invoked")
	}
}

func TestRetryNotificationCommand_ExecuteDelegates(t *testing.T) {
	svc := stubIssuer{
		retryFn: func(_ context.Context, sessionID string) (core.ActivationOutcome, error) {
			if sessionID != "cs_test_4" {
				t.Fatalf("unexpected session id %q", sessionID)
			}
			return core.ActivationOutcome{Status: core.OutcomeReissued, SessionID: sessionID, Notified: true}, nil
		},
	}
	collector := gocmd.NewResult[core.ActivationOutcome]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewRetryNotificationCommand(svc).Execute(ctx, RetryNotificationMessage{SessionID: "cs_test_4"}); err != nil {
		t.Fatalf("execute retry notification: %v", err)
	}
	stored, ok := collector.Load()
	if !ok || stored.Status != core.OutcomeReissued {
		t.Fatalf("unexpected retry result: %#v", stored)
	}
}

func TestPaymentSucceededCommand_ExecuteDelegates(t *testing.T) {
	called := false
	svc := stubIssuer{
		paymentFn: func(_ context.Context, intent core.PaymentIntent) error {
			called = true
			if intent.ID != "pi_1" {
				t.Fatalf("unexpected intent id %q", intent.ID)
			}
			return nil
		},
	}
	if err := NewPaymentSucceededCommand(svc).Execute(context.Background(), PaymentSucceededMessage{
		Intent: core.PaymentIntent{ID: "pi_1", Amount: 4900, Currency: "eur"},
	}); err != nil {
		t.Fatalf("execute payment succeeded: %v", err)
	}
	if !called {
		t.Fatalf("expected payment succeeded invocation")
	}
}

type stubIssuer struct {
	issueFn   func(context.Context, core.IssueActivationRequest) (core.ActivationOutcome, error)
	retryFn   func(context.Context, string) (core.ActivationOutcome, error)
	paymentFn func(context.Context, core.PaymentIntent) error
}

func (s stubIssuer) IssueActivation(ctx context.Context, req core.IssueActivationRequest) (core.ActivationOutcome, error) {
	if s.issueFn == nil {
		return core.ActivationOutcome{}, nil
	}
	return s.issueFn(ctx, req)
}

func (s stubIssuer) RetryNotification(ctx context.Context, sessionID string) (core.ActivationOutcome, error) {
	if s.retryFn == nil {
		return core.ActivationOutcome{}, nil
	}
	return s.retryFn(ctx, sessionID)
}

func (s stubIssuer) HandlePaymentSucceeded(ctx context.Context, intent core.PaymentIntent) error {
	if s.paymentFn == nil {
		return nil
	}
	return s.paymentFn(ctx, intent)
}
