package core

import (
	"encoding/json"
	"time"
)

const (
	ProviderStripe = "stripe"

	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventPaymentIntentSucceeded   = "payment_intent.succeeded"
)

type PlanTier string

const (
	TierPremium PlanTier = "Premium"
	TierPro     PlanTier = "Pro"
)

type NotificationStatus string

const (
	NotificationPending NotificationStatus = "pending"
	NotificationSent    NotificationStatus = "sent"
	NotificationFailed  NotificationStatus = "failed"
)

type OutcomeStatus string

const (
	OutcomeIssued               OutcomeStatus = "issued"
	OutcomeReissued             OutcomeStatus = "reissued"
	OutcomeAlreadyNotified      OutcomeStatus = "already_notified"
	OutcomeUnrecognizedAmount   OutcomeStatus = "unrecognized_amount"
	OutcomeMissingCustomerEmail OutcomeStatus = "missing_customer_email"
)

type InboundRequest struct {
	ProviderID string
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type InboundResult struct {
	Accepted   bool
	StatusCode int
	Metadata   map[string]any
}

// VerifiedEvent is only constructed from a payload whose signature checked out.
type VerifiedEvent struct {
	ID         string
	Type       string
	Created    time.Time
	Livemode   bool
	APIVersion string
	Object     json.RawMessage
}

type PurchaseSession struct {
	ID            string
	EventID       string
	CustomerEmail string
	CustomerName  string
	AmountTotal   int64
	Currency      string
	PaymentStatus string
	Livemode      bool
}

type PaymentIntent struct {
	ID       string
	Amount   int64
	Currency string
	Livemode bool
}

type Plan struct {
	Tier       PlanTier `koanf:"tier" mapstructure:"tier"`
	Amount     int64    `koanf:"amount" mapstructure:"amount"`
	Currency   string   `koanf:"currency" mapstructure:"currency"`
	CodePrefix string   `koanf:"code_prefix" mapstructure:"code_prefix"`
	AppPath    string   `koanf:"app_path" mapstructure:"app_path"`
	Features   []string `koanf:"features" mapstructure:"features"`
	Test       bool     `koanf:"test" mapstructure:"test"`
}

type Activation struct {
	ID                 string
	SessionID          string
	EventID            string
	CustomerEmail      string
	CustomerName       string
	Tier               PlanTier
	Code               string
	Amount             int64
	Currency           string
	NotificationStatus NotificationStatus
	NotifiedAt         *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type ActivationOutcome struct {
	Status     OutcomeStatus
	SessionID  string
	Activation *Activation
	Notified   bool
}

// ActivationNotice carries what the customer email needs.
type ActivationNotice struct {
	Recipient string
	Name      string
	Plan      Plan
	Code      string
	Amount    int64
	Currency  string
	AppURL    string
}

type IssueActivationRequest struct {
	Session PurchaseSession
}
