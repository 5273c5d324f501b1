package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/uptrace/bun"
)

type claimRecord struct {
	bun.BaseModel `bun:"table:activation_event_claims,alias:aec"`

	ID             string     `bun:"id,pk"`
	IdempotencyKey string     `bun:"idempotency_key,notnull"`
	ClaimID        string     `bun:"claim_id,notnull"`
	Status         string     `bun:"status,notnull"`
	Attempts       int        `bun:"attempts,notnull"`
	KeyTTLSeconds  int64      `bun:"key_ttl_seconds,notnull"`
	LeaseExpiresAt *time.Time `bun:"lease_expires_at,nullzero"`
	RetryAt        *time.Time `bun:"retry_at,nullzero"`
	LastError      string     `bun:"last_error,notnull"`
	CreatedAt      time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt      time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type activationRecord struct {
	bun.BaseModel `bun:"table:activation_codes,alias:ac"`

	ID                 string     `bun:"id,pk"`
	SessionID          string     `bun:"session_id,notnull"`
	EventID            string     `bun:"event_id,notnull"`
	CustomerEmail      string     `bun:"customer_email,notnull"`
	CustomerName       string     `bun:"customer_name,notnull"`
	Tier               string     `bun:"tier,notnull"`
	Code               string     `bun:"code,notnull"`
	Amount             int64      `bun:"amount,notnull"`
	Currency           string     `bun:"currency,notnull"`
	NotificationStatus string     `bun:"notification_status,notnull"`
	NotifiedAt         *time.Time `bun:"notified_at,nullzero"`
	CreatedAt          time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt          time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

func activationToDomain(record *activationRecord) core.Activation {
	if record == nil {
		return core.Activation{}
	}
	return core.Activation{
		ID:                 record.ID,
		SessionID:          record.SessionID,
		EventID:            record.EventID,
		CustomerEmail:      record.CustomerEmail,
		CustomerName:       record.CustomerName,
		Tier:               core.PlanTier(record.Tier),
		Code:               record.Code,
		Amount:             record.Amount,
		Currency:           record.Currency,
		NotificationStatus: core.NotificationStatus(record.NotificationStatus),
		NotifiedAt:         cloneTimePointer(record.NotifiedAt),
		CreatedAt:          record.CreatedAt.UTC(),
		UpdatedAt:          record.UpdatedAt.UTC(),
	}
}

func activationFromDomain(activation core.Activation) *activationRecord {
	status := strings.TrimSpace(string(activation.NotificationStatus))
	if status == "" {
		status = string(core.NotificationPending)
	}
	return &activationRecord{
		ID:                 strings.TrimSpace(activation.ID),
		SessionID:          strings.TrimSpace(activation.SessionID),
		EventID:            strings.TrimSpace(activation.EventID),
		CustomerEmail:      strings.TrimSpace(activation.CustomerEmail),
		CustomerName:       strings.TrimSpace(activation.CustomerName),
		Tier:               strings.TrimSpace(string(activation.Tier)),
		Code:               strings.TrimSpace(activation.Code),
		Amount:             activation.Amount,
		Currency:           strings.ToLower(strings.TrimSpace(activation.Currency)),
		NotificationStatus: status,
		NotifiedAt:         cloneTimePointer(activation.NotifiedAt),
		CreatedAt:          activation.CreatedAt.UTC(),
		UpdatedAt:          activation.UpdatedAt.UTC(),
	}
}

func cloneTimePointer(input *time.Time) *time.Time {
	if input == nil {
		return nil
	}
	value := input.UTC()
	return &value
}
