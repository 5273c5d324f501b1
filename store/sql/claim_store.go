package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	claimStatusProcessing = "processing"
	claimStatusRetryReady = "retry_ready"
	claimStatusComplete   = "complete"

	// DefaultClaimLease bounds an in-flight claim when Claim gets no lease.
	DefaultClaimLease = 30 * time.Second
	// DefaultKeyTTL keeps a completed key when Complete gets no TTL.
	DefaultKeyTTL = 72 * time.Hour
)

// ClaimStore is the durable idempotency ledger behind webhook dispatch. Every
// transition is a compare-and-set on claim_id so concurrent deliveries of the
// same event cannot both win.
type ClaimStore struct {
	db    *bun.DB
	Now   func() time.Time
	NewID func() string
}

func NewClaimStore(db *bun.DB) (*ClaimStore, error) {
	if db == nil {
		return nil, storeNotConfigured("bun db")
	}
	return &ClaimStore{
		db: db,
		Now: func() time.Time {
			return time.Now().UTC()
		},
		NewID: uuid.NewString,
	}, nil
}

func (s *ClaimStore) Claim(ctx context.Context, key string, lease time.Duration) (string, bool, error) {
	if s == nil || s.db == nil {
		return "", false, storeNotConfigured("claim store")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return "", false, storeBadInput("sqlstore: idempotency key is required", nil)
	}
	if lease <= 0 {
		lease = DefaultClaimLease
	}
	now := s.now()
	leaseExpiresAt := now.Add(lease)
	claimID := s.nextID()

	record := &claimRecord{
		ID:             uuid.NewString(),
		IdempotencyKey: key,
		ClaimID:        claimID,
		Status:         claimStatusProcessing,
		Attempts:       1,
		KeyTTLSeconds:  int64(lease / time.Second),
		LeaseExpiresAt: &leaseExpiresAt,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err == nil {
		return claimID, true, nil
	} else if !isUniqueViolation(err) {
		return "", false, storeWrap(err, "sqlstore: insert claim", map[string]any{"idempotency_key": key})
	}

	existing := &claimRecord{}
	err := s.db.NewSelect().
		Model(existing).
		Where("?TableAlias.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// row vanished between insert and select; the caller retries
			return "", false, nil
		}
		return "", false, storeWrap(err, "sqlstore: load claim", map[string]any{"idempotency_key": key})
	}
	if !claimReclaimable(existing, now) {
		return "", false, nil
	}

	result, err := s.db.NewUpdate().
		Model((*claimRecord)(nil)).
		Set("claim_id = ?", claimID).
		Set("status = ?", claimStatusProcessing).
		Set("attempts = ?", existing.Attempts+1).
		Set("key_ttl_seconds = ?", int64(lease/time.Second)).
		Set("lease_expires_at = ?", leaseExpiresAt).
		Set("retry_at = NULL").
		Set("updated_at = ?", now).
		Where("idempotency_key = ?", key).
		Where("claim_id = ?", existing.ClaimID).
		Exec(ctx)
	if err != nil {
		return "", false, storeWrap(err, "sqlstore: reclaim", map[string]any{"idempotency_key": key})
	}
	if !rowsChanged(result) {
		return "", false, nil
	}
	return claimID, true, nil
}

// Complete keeps the key claimed for keyTTL; key_ttl_seconds then records
// that retention instead of the processing lease.
func (s *ClaimStore) Complete(ctx context.Context, claimID string, keyTTL time.Duration) error {
	if s == nil || s.db == nil {
		return storeNotConfigured("claim store")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storeBadInput("sqlstore: claim id is required", nil)
	}
	if keyTTL <= 0 {
		keyTTL = DefaultKeyTTL
	}
	now := s.now()
	_, err := s.db.NewUpdate().
		Model((*claimRecord)(nil)).
		Set("status = ?", claimStatusComplete).
		Set("key_ttl_seconds = ?", int64(keyTTL/time.Second)).
		Set("lease_expires_at = ?", now.Add(keyTTL)).
		Set("retry_at = NULL").
		Set("last_error = ?", "").
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	if err != nil {
		return storeWrap(err, "sqlstore: complete claim", map[string]any{"claim_id": claimID})
	}
	return nil
}

func (s *ClaimStore) Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error {
	if s == nil || s.db == nil {
		return storeNotConfigured("claim store")
	}
	claimID = strings.TrimSpace(claimID)
	if claimID == "" {
		return storeBadInput("sqlstore: claim id is required", nil)
	}
	now := s.now()
	if retryAt.IsZero() {
		retryAt = now
	}
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	_, err := s.db.NewUpdate().
		Model((*claimRecord)(nil)).
		Set("status = ?", claimStatusRetryReady).
		Set("retry_at = ?", retryAt.UTC()).
		Set("lease_expires_at = NULL").
		Set("last_error = ?", lastError).
		Set("updated_at = ?", now).
		Where("claim_id = ?", claimID).
		Where("status = ?", claimStatusProcessing).
		Exec(ctx)
	if err != nil {
		return storeWrap(err, "sqlstore: fail claim", map[string]any{"claim_id": claimID})
	}
	return nil
}

// Attempts reports how many claims were granted for key.
func (s *ClaimStore) Attempts(ctx context.Context, key string) (int, error) {
	if s == nil || s.db == nil {
		return 0, storeNotConfigured("claim store")
	}
	record := &claimRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.idempotency_key = ?", strings.TrimSpace(key)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, storeWrap(err, "sqlstore: load claim", map[string]any{"idempotency_key": key})
	}
	return record.Attempts, nil
}

// PurgeExpired removes completed claims whose retention window has passed.
func (s *ClaimStore) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, storeNotConfigured("claim store")
	}
	result, err := s.db.NewDelete().
		Model((*claimRecord)(nil)).
		Where("status = ?", claimStatusComplete).
		Where("lease_expires_at <= ?", s.now()).
		Exec(ctx)
	if err != nil {
		return 0, storeWrap(err, "sqlstore: purge claims", nil)
	}
	affected, _ := result.RowsAffected()
	return affected, nil
}

func (s *ClaimStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *ClaimStore) nextID() string {
	if s != nil && s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func claimReclaimable(record *claimRecord, now time.Time) bool {
	switch record.Status {
	case claimStatusComplete, claimStatusProcessing:
		return record.LeaseExpiresAt == nil || !now.Before(record.LeaseExpiresAt.UTC())
	case claimStatusRetryReady:
		return record.RetryAt == nil || !now.Before(record.RetryAt.UTC())
	default:
		return false
	}
}

func rowsChanged(result sql.Result) bool {
	if result == nil {
		return false
	}
	affected, err := result.RowsAffected()
	return err == nil && affected > 0
}
