package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ActivationStore persists issued codes in activation_codes. The unique
// session_id index is what makes Create safe against concurrent deliveries.
type ActivationStore struct {
	db   *bun.DB
	repo repository.Repository[*activationRecord]
	Now  func() time.Time
}

func NewActivationStore(db *bun.DB) (*ActivationStore, error) {
	if db == nil {
		return nil, storeNotConfigured("bun db")
	}
	repo := repository.NewRepository[*activationRecord](db, activationHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, storeWrap(err, "sqlstore: invalid activation repository wiring", nil)
		}
	}
	return &ActivationStore{db: db, repo: repo}, nil
}

func (s *ActivationStore) Create(ctx context.Context, activation core.Activation) (core.Activation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Activation{}, false, storeNotConfigured("activation store")
	}
	record := activationFromDomain(activation)
	if record.SessionID == "" {
		return core.Activation{}, false, storeBadInput("sqlstore: session id is required", nil)
	}
	if record.Code == "" {
		return core.Activation{}, false, storeBadInput("sqlstore: activation code is required", map[string]any{
			"session_id": record.SessionID,
		})
	}
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := s.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	if _, err := s.db.NewInsert().Model(record).Exec(ctx); err != nil {
		if !isUniqueViolation(err) {
			return core.Activation{}, false, storeWrap(err, "sqlstore: insert activation", map[string]any{
				"session_id": record.SessionID,
			})
		}
		existing, found, findErr := s.FindBySession(ctx, record.SessionID)
		if findErr != nil {
			return core.Activation{}, false, findErr
		}
		if !found {
			// the collision was on the code, not the session
			return core.Activation{}, false, storeConflict("sqlstore: activation code collision", map[string]any{
				"session_id": record.SessionID,
			})
		}
		return existing, false, nil
	}
	return activationToDomain(record), true, nil
}

func (s *ActivationStore) FindBySession(ctx context.Context, sessionID string) (core.Activation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Activation{}, false, storeNotConfigured("activation store")
	}
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return core.Activation{}, false, nil
	}
	return s.findOne(ctx, repository.SelectBy("session_id", "=", sessionID))
}

func (s *ActivationStore) FindByID(ctx context.Context, id string) (core.Activation, bool, error) {
	if s == nil || s.repo == nil {
		return core.Activation{}, false, storeNotConfigured("activation store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Activation{}, false, nil
	}
	return s.findOne(ctx, repository.SelectBy("id", "=", id))
}

func (s *ActivationStore) MarkNotification(
	ctx context.Context,
	id string,
	status core.NotificationStatus,
	at time.Time,
) error {
	if s == nil || s.repo == nil {
		return storeNotConfigured("activation store")
	}
	trimmedID := strings.TrimSpace(id)
	if trimmedID == "" {
		return storeBadInput("sqlstore: activation id is required", nil)
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectBy("id", "=", trimmedID),
		repository.SelectPaginate(1, 0),
	)
	if err != nil {
		return storeWrap(err, "sqlstore: load activation", map[string]any{"activation_id": trimmedID})
	}
	if len(records) == 0 {
		return storeNotFound("sqlstore: activation not found", map[string]any{"activation_id": trimmedID})
	}
	current := records[0]
	current.NotificationStatus = string(status)
	if status == core.NotificationSent {
		notifiedAt := at.UTC()
		current.NotifiedAt = &notifiedAt
	}
	current.UpdatedAt = s.now()

	if _, err := s.repo.Update(ctx, current, repository.UpdateByID(trimmedID)); err != nil {
		return storeWrap(err, "sqlstore: update activation notification", map[string]any{"activation_id": trimmedID})
	}
	return nil
}

// ListUnnotified returns activations whose email never went out, oldest
// first, created before the cutoff.
func (s *ActivationStore) ListUnnotified(ctx context.Context, before time.Time, limit int) ([]core.Activation, error) {
	if s == nil || s.repo == nil {
		return nil, storeNotConfigured("activation store")
	}
	if limit <= 0 {
		limit = 50
	}
	records, _, err := s.repo.List(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.notification_status IN (?)", bun.In([]string{
				string(core.NotificationPending),
				string(core.NotificationFailed),
			}))
		}),
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			if before.IsZero() {
				return q
			}
			return q.Where("?TableAlias.created_at < ?", before.UTC())
		}),
		repository.OrderBy("created_at ASC"),
		repository.SelectPaginate(limit, 0),
	)
	if err != nil {
		return nil, storeWrap(err, "sqlstore: list unnotified activations", nil)
	}
	out := make([]core.Activation, 0, len(records))
	for _, record := range records {
		out = append(out, activationToDomain(record))
	}
	return out, nil
}

func (s *ActivationStore) findOne(ctx context.Context, criteria ...repository.SelectCriteria) (core.Activation, bool, error) {
	criteria = append(criteria, repository.SelectPaginate(1, 0))
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return core.Activation{}, false, storeWrap(err, "sqlstore: load activation", nil)
	}
	if len(records) == 0 {
		return core.Activation{}, false, nil
	}
	return activationToDomain(records[0]), true, nil
}

func (s *ActivationStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}
