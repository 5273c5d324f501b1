package core

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// MemoryActivationStore keeps activations in process memory. Suitable for
// tests and for the memory database driver.
type MemoryActivationStore struct {
	mu        sync.Mutex
	byID      map[string]Activation
	bySession map[string]string
	Now       func() time.Time
}

func NewMemoryActivationStore() *MemoryActivationStore {
	return &MemoryActivationStore{
		byID:      map[string]Activation{},
		bySession: map[string]string{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemoryActivationStore) Create(_ context.Context, activation Activation) (Activation, bool, error) {
	if s == nil {
		return Activation{}, false, internalError("core: activation store is not configured", nil)
	}
	activation.SessionID = strings.TrimSpace(activation.SessionID)
	if activation.SessionID == "" {
		return Activation{}, false, badInput("core: activation session id is required", nil)
	}
	if strings.TrimSpace(activation.Code) == "" {
		return Activation{}, false, badInput("core: activation code is required", nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.bySession[activation.SessionID]; ok {
		return s.byID[id], false, nil
	}
	now := s.now()
	if strings.TrimSpace(activation.ID) == "" {
		activation.ID = uuid.NewString()
	}
	if activation.NotificationStatus == "" {
		activation.NotificationStatus = NotificationPending
	}
	if activation.CreatedAt.IsZero() {
		activation.CreatedAt = now
	}
	activation.UpdatedAt = now
	s.byID[activation.ID] = activation
	s.bySession[activation.SessionID] = activation.ID
	return activation, true, nil
}

func (s *MemoryActivationStore) FindBySession(_ context.Context, sessionID string) (Activation, bool, error) {
	if s == nil {
		return Activation{}, false, internalError("core: activation store is not configured", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.bySession[strings.TrimSpace(sessionID)]
	if !ok {
		return Activation{}, false, nil
	}
	return s.byID[id], true, nil
}

func (s *MemoryActivationStore) MarkNotification(
	_ context.Context,
	id string,
	status NotificationStatus,
	at time.Time,
) error {
	if s == nil {
		return internalError("core: activation store is not configured", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	activation, ok := s.byID[strings.TrimSpace(id)]
	if !ok {
		return NewError(
			"core: activation not found",
			goerrors.CategoryNotFound,
			http.StatusNotFound,
			ErrorNotFound,
			map[string]any{"activation_id": id},
		)
	}
	activation.NotificationStatus = status
	if status == NotificationSent {
		notifiedAt := at.UTC()
		activation.NotifiedAt = &notifiedAt
	}
	activation.UpdatedAt = s.now()
	s.byID[activation.ID] = activation
	return nil
}

func (s *MemoryActivationStore) ListUnnotified(_ context.Context, before time.Time, limit int) ([]Activation, error) {
	if s == nil {
		return nil, internalError("core: activation store is not configured", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Activation{}
	for _, activation := range s.byID {
		if activation.NotificationStatus == NotificationSent {
			continue
		}
		if !before.IsZero() && !activation.CreatedAt.Before(before) {
			continue
		}
		out = append(out, activation)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len returns the number of stored activations.
func (s *MemoryActivationStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

func (s *MemoryActivationStore) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

var _ ActivationStore = (*MemoryActivationStore)(nil)
