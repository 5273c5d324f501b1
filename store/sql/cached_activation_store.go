package sqlstore

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const activationCacheKeyPrefix = "go-checkout-activation::activation::v1"

var errActivationNotCached = errors.New("sqlstore: activation not found")

// ActivationLookup is the base store a CachedActivationStore reads through.
type ActivationLookup interface {
	core.ActivationStore
	FindByID(ctx context.Context, id string) (core.Activation, bool, error)
}

// CachedActivationStore serves FindBySession from a read-through cache.
// Misses are never cached, so a session becomes visible as soon as Create
// commits.
type CachedActivationStore struct {
	base  ActivationLookup
	cache repositorycache.CacheService
}

func NewCachedActivationStore(
	base ActivationLookup,
	cacheService repositorycache.CacheService,
) (*CachedActivationStore, error) {
	if base == nil {
		return nil, storeNotConfigured("base activation store")
	}
	if cacheService == nil {
		return nil, storeNotConfigured("activation cache service")
	}
	return &CachedActivationStore{base: base, cache: cacheService}, nil
}

// ActivationCacheKey returns go-checkout-activation::activation::v1::session::<session_id>
// with the session id URL-path escaped.
func ActivationCacheKey(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", storeBadInput("sqlstore: session id is required", nil)
	}
	return strings.Join([]string{activationCacheKeyPrefix, "session", url.PathEscape(sessionID)}, "::"), nil
}

func (s *CachedActivationStore) Create(ctx context.Context, activation core.Activation) (core.Activation, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Activation{}, false, storeNotConfigured("cached activation store")
	}
	stored, created, err := s.base.Create(ctx, activation)
	if err != nil {
		return core.Activation{}, false, err
	}
	if err := s.invalidate(ctx, stored.SessionID); err != nil {
		return core.Activation{}, false, err
	}
	return stored, created, nil
}

func (s *CachedActivationStore) FindBySession(ctx context.Context, sessionID string) (core.Activation, bool, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Activation{}, false, storeNotConfigured("cached activation store")
	}
	cacheKey, err := ActivationCacheKey(sessionID)
	if err != nil {
		return core.Activation{}, false, nil
	}
	activation, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Activation, error) {
		fetched, found, fetchErr := s.base.FindBySession(ctx, sessionID)
		if fetchErr != nil {
			return core.Activation{}, fetchErr
		}
		if !found {
			return core.Activation{}, errActivationNotCached
		}
		return cloneActivation(fetched), nil
	})
	if err != nil {
		if errors.Is(err, errActivationNotCached) {
			return core.Activation{}, false, nil
		}
		return core.Activation{}, false, err
	}
	return cloneActivation(activation), true, nil
}

func (s *CachedActivationStore) MarkNotification(
	ctx context.Context,
	id string,
	status core.NotificationStatus,
	at time.Time,
) error {
	if s == nil || s.base == nil || s.cache == nil {
		return storeNotConfigured("cached activation store")
	}
	if err := s.base.MarkNotification(ctx, id, status, at); err != nil {
		return err
	}
	current, found, err := s.base.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}
	return s.invalidate(ctx, current.SessionID)
}

func (s *CachedActivationStore) FindByID(ctx context.Context, id string) (core.Activation, bool, error) {
	if s == nil || s.base == nil {
		return core.Activation{}, false, storeNotConfigured("cached activation store")
	}
	return s.base.FindByID(ctx, id)
}

// ListUnnotified always reads from the base store.
func (s *CachedActivationStore) ListUnnotified(ctx context.Context, before time.Time, limit int) ([]core.Activation, error) {
	if s == nil || s.base == nil {
		return nil, storeNotConfigured("cached activation store")
	}
	reader, ok := s.base.(core.PendingNotificationReader)
	if !ok {
		return nil, storeNotConfigured("pending notification reader")
	}
	return reader.ListUnnotified(ctx, before, limit)
}

func (s *CachedActivationStore) invalidate(ctx context.Context, sessionID string) error {
	cacheKey, err := ActivationCacheKey(sessionID)
	if err != nil {
		return nil
	}
	return s.cache.Delete(ctx, cacheKey)
}

func cloneActivation(activation core.Activation) core.Activation {
	cloned := activation
	cloned.NotifiedAt = cloneTimePointer(activation.NotifiedAt)
	return cloned
}
