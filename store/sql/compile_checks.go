package sqlstore

import "github.com/goliatone/go-checkout-activation/core"

var (
	_ core.IdempotencyClaimStore = (*ClaimStore)(nil)
	_ core.ActivationStore       = (*ActivationStore)(nil)
	_ core.ActivationStore       = (*CachedActivationStore)(nil)
	_ ActivationLookup           = (*ActivationStore)(nil)
	_ ActivationLookup           = (*CachedActivationStore)(nil)

	_ core.PendingNotificationReader = (*ActivationStore)(nil)
	_ core.PendingNotificationReader = (*CachedActivationStore)(nil)
)
