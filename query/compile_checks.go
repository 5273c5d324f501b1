package query

import (
	"github.com/goliatone/go-checkout-activation/core"
	gocmd "github.com/goliatone/go-command"
)

var (
	_ gocmd.Querier[GetActivationMessage, core.Activation]              = (*GetActivationQuery)(nil)
	_ gocmd.Querier[ListPendingNotificationsMessage, []core.Activation] = (*ListPendingNotificationsQuery)(nil)

	_ ActivationReader = (*core.MemoryActivationStore)(nil)
)
