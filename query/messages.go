package query

import (
	"strings"
	"time"
)

const (
	TypeGetActivation            = "activation.query.get"
	TypeListPendingNotifications = "activation.query.notifications.pending"

	maxPendingLimit = 500
)

type GetActivationMessage struct {
	SessionID string
}

func (GetActivationMessage) Type() string { return TypeGetActivation }

func (m GetActivationMessage) Validate() error {
	if strings.TrimSpace(m.SessionID) == "" {
		return queryValidationError("session_id", "checkout session id is required")
	}
	return nil
}

// ListPendingNotificationsMessage selects activations created before Before
// whose email is still pending or failed. A zero Before means no cutoff.
type ListPendingNotificationsMessage struct {
	Before time.Time
	Limit  int
}

func (ListPendingNotificationsMessage) Type() string { return TypeListPendingNotifications }

func (m ListPendingNotificationsMessage) Validate() error {
	if m.Limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if m.Limit > maxPendingLimit {
		return queryValidationError("limit", "limit must be <= 500")
	}
	return nil
}
