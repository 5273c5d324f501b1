package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-checkout-activation/core"
)

type ActivationReader interface {
	FindBySession(ctx context.Context, sessionID string) (core.Activation, bool, error)
}

type GetActivationQuery struct {
	reader ActivationReader
}

func NewGetActivationQuery(reader ActivationReader) *GetActivationQuery {
	return &GetActivationQuery{reader: reader}
}

func (q *GetActivationQuery) Query(ctx context.Context, msg GetActivationMessage) (core.Activation, error) {
	if q == nil || q.reader == nil {
		return core.Activation{}, queryDependencyError("query: activation reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.Activation{}, err
	}
	sessionID := strings.TrimSpace(msg.SessionID)
	activation, found, err := q.reader.FindBySession(ctx, sessionID)
	if err != nil {
		return core.Activation{}, err
	}
	if !found {
		return core.Activation{}, queryNotFoundError(sessionID)
	}
	return activation, nil
}

type ListPendingNotificationsQuery struct {
	reader core.PendingNotificationReader
}

func NewListPendingNotificationsQuery(reader core.PendingNotificationReader) *ListPendingNotificationsQuery {
	return &ListPendingNotificationsQuery{reader: reader}
}

func (q *ListPendingNotificationsQuery) Query(
	ctx context.Context,
	msg ListPendingNotificationsMessage,
) ([]core.Activation, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: pending notification reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListUnnotified(ctx, msg.Before, msg.Limit)
}
