// Package inbound routes verified processor deliveries to event handlers.
//
// Handled events take a claim/complete/fail idempotency claim keyed by the
// provider event id, so a redelivered event is acknowledged without a second
// side effect and a failed one stays retryable.
package inbound
