package inbound

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/goliatone/go-checkout-activation/webhooks"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	// DefaultKeyTTL covers the processor's redelivery window.
	DefaultKeyTTL = 72 * time.Hour
	// DefaultClaimLease bounds how long a crashed delivery blocks redelivery.
	DefaultClaimLease = 30 * time.Second

	dispatchStatusAccepted = "accepted"
	dispatchStatusRejected = "rejected"
	dispatchStatusIgnored  = "ignored"
	dispatchStatusDeduped  = "deduped"
	dispatchStatusFailed   = "failed"
)

// Dispatcher verifies a raw delivery, decodes it and routes the event to the
// handler registered for its type. Only events with a registered handler take
// an idempotency claim. ClaimLease bounds an in-flight claim; KeyTTL is how
// long a completed event id stays claimed.
type Dispatcher struct {
	ProviderID string
	Verifier   webhooks.Verifier
	Decoder    webhooks.EventDecoder
	Store      core.IdempotencyClaimStore
	ClaimLease time.Duration
	KeyTTL     time.Duration
	Logger     core.Logger
	Metrics    core.MetricsRecorder

	mu       sync.RWMutex
	handlers map[string]core.EventHandler
}

func NewDispatcher(verifier webhooks.Verifier, store core.IdempotencyClaimStore) *Dispatcher {
	if store == nil {
		store = NewInMemoryClaimStore()
	}
	return &Dispatcher{
		ProviderID: core.ProviderStripe,
		Verifier:   verifier,
		Decoder:    webhooks.DecodeEvent,
		Store:      store,
		ClaimLease: DefaultClaimLease,
		KeyTTL:     DefaultKeyTTL,
		Logger:     glog.Nop(),
		Metrics:    core.NopMetricsRecorder{},
		handlers:   map[string]core.EventHandler{},
	}
}

func NewDispatcherFromTemplate(template webhooks.ProviderWebhookTemplate, store core.IdempotencyClaimStore) *Dispatcher {
	dispatcher := NewDispatcher(template.Verifier, store)
	if providerID := strings.TrimSpace(template.ProviderID); providerID != "" {
		dispatcher.ProviderID = providerID
	}
	if template.Decoder != nil {
		dispatcher.Decoder = template.Decoder
	}
	return dispatcher
}

func (d *Dispatcher) Register(handler core.EventHandler) error {
	if d == nil {
		return inboundInternal("inbound: dispatcher is nil", nil)
	}
	if handler == nil {
		return inboundBadInput("inbound: handler is nil", nil)
	}
	eventType := normalizeEventType(handler.EventType())
	if eventType == "" {
		return inboundBadInput("inbound: handler event type is required", nil)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[string]core.EventHandler{}
	}
	if _, exists := d.handlers[eventType]; exists {
		return inboundError(
			fmt.Sprintf("inbound: handler already registered for event type %q", eventType),
			goerrors.CategoryConflict,
			http.StatusConflict,
			core.ErrorConflict,
			map[string]any{"event_type": eventType},
		)
	}
	d.handlers[eventType] = handler
	return nil
}

func (d *Dispatcher) RegisteredTypes() []string {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	types := make([]string, 0, len(d.handlers))
	for eventType := range d.handlers {
		types = append(types, eventType)
	}
	sort.Strings(types)
	return types
}

// Dispatch never acts on an event whose signature failed. Verification and
// decode errors are returned as-is so their 400 status survives.
func (d *Dispatcher) Dispatch(ctx context.Context, req core.InboundRequest) (core.InboundResult, error) {
	if d == nil {
		return core.InboundResult{}, inboundInternal("inbound: dispatcher is nil", nil)
	}
	providerID := strings.TrimSpace(req.ProviderID)
	if providerID == "" {
		providerID = d.providerID()
	}
	req.ProviderID = providerID
	if d.Verifier == nil {
		return core.InboundResult{}, inboundInternal(
			"inbound: verifier is required",
			map[string]any{"provider_id": providerID},
		)
	}

	if err := d.Verifier.Verify(ctx, req); err != nil {
		return d.reject(ctx, providerID, "inbound: request verification failed", err)
	}
	event, err := d.decoder()(req.Body)
	if err != nil {
		return d.reject(ctx, providerID, "inbound: event decode failed", err)
	}

	fields := map[string]any{
		"provider_id": providerID,
		"event_id":    event.ID,
		"event_type":  event.Type,
	}
	handler := d.handlerFor(event.Type)
	if handler == nil {
		d.log(ctx, "debug", "inbound: ignoring unhandled event type", fields)
		d.count(ctx, providerID, event.Type, dispatchStatusIgnored)
		return core.InboundResult{
			Accepted:   true,
			StatusCode: http.StatusOK,
			Metadata:   withFlag(fields, "ignored"),
		}, nil
	}

	claimID := ""
	if d.Store != nil {
		var accepted bool
		claimID, accepted, err = d.Store.Claim(ctx, providerID+":"+event.ID, d.claimLease())
		if err != nil {
			d.count(ctx, providerID, event.Type, dispatchStatusFailed)
			return core.InboundResult{}, inboundWrapError(
				err,
				goerrors.CategoryOperation,
				"inbound: idempotency claim failed",
				http.StatusInternalServerError,
				core.ErrorInternal,
				fields,
			)
		}
		if !accepted {
			d.log(ctx, "info", "inbound: duplicate delivery skipped", fields)
			d.count(ctx, providerID, event.Type, dispatchStatusDeduped)
			return core.InboundResult{
				Accepted:   true,
				StatusCode: http.StatusOK,
				Metadata:   withFlag(fields, "deduped"),
			}, nil
		}
	}

	result, err := invoke(ctx, handler, event)
	if err != nil && webhooks.IsVerificationError(err) {
		// a payload the handler cannot read will not improve on redelivery
		d.log(ctx, "warn", "inbound: handler rejected payload", mergeFields(fields, map[string]any{
			"text_code": textCode(err),
			"error":     err.Error(),
		}))
		d.count(ctx, providerID, event.Type, dispatchStatusRejected)
		if completeErr := d.complete(ctx, claimID, fields); completeErr != nil {
			return core.InboundResult{}, errors.Join(err, completeErr)
		}
		return core.InboundResult{
			Accepted:   false,
			StatusCode: core.StatusCode(err),
			Metadata:   withFlag(fields, "rejected"),
		}, err
	}
	if err != nil {
		handlerErr := handlerFailed(err, fields)
		d.log(ctx, "error", "inbound: handler failed", mergeFields(fields, map[string]any{
			"text_code": core.ErrorHandlerFailed,
			"error":     err.Error(),
		}))
		d.count(ctx, providerID, event.Type, dispatchStatusFailed)
		return core.InboundResult{}, d.failClaim(ctx, claimID, err, handlerErr, fields)
	}
	if !result.Accepted || result.StatusCode >= http.StatusInternalServerError {
		retryErr := inboundError(
			fmt.Sprintf("inbound: handler returned retryable status %d", result.StatusCode),
			goerrors.CategoryOperation,
			http.StatusInternalServerError,
			core.ErrorHandlerFailed,
			mergeFields(fields, map[string]any{"status_code": result.StatusCode}),
		)
		d.count(ctx, providerID, event.Type, dispatchStatusFailed)
		return result, d.failClaim(ctx, claimID, retryErr, retryErr, fields)
	}
	if err := d.complete(ctx, claimID, fields); err != nil {
		return core.InboundResult{}, err
	}
	if result.StatusCode == 0 {
		result.StatusCode = http.StatusOK
	}
	result.Metadata = mergeFields(result.Metadata, fields)
	d.count(ctx, providerID, event.Type, dispatchStatusAccepted)
	return result, nil
}

func (d *Dispatcher) reject(ctx context.Context, providerID string, message string, err error) (core.InboundResult, error) {
	status := core.StatusCode(err)
	fields := map[string]any{
		"provider_id": providerID,
		"error":       err.Error(),
	}
	if code := textCode(err); code != "" {
		fields["text_code"] = code
	}
	level := "warn"
	if status >= http.StatusInternalServerError {
		level = "error"
	}
	d.log(ctx, level, message, fields)
	d.count(ctx, providerID, "", dispatchStatusRejected)
	return core.InboundResult{
		Accepted:   false,
		StatusCode: status,
		Metadata: map[string]any{
			"provider_id": providerID,
			"rejected":    true,
		},
	}, err
}

func (d *Dispatcher) complete(ctx context.Context, claimID string, fields map[string]any) error {
	if d.Store == nil || claimID == "" {
		return nil
	}
	if err := d.Store.Complete(ctx, claimID, d.keyTTL()); err != nil {
		return inboundWrapError(
			err,
			goerrors.CategoryOperation,
			"inbound: complete idempotency claim",
			http.StatusInternalServerError,
			core.ErrorInternal,
			mergeFields(fields, map[string]any{"claim_id": claimID}),
		)
	}
	return nil
}

func (d *Dispatcher) failClaim(ctx context.Context, claimID string, cause error, returned error, fields map[string]any) error {
	if d.Store == nil || claimID == "" {
		return returned
	}
	if failErr := d.Store.Fail(ctx, claimID, cause, time.Time{}); failErr != nil {
		return errors.Join(
			returned,
			inboundWrapError(
				failErr,
				goerrors.CategoryOperation,
				"inbound: mark idempotency claim failed",
				http.StatusInternalServerError,
				core.ErrorInternal,
				mergeFields(fields, map[string]any{"claim_id": claimID}),
			),
		)
	}
	return returned
}

// invoke turns a handler panic into an error.
func invoke(ctx context.Context, handler core.EventHandler, event core.VerifiedEvent) (result core.InboundResult, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			result = core.InboundResult{}
			err = fmt.Errorf("inbound: handler panic: %v", recovered)
		}
	}()
	return handler.Handle(ctx, event)
}

func (d *Dispatcher) log(ctx context.Context, level string, message string, fields map[string]any) {
	core.LogWithLevel(ctx, d.Logger, level, message, fields)
}

func (d *Dispatcher) count(ctx context.Context, providerID string, eventType string, status string) {
	if d.Metrics == nil {
		return
	}
	tags := map[string]string{
		"provider_id": providerID,
		"status":      status,
	}
	if eventType != "" {
		tags["event_type"] = eventType
	}
	d.Metrics.IncCounter(ctx, core.MetricDispatchPrefix+".total", 1, tags)
}

func (d *Dispatcher) providerID() string {
	if d != nil && strings.TrimSpace(d.ProviderID) != "" {
		return strings.TrimSpace(d.ProviderID)
	}
	return core.ProviderStripe
}

func (d *Dispatcher) decoder() webhooks.EventDecoder {
	if d != nil && d.Decoder != nil {
		return d.Decoder
	}
	return webhooks.DecodeEvent
}

func (d *Dispatcher) claimLease() time.Duration {
	if d != nil && d.ClaimLease > 0 {
		return d.ClaimLease
	}
	return DefaultClaimLease
}

func (d *Dispatcher) keyTTL() time.Duration {
	if d != nil && d.KeyTTL > 0 {
		return d.KeyTTL
	}
	return DefaultKeyTTL
}

func (d *Dispatcher) handlerFor(eventType string) core.EventHandler {
	if d == nil {
		return nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[normalizeEventType(eventType)]
}

func textCode(err error) string {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

func normalizeEventType(eventType string) string {
	return strings.TrimSpace(strings.ToLower(eventType))
}

func withFlag(fields map[string]any, flag string) map[string]any {
	out := mergeFields(nil, fields)
	out[flag] = true
	return out
}

func mergeFields(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		out[key] = value
	}
	return out
}
