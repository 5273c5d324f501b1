package webhooks

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
	"github.com/stripe/stripe-go/v74"
)

// DecodeEvent parses a verified payload into the processor event envelope.
func DecodeEvent(payload []byte) (core.VerifiedEvent, error) {
	var event stripe.Event
	if err := json.Unmarshal(payload, &event); err != nil {
		return core.VerifiedEvent{}, malformedPayloadError(err, "decode event payload")
	}
	eventType := strings.TrimSpace(string(event.Type))
	if strings.TrimSpace(event.ID) == "" || eventType == "" {
		return core.VerifiedEvent{}, malformedPayloadError(errors.New("event id and type are required"), "decode event payload")
	}
	var object json.RawMessage
	if event.Data != nil {
		object = append(json.RawMessage(nil), event.Data.Raw...)
	}
	verified := core.VerifiedEvent{
		ID:         strings.TrimSpace(event.ID),
		Type:       eventType,
		Livemode:   event.Livemode,
		APIVersion: event.APIVersion,
		Object:     object,
	}
	if event.Created > 0 {
		verified.Created = time.Unix(event.Created, 0).UTC()
	}
	return verified, nil
}

// DecodeCheckoutSession reads the purchase from a checkout.session.completed
// event. The email comes from customer_details, falling back to
// customer_email for sessions created with a prefilled address.
func DecodeCheckoutSession(event core.VerifiedEvent) (core.PurchaseSession, error) {
	if len(event.Object) == 0 {
		return core.PurchaseSession{}, malformedPayloadError(errors.New("event has no data object"), "decode checkout session")
	}
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Object, &session); err != nil {
		return core.PurchaseSession{}, malformedPayloadError(err, "decode checkout session")
	}
	if strings.TrimSpace(session.ID) == "" {
		return core.PurchaseSession{}, malformedPayloadError(errors.New("checkout session id is required"), "decode checkout session")
	}
	purchase := core.PurchaseSession{
		ID:            strings.TrimSpace(session.ID),
		EventID:       event.ID,
		CustomerEmail: strings.TrimSpace(session.CustomerEmail),
		AmountTotal:   session.AmountTotal,
		Currency:      strings.ToLower(string(session.Currency)),
		PaymentStatus: string(session.PaymentStatus),
		Livemode:      session.Livemode,
	}
	if details := session.CustomerDetails; details != nil {
		if email := strings.TrimSpace(details.Email); email != "" {
			purchase.CustomerEmail = email
		}
		purchase.CustomerName = strings.TrimSpace(details.Name)
	}
	return purchase, nil
}

func DecodePaymentIntent(event core.VerifiedEvent) (core.PaymentIntent, error) {
	if len(event.Object) == 0 {
		return core.PaymentIntent{}, malformedPayloadError(errors.New("event has no data object"), "decode payment intent")
	}
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Object, &intent); err != nil {
		return core.PaymentIntent{}, malformedPayloadError(err, "decode payment intent")
	}
	return core.PaymentIntent{
		ID:       strings.TrimSpace(intent.ID),
		Amount:   intent.Amount,
		Currency: strings.ToLower(string(intent.Currency)),
		Livemode: intent.Livemode,
	}, nil
}
