package webhooks

import (
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
)

type EventDecoder func(payload []byte) (core.VerifiedEvent, error)

// ProviderWebhookTemplate bundles what an inbound route needs to accept one
// provider's deliveries.
type ProviderWebhookTemplate struct {
	ProviderID string
	Header     string
	Verifier   Verifier
	Decoder    EventDecoder
}

func NewStripeWebhookTemplate(secret string, tolerance time.Duration) ProviderWebhookTemplate {
	return ProviderWebhookTemplate{
		ProviderID: core.ProviderStripe,
		Header:     SignatureHeaderName,
		Verifier:   NewSignatureVerifier(strings.TrimSpace(secret), tolerance),
		Decoder:    DecodeEvent,
	}
}
