// Package webhooks verifies processor signatures and decodes verified
// payloads.
//
// The signature header carries a timestamp and one or more v1 digests:
//
//	Stripe-Signature: t=1700000000,v1=<hex hmac-sha256>
//
// The digest covers "<timestamp>.<raw body>". During secret rotation the
// processor sends one v1 entry per active secret; any match is accepted.
package webhooks
