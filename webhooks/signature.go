package webhooks

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-checkout-activation/core"
)

const (
	SignatureHeaderName = "Stripe-Signature"
	signatureScheme     = "v1"
)

type Verifier interface {
	Verify(ctx context.Context, req core.InboundRequest) error
}

// SignatureHeader is the parsed form of the signature header.
type SignatureHeader struct {
	Timestamp  int64
	Signatures [][]byte
}

func ParseSignatureHeader(value string) (SignatureHeader, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return SignatureHeader{}, malformedHeaderError("signature header is empty")
	}
	header := SignatureHeader{}
	hasTimestamp := false
	for _, pair := range strings.Split(value, ",") {
		key, raw, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		raw = strings.TrimSpace(raw)
		switch key {
		case "t":
			timestamp, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return SignatureHeader{}, malformedHeaderError("signature timestamp is not numeric")
			}
			header.Timestamp = timestamp
			hasTimestamp = true
		case signatureScheme:
			decoded, err := hex.DecodeString(raw)
			if err != nil {
				// other entries may still match
				continue
			}
			header.Signatures = append(header.Signatures, decoded)
		}
	}
	if !hasTimestamp {
		return SignatureHeader{}, malformedHeaderError("signature header has no timestamp")
	}
	if len(header.Signatures) == 0 {
		return SignatureHeader{}, malformedHeaderError("signature header has no v1 signature")
	}
	return header, nil
}

// ComputeSignature returns HMAC-SHA256(secret, "<timestamp>.<payload>").
func ComputeSignature(timestamp int64, payload []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	_, _ = mac.Write([]byte("."))
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// SignatureHeaderValue builds a header value the verifier accepts.
func SignatureHeaderValue(timestamp int64, payload []byte, secret string) string {
	return fmt.Sprintf("t=%d,%s=%s", timestamp, signatureScheme, hex.EncodeToString(ComputeSignature(timestamp, payload, secret)))
}

// VerifySignature checks header against payload without a timestamp tolerance.
func VerifySignature(payload []byte, header string, secret string) error {
	return SignatureVerifier{Secret: secret}.VerifyPayload(payload, header)
}

type SignatureVerifier struct {
	Header string
	Secret string
	// Tolerance bounds |now - t|. Zero disables the check.
	Tolerance time.Duration
	Now       func() time.Time
}

func NewSignatureVerifier(secret string, tolerance time.Duration) SignatureVerifier {
	return SignatureVerifier{
		Header:    SignatureHeaderName,
		Secret:    strings.TrimSpace(secret),
		Tolerance: tolerance,
	}
}

func (v SignatureVerifier) Verify(_ context.Context, req core.InboundRequest) error {
	header := headerValue(req.Headers, v.headerName())
	if header == "" {
		return malformedHeaderError(v.headerName() + " header is required")
	}
	return v.VerifyPayload(req.Body, header)
}

func (v SignatureVerifier) VerifyPayload(payload []byte, header string) error {
	secret := strings.TrimSpace(v.Secret)
	if secret == "" {
		return core.ConfigurationMissingError("STRIPE_WEBHOOK_SECRET")
	}
	parsed, err := ParseSignatureHeader(header)
	if err != nil {
		return err
	}
	expected := ComputeSignature(parsed.Timestamp, payload, secret)
	matched := false
	for _, candidate := range parsed.Signatures {
		if hmac.Equal(candidate, expected) {
			matched = true
		}
	}
	if !matched {
		return signatureMismatchError()
	}
	if v.Tolerance > 0 {
		drift := v.now().Sub(time.Unix(parsed.Timestamp, 0))
		if drift < 0 {
			drift = -drift
		}
		if drift > v.Tolerance {
			return toleranceError(parsed.Timestamp, int64(v.Tolerance/time.Second))
		}
	}
	return nil
}

func (v SignatureVerifier) headerName() string {
	if name := strings.TrimSpace(v.Header); name != "" {
		return name
	}
	return SignatureHeaderName
}

func (v SignatureVerifier) now() time.Time {
	if v.Now != nil {
		return v.Now()
	}
	return time.Now()
}

func headerValue(headers map[string]string, key string) string {
	if len(headers) == 0 {
		return ""
	}
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

var _ Verifier = SignatureVerifier{}
