package external

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Bold Webhook Verification (HMAC-SHA256)
// ---------------------------------------------------------------------------

// BoldVerifier implements WebhookVerifier for Bold payment notifications.
// Bold signs the raw payload with HMAC-SHA256 using the merchant secret and
// sends the signature base64-encoded in the x-bold-signature header.
type BoldVerifier struct{}

// HeaderName returns the request header carrying the Bold signature.
func (v *BoldVerifier) HeaderName() string { return "X-Bold-Signature" }

// Verify checks the HMAC signature against the raw payload. Both base64 and
// hex encodings of the digest are accepted.
func (v *BoldVerifier) Verify(payload []byte, header string, secret string) error {
	header = strings.TrimSpace(header)
	if header == "" {
		return errors.New("missing signature header")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := mac.Sum(nil)

	if sig, err := base64.StdEncoding.DecodeString(header); err == nil {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	if sig, err := hex.DecodeString(header); err == nil {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return errors.New("signature mismatch")
}

// ---------------------------------------------------------------------------
// Stripe Webhook Verification (HMAC-SHA256 over t.payload)
// ---------------------------------------------------------------------------

// stripeSignatureTolerance bounds the webhook timestamp age to limit replay.
const stripeSignatureTolerance = 5 * time.Minute

// StripeVerifier implements WebhookVerifier for Stripe events. The
// Stripe-Signature header carries "t=<unix>,v1=<hex hmac>" pairs; the signed
// message is "<t>.<payload>".
type StripeVerifier struct {
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// HeaderName returns the request header carrying the Stripe signature.
func (v *StripeVerifier) HeaderName() string { return "Stripe-Signature" }

// Verify checks the v1 signature and the timestamp tolerance.
func (v *StripeVerifier) Verify(payload []byte, header string, secret string) error {
	now := time.Now
	if v.Now != nil {
		now = v.Now
	}

	var ts int64
	var sigs [][]byte
	for _, part := range strings.Split(header, ",") {
		k, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			parsed, err := strconv.ParseInt(val, 10, 64)
			if err != nil {
				return fmt.Errorf("malformed timestamp in signature header: %w", err)
			}
			ts = parsed
		case "v1":
			sig, err := hex.DecodeString(val)
			if err != nil {
				continue
			}
			sigs = append(sigs, sig)
		}
	}

	if ts == 0 || len(sigs) == 0 {
		return errors.New("signature header missing t or v1 components")
	}
	if age := math.Abs(float64(now().Unix() - ts)); age > stripeSignatureTolerance.Seconds() {
		return errors.New("signature timestamp outside tolerance")
	}

	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	expected := mac.Sum(nil)

	for _, sig := range sigs {
		if hmac.Equal(sig, expected) {
			return nil
		}
	}
	return errors.New("signature mismatch")
}
