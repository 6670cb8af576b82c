package external

import (
	"context"
	"time"

	"guestflow/internal/types"
)

// ---------------------------------------------------------------------------
// Payment-Link Integration (Bold / Stripe)
// ---------------------------------------------------------------------------

// PaymentLinkInput describes the payment link to create.
type PaymentLinkInput struct {
	// Reference correlates provider webhooks back to the reservation. Callers
	// build it with types.PaymentReference.
	Reference    string
	Description  string
	AmountCents  int64
	CurrencyCode string
	ExpiresAt    time.Time
}

// PaymentProvider abstracts the payment-link provider. Implementations
// translate between domain types and vendor-specific APIs.
type PaymentProvider interface {
	// CreatePaymentLink generates a hosted payment URL for the given input.
	CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (url string, err error)
}

// WebhookVerifier abstracts payment webhook signature checking.
type WebhookVerifier interface {
	// Verify validates a webhook payload against the provided signature header
	// and signing secret. Returns nil on success, an error on failure.
	Verify(payload []byte, header string, secret string) error

	// HeaderName returns the request header the provider sends its
	// signature in.
	HeaderName() string
}

// ---------------------------------------------------------------------------
// Smart-Lock Integration (TTLock)
// ---------------------------------------------------------------------------

// LockProvider abstracts the smart-lock vendor used for door access codes.
type LockProvider interface {
	// CreateTemporaryCode issues a numeric code valid for [start, end) on the
	// lock assigned to the room. Providers clamp start to local midnight and
	// guarantee at least one day of validity.
	CreateTemporaryCode(ctx context.Context, lockID int64, name string, start, end time.Time) (code string, err error)

	// DeleteCodeByValue removes a code from the lock. It reports found=false
	// without error when the provider no longer knows the code, so callers
	// can treat already-deleted codes as success.
	DeleteCodeByValue(ctx context.Context, lockID int64, code string) (found bool, err error)
}

// ---------------------------------------------------------------------------
// WhatsApp Integration (Meta Graph API)
// ---------------------------------------------------------------------------

// Messenger abstracts the WhatsApp Business transport. Free-form session
// messages only reach guests with an open 24h conversation window; templated
// messages work regardless but must use pre-approved template names.
type Messenger interface {
	// SendSession sends a free-form text message inside an open conversation
	// window. Returns a ProviderError with OutsideSessionWindow() true when
	// the window is closed.
	SendSession(ctx context.Context, phone string, body string) (messageID string, err error)

	// SendTemplate sends a pre-approved template message. The params fill the
	// template's positional body variables.
	SendTemplate(ctx context.Context, phone string, templateName string, lang types.Language, params []string) (messageID string, err error)
}

// ---------------------------------------------------------------------------
// Email Integration (MailerSend)
// ---------------------------------------------------------------------------

// EmailInput defines the contract for email transmission.
type EmailInput struct {
	To          string
	ToName      string
	Subject     string
	BodyText    string
	BodyHTML    string
	ReferenceID string
}

// EmailProvider abstracts the email delivery service.
type EmailProvider interface {
	// Send transmits an email with pre-rendered content.
	// Returns the provider's message ID for tracking and correlation.
	Send(ctx context.Context, input EmailInput) (providerMsgID string, err error)
}
