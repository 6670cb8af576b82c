package external

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"guestflow/internal/types"
)

// ---------------------------------------------------------------------------
// Stub Implementations
//
// Stub implementations allow the application to boot in local/test mode
// without requiring real vendor credentials. They log all actions and return
// predictable, safe default values.
// ---------------------------------------------------------------------------

// StubPaymentProvider implements PaymentProvider by logging calls and
// returning deterministic local URLs. Used when APP_ENV=local.
type StubPaymentProvider struct {
	logger *slog.Logger
}

// NewStubPaymentProvider creates a new StubPaymentProvider.
func NewStubPaymentProvider(logger *slog.Logger) *StubPaymentProvider {
	return &StubPaymentProvider{logger: logger}
}

func (s *StubPaymentProvider) CreatePaymentLink(ctx context.Context, input PaymentLinkInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: CreatePaymentLink called",
		"reference", input.Reference,
		"amount_cents", input.AmountCents,
	)
	return fmt.Sprintf("https://pay.stub.local/%s", input.Reference), nil
}

// StubLockProvider implements LockProvider with random six-digit codes and
// an in-memory record of issued codes.
type StubLockProvider struct {
	logger *slog.Logger
	codes  map[string]bool
}

// NewStubLockProvider creates a new StubLockProvider.
func NewStubLockProvider(logger *slog.Logger) *StubLockProvider {
	return &StubLockProvider{logger: logger, codes: make(map[string]bool)}
}

func (s *StubLockProvider) CreateTemporaryCode(ctx context.Context, lockID int64, name string, start, end time.Time) (string, error) {
	code := fmt.Sprintf("%06d", rand.IntN(1000000))
	s.codes[code] = true
	s.logger.InfoContext(ctx, "stub: CreateTemporaryCode called",
		"lock_id", lockID,
		"name", name,
		"start", start,
		"end", end,
	)
	return code, nil
}

func (s *StubLockProvider) DeleteCodeByValue(ctx context.Context, lockID int64, code string) (bool, error) {
	found := s.codes[code]
	delete(s.codes, code)
	s.logger.InfoContext(ctx, "stub: DeleteCodeByValue called",
		"lock_id", lockID,
		"found", found,
	)
	return found, nil
}

// StubMessenger implements Messenger by logging message content. Sessions
// can be forced closed to exercise the template fallback locally.
type StubMessenger struct {
	logger *slog.Logger

	// CloseSessions makes SendSession fail with the outside-window error,
	// mimicking a guest with no open conversation.
	CloseSessions bool
}

// NewStubMessenger creates a new StubMessenger.
func NewStubMessenger(logger *slog.Logger) *StubMessenger {
	return &StubMessenger{logger: logger}
}

func (s *StubMessenger) SendSession(ctx context.Context, phone string, body string) (string, error) {
	if s.CloseSessions {
		return "", &ProviderError{Provider: "whatsapp", Code: waErrOutsideWindow, Message: "stub: session window closed"}
	}
	s.logger.InfoContext(ctx, "stub: SendSession called",
		"phone", phone,
		"body_len", len(body),
	)
	return fmt.Sprintf("wamid.stub.%d", rand.Int64()), nil
}

func (s *StubMessenger) SendTemplate(ctx context.Context, phone string, templateName string, lang types.Language, params []string) (string, error) {
	s.logger.InfoContext(ctx, "stub: SendTemplate called",
		"phone", phone,
		"template", templateName,
		"language", string(lang),
		"params", len(params),
	)
	return fmt.Sprintf("wamid.stub.%d", rand.Int64()), nil
}

// StubEmailProvider implements EmailProvider by logging calls.
type StubEmailProvider struct {
	logger *slog.Logger
}

// NewStubEmailProvider creates a new StubEmailProvider.
func NewStubEmailProvider(logger *slog.Logger) *StubEmailProvider {
	return &StubEmailProvider{logger: logger}
}

func (s *StubEmailProvider) Send(ctx context.Context, input EmailInput) (string, error) {
	s.logger.InfoContext(ctx, "stub: Send email called",
		"to", input.To,
		"subject", input.Subject,
	)
	return fmt.Sprintf("stub-msg-%d", rand.Int64()), nil
}

// Compile-time assertions that stubs satisfy their interfaces.
var (
	_ PaymentProvider = (*StubPaymentProvider)(nil)
	_ LockProvider    = (*StubLockProvider)(nil)
	_ Messenger       = (*StubMessenger)(nil)
	_ EmailProvider   = (*StubEmailProvider)(nil)
)
