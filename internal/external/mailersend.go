package external

import (
	"context"
	"log/slog"
	"time"

	"github.com/mailersend/mailersend-go"

	"guestflow/internal/types"
)

// MailerSendConfig holds the configuration for creating a MailerSendProvider.
type MailerSendConfig struct {
	APIKey      string
	FromAddress string
	FromName    string
	Logger      *slog.Logger
}

// MailerSendProvider implements EmailProvider using the MailerSend SDK.
type MailerSendProvider struct {
	client *mailersend.Mailersend
	from   mailersend.From
	logger *slog.Logger
}

var _ EmailProvider = (*MailerSendProvider)(nil)

// NewMailerSendProvider creates a new MailerSendProvider.
func NewMailerSendProvider(cfg MailerSendConfig) *MailerSendProvider {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MailerSendProvider{
		client: mailersend.NewMailersend(cfg.APIKey),
		from: mailersend.From{
			Name:  cfg.FromName,
			Email: cfg.FromAddress,
		},
		logger: logger,
	}
}

// Send transmits a pre-rendered email and returns MailerSend's message ID.
func (p *MailerSendProvider) Send(ctx context.Context, input EmailInput) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	message := p.client.Email.NewMessage()
	message.SetFrom(p.from)
	message.SetRecipients([]mailersend.Recipient{{
		Name:  input.ToName,
		Email: input.To,
	}})
	message.SetSubject(input.Subject)
	message.SetText(input.BodyText)
	if input.BodyHTML != "" {
		message.SetHTML(input.BodyHTML)
	}
	if input.ReferenceID != "" {
		message.SetTags([]string{input.ReferenceID})
	}

	res, err := p.client.Email.Send(ctx, message)
	if err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamEmail, "mailersend send failed", err)
	}

	msgID := res.Header.Get("X-Message-Id")
	p.logger.InfoContext(ctx, "email accepted by provider",
		"to", input.To,
		"message_id", msgID,
	)
	return msgID, nil
}
