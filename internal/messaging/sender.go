// Package messaging delivers rendered guest messages over WhatsApp and email.
//
// WhatsApp delivery is two-tiered: a free-form session message is attempted
// first, and when the guest's 24-hour conversation window has closed the send
// is retried exactly once with the pre-approved template for that message
// type. Every attempted channel produces an audit entry regardless of
// outcome.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"guestflow/internal/external"
	"guestflow/internal/templates"
	"guestflow/internal/types"
)

// Compile-time assertion that Sender implements Deliverer.
var _ Deliverer = (*Sender)(nil)

// Message describes one guest notification to deliver across channels.
type Message struct {
	ReservationID int64
	OrgID         int64
	LocationID    int64
	Type          types.MessageType
	Language      types.Language

	// Phone and Email are the resolved guest contacts; a nil channel is
	// skipped. Callers guarantee at least one is set.
	Phone *string
	Email *string

	Vars templates.Vars
}

// Delivery is the outcome of one fan-out, with one audit entry per attempted
// channel.
type Delivery struct {
	Entries      []types.NotificationLogEntry
	AnySucceeded bool

	// RenderedBody is the message text after template substitution, kept so
	// the pipeline can persist the last message sent to the guest.
	RenderedBody string
}

// Deliverer is the delivery interface the fulfillment pipeline depends on.
type Deliverer interface {
	// Deliver sends the message on every channel the guest has a contact
	// for. The error is non-nil only when no channel could even be
	// attempted, e.g. template resolution failed.
	Deliver(ctx context.Context, msg Message) (Delivery, error)
}

// Sender is the production Deliverer backed by the configured WhatsApp and
// email providers.
type Sender struct {
	messenger external.Messenger
	email     external.EmailProvider
	store     *templates.Store
	logger    types.Logger
}

// NewSender creates a Sender. Either provider may be nil, in which case its
// channel is skipped even when the guest has the matching contact.
func NewSender(messenger external.Messenger, email external.EmailProvider, store *templates.Store, logger types.Logger) *Sender {
	return &Sender{
		messenger: messenger,
		email:     email,
		store:     store,
		logger:    logger,
	}
}

// Deliver resolves the template once and fans out to the available channels.
func (s *Sender) Deliver(ctx context.Context, msg Message) (Delivery, error) {
	tmpl, err := s.store.Resolve(ctx, msg.OrgID, msg.LocationID, msg.Type, msg.Language)
	if err != nil {
		return Delivery{}, fmt.Errorf("Deliver: resolve template: %w", err)
	}

	vars := msg.Vars.Map()
	body := templates.Render(tmpl.Body, vars)
	result := Delivery{RenderedBody: body}

	if msg.Phone != nil && *msg.Phone != "" && s.messenger != nil {
		entry := s.sendWhatsApp(ctx, msg, tmpl, body)
		result.Entries = append(result.Entries, entry)
		result.AnySucceeded = result.AnySucceeded || entry.Success
	}

	if msg.Email != nil && *msg.Email != "" && s.email != nil {
		entry := s.sendEmail(ctx, msg, tmpl, body, vars)
		result.Entries = append(result.Entries, entry)
		result.AnySucceeded = result.AnySucceeded || entry.Success
	}

	if len(result.Entries) == 0 {
		return Delivery{}, types.NewAppError(types.ErrCodeValidationMissingContact,
			"no deliverable channel for reservation", nil)
	}

	return result, nil
}

// sendWhatsApp attempts a free-form session message and falls back to the
// approved template when the conversation window is closed. Any other send
// error fails the channel without a retry.
func (s *Sender) sendWhatsApp(ctx context.Context, msg Message, tmpl templates.Template, body string) types.NotificationLogEntry {
	entry := types.NotificationLogEntry{
		ReservationID: msg.ReservationID,
		Channel:       types.ChannelWhatsApp,
		MessageType:   msg.Type,
		Recipient:     *msg.Phone,
	}

	msgID, err := s.messenger.SendSession(ctx, *msg.Phone, body)
	if err == nil {
		entry.Success = true
		entry.Detail = msgID
		return entry
	}

	var pe *external.ProviderError
	if !errors.As(err, &pe) || !pe.OutsideSessionWindow() {
		s.logger.Warn("whatsapp session send failed",
			"reservation_id", msg.ReservationID,
			"message_type", string(msg.Type),
			"error", err,
		)
		entry.Detail = err.Error()
		return entry
	}

	s.logger.Info("whatsapp session window closed, retrying with template",
		"reservation_id", msg.ReservationID,
		"template", tmpl.WhatsAppTemplateName,
		"language", string(msg.Language),
	)

	entry.UsedTemplate = true
	msgID, err = s.messenger.SendTemplate(ctx, *msg.Phone, tmpl.WhatsAppTemplateName, msg.Language, templateParams(msg.Type, msg.Vars))
	if err != nil {
		s.logger.Warn("whatsapp template send failed",
			"reservation_id", msg.ReservationID,
			"template", tmpl.WhatsAppTemplateName,
			"error", err,
		)
		entry.Detail = err.Error()
		return entry
	}

	entry.Success = true
	entry.Detail = msgID
	return entry
}

func (s *Sender) sendEmail(ctx context.Context, msg Message, tmpl templates.Template, body string, vars map[string]string) types.NotificationLogEntry {
	entry := types.NotificationLogEntry{
		ReservationID: msg.ReservationID,
		Channel:       types.ChannelEmail,
		MessageType:   msg.Type,
		Recipient:     *msg.Email,
	}

	msgID, err := s.email.Send(ctx, external.EmailInput{
		To:          *msg.Email,
		ToName:      msg.Vars.GuestName,
		Subject:     templates.Render(tmpl.EmailSubject, vars),
		BodyText:    body,
		BodyHTML:    textToHTML(body),
		ReferenceID: fmt.Sprintf("reservation-%d", msg.ReservationID),
	})
	if err != nil {
		s.logger.Warn("email send failed",
			"reservation_id", msg.ReservationID,
			"message_type", string(msg.Type),
			"error", err,
		)
		entry.Detail = err.Error()
		return entry
	}

	entry.Success = true
	entry.Detail = msgID
	return entry
}

// templateParams returns the positional body parameters for each approved
// WhatsApp template, in the order the template declares them.
func templateParams(msgType types.MessageType, vars templates.Vars) []string {
	switch msgType {
	case types.MessageInvitation:
		return []string{vars.GuestName, vars.PropertyName, vars.CheckInDate, vars.PaymentLink, vars.CheckInLink}
	case types.MessageAccessCode:
		return []string{vars.GuestName, vars.RoomName, vars.AccessCode}
	case types.MessageCheckInConfirmation:
		return []string{vars.GuestName, vars.PropertyName, vars.CheckInDate}
	case types.MessagePaymentReceipt:
		return []string{vars.GuestName, vars.CheckInDate, vars.PropertyName}
	default:
		return nil
	}
}

// textToHTML produces a minimal HTML body from the plain-text rendering so
// email clients that ignore text/plain still show something readable.
func textToHTML(body string) string {
	escaped := html.EscapeString(body)
	return "<p>" + strings.ReplaceAll(escaped, "\n", "<br>") + "</p>"
}
