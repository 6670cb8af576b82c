// Package fulfillment orchestrates the reservation pipeline: payment link,
// door access code, and guest notification. The payment step is critical and
// aborts the run; the access-code step is not, because a guest who cannot
// open the door with a code can still be let in by staff, while a guest with
// no payment link cannot pay.
package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"guestflow/internal/external"
	"guestflow/internal/locale"
	"guestflow/internal/messaging"
	"guestflow/internal/templates"
	"guestflow/internal/types"
	"guestflow/internal/worker"
)

// Compile-time assertion that Orchestrator satisfies the worker dispatch
// interface.
var _ worker.Orchestrator = (*Orchestrator)(nil)

// ReservationStore is the persistence interface the orchestrator needs. It
// is a subset of the full reservation repository: conditional field-level
// writes so concurrent runs converge instead of overwriting each other.
type ReservationStore interface {
	GetByID(ctx context.Context, id int64) (*types.Reservation, error)
	SetPaymentLinkIfEmpty(ctx context.Context, id int64, link string) (string, error)
	SetAccessCodeIfEmpty(ctx context.Context, id int64, code string) (string, error)
	SetCheckInLink(ctx context.Context, id int64, link string) error
	SetSentMessage(ctx context.Context, id int64, body string, at time.Time) error
	AdvanceStatus(ctx context.Context, id int64, status types.ReservationStatus) error
	MarkInvitationSent(ctx context.Context, id int64, at time.Time) (bool, error)
	UpdateContact(ctx context.Context, id int64, override types.ContactOverride) error
}

// OrgStore loads the owning organization for timezone, branding, and
// defaults.
type OrgStore interface {
	GetByID(ctx context.Context, id int64) (*types.Organization, error)
}

// AuditLog appends delivery-attempt records. Append failures are logged and
// swallowed: losing an audit row must not fail a guest-facing pipeline.
type AuditLog interface {
	Append(ctx context.Context, entry *types.NotificationLogEntry) error
}

// Config carries the fulfillment tunables lifted from the service config.
type Config struct {
	// LinkExpiry is how long generated payment links stay valid.
	LinkExpiry time.Duration

	// CheckInBaseURL is the internal online check-in base used when the
	// organization has no check-in site of its own.
	CheckInBaseURL string
}

// Orchestrator is the production fulfillment pipeline.
type Orchestrator struct {
	reservations ReservationStore
	orgs         OrgStore
	audit        AuditLog
	payments     external.PaymentProvider
	locks        external.LockProvider
	deliverer    messaging.Deliverer
	cfg          Config
	clock        types.Clock
	logger       types.Logger
}

// New creates an Orchestrator. The lock provider may be nil when the
// deployment has no smart locks; the access-code step is then skipped.
func New(
	reservations ReservationStore,
	orgs OrgStore,
	audit AuditLog,
	payments external.PaymentProvider,
	locks external.LockProvider,
	deliverer messaging.Deliverer,
	cfg Config,
	logger types.Logger,
) *Orchestrator {
	return &Orchestrator{
		reservations: reservations,
		orgs:         orgs,
		audit:        audit,
		payments:     payments,
		locks:        locks,
		deliverer:    deliverer,
		cfg:          cfg,
		clock:        types.RealClock{},
		logger:       logger,
	}
}

// resolvedContact is the effective guest contact after applying overrides.
type resolvedContact struct {
	phone *string
	email *string
	name  string
}

// primaryChannel names the channel an audit row about a non-channel failure
// (payment, lock) is attributed to.
func (c resolvedContact) primaryChannel() (types.Channel, string) {
	if c.phone != nil && *c.phone != "" {
		return types.ChannelWhatsApp, *c.phone
	}
	if c.email != nil && *c.email != "" {
		return types.ChannelEmail, *c.email
	}
	return types.ChannelWhatsApp, ""
}

// Fulfill runs the full pipeline for a reservation: payment link (critical),
// access code (best effort), check-in link, and the invitation message across
// the guest's channels.
func (o *Orchestrator) Fulfill(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error) {
	res, org, contact, lang, err := o.load(ctx, reservationID, override)
	if err != nil {
		return nil, err
	}

	link, err := o.ensurePaymentLink(ctx, res, org)
	if err != nil {
		channel, recipient := contact.primaryChannel()
		o.appendAudit(ctx, &types.NotificationLogEntry{
			ReservationID: res.ID,
			Channel:       channel,
			MessageType:   types.MessageInvitation,
			Recipient:     recipient,
			Success:       false,
			Detail:        "payment link creation failed: " + err.Error(),
		})
		return nil, err
	}

	code, codeOK := o.ensureAccessCode(ctx, res, contact)
	checkInLink := o.ensureCheckInLink(ctx, res, org)

	result, err := o.notify(ctx, res, org, contact, lang, types.MessageInvitation, templates.Vars{
		GuestName:    contact.name,
		RoomName:     res.RoomName,
		CheckInDate:  o.formatLocalDate(res.CheckIn, org),
		PaymentLink:  link,
		AccessCode:   code,
		CheckInLink:  checkInLink,
		PropertyName: org.Name,
	})
	if err != nil {
		return nil, err
	}
	result.PaymentLink = link
	result.AccessCode = code
	result.CheckInLink = checkInLink
	result.AccessCodeOK = codeOK

	if result.AnyChannelOK {
		now := o.clock.Now()
		if _, err := o.reservations.MarkInvitationSent(ctx, res.ID, now); err != nil {
			o.logger.Error("failed to mark invitation sent", "reservation_id", res.ID, "error", err)
		}
		o.advanceToNotified(ctx, res.ID)
		return result, nil
	}
	return result, types.NewAppError(types.ErrCodeUpstreamGeneric,
		"all notification channels failed", nil)
}

// IssueAccessAndNotify runs the access-code and notification steps only. The
// payment webhook calls it after a paid or completed event; the payment link
// already exists at that point.
func (o *Orchestrator) IssueAccessAndNotify(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error) {
	res, org, contact, lang, err := o.load(ctx, reservationID, override)
	if err != nil {
		return nil, err
	}

	code, codeOK := o.ensureAccessCode(ctx, res, contact)
	checkInLink := o.ensureCheckInLink(ctx, res, org)

	result, err := o.notify(ctx, res, org, contact, lang, types.MessageAccessCode, templates.Vars{
		GuestName:    contact.name,
		RoomName:     res.RoomName,
		CheckInDate:  o.formatLocalDate(res.CheckIn, org),
		AccessCode:   code,
		CheckInLink:  checkInLink,
		PropertyName: org.Name,
	})
	if err != nil {
		return nil, err
	}
	result.AccessCode = code
	result.CheckInLink = checkInLink
	result.AccessCodeOK = codeOK

	if !result.AnyChannelOK {
		return result, types.NewAppError(types.ErrCodeUpstreamGeneric,
			"all notification channels failed", nil)
	}
	return result, nil
}

// SendCheckInConfirmation delivers the check-in confirmation message once a
// guest has completed online check-in.
func (o *Orchestrator) SendCheckInConfirmation(ctx context.Context, reservationID int64) (*types.FulfillmentResult, error) {
	res, org, contact, lang, err := o.load(ctx, reservationID, nil)
	if err != nil {
		return nil, err
	}
	if res.Status != types.StatusCheckedIn {
		return nil, types.NewAppError(types.ErrCodeConflictStatus,
			"check-in confirmation requires status checked_in", nil)
	}

	result, err := o.notify(ctx, res, org, contact, lang, types.MessageCheckInConfirmation, templates.Vars{
		GuestName:    contact.name,
		RoomName:     res.RoomName,
		CheckInDate:  o.formatLocalDate(res.CheckIn, org),
		PropertyName: org.Name,
	})
	if err != nil {
		return nil, err
	}
	if !result.AnyChannelOK {
		return result, types.NewAppError(types.ErrCodeUpstreamGeneric,
			"all notification channels failed", nil)
	}
	return result, nil
}

// UpdateContactAndFulfill persists corrected contact details and re-runs the
// full pipeline with them.
func (o *Orchestrator) UpdateContactAndFulfill(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.FulfillmentResult, error) {
	if override != nil {
		if err := o.reservations.UpdateContact(ctx, reservationID, *override); err != nil {
			return nil, err
		}
	}
	return o.Fulfill(ctx, reservationID, override)
}

// load fetches the reservation and organization and resolves contact and
// language, failing fast on the non-retryable preconditions.
func (o *Orchestrator) load(ctx context.Context, reservationID int64, override *types.ContactOverride) (*types.Reservation, *types.Organization, resolvedContact, types.Language, error) {
	res, err := o.reservations.GetByID(ctx, reservationID)
	if err != nil {
		return nil, nil, resolvedContact{}, "", err
	}
	org, err := o.orgs.GetByID(ctx, res.OrganizationID)
	if err != nil {
		return nil, nil, resolvedContact{}, "", err
	}

	contact := resolveContact(res, override)
	if !hasValue(contact.phone) && !hasValue(contact.email) {
		return nil, nil, resolvedContact{}, "", types.NewAppError(types.ErrCodeValidationMissingContact,
			fmt.Sprintf("reservation %d has no phone or email", res.ID), nil)
	}

	lang := locale.Resolve(res.Nationality, contact.phone)
	return res, org, contact, lang, nil
}

// notify fans the message out, persists the audit entries, and records the
// rendered body as the last message when any channel succeeded.
func (o *Orchestrator) notify(ctx context.Context, res *types.Reservation, org *types.Organization, contact resolvedContact, lang types.Language, msgType types.MessageType, vars templates.Vars) (*types.FulfillmentResult, error) {
	delivery, err := o.deliverer.Deliver(ctx, messaging.Message{
		ReservationID: res.ID,
		OrgID:         org.ID,
		LocationID:    res.LocationID,
		Type:          msgType,
		Language:      lang,
		Phone:         contact.phone,
		Email:         contact.email,
		Vars:          vars,
	})
	if err != nil {
		return nil, err
	}

	for i := range delivery.Entries {
		o.appendAudit(ctx, &delivery.Entries[i])
	}

	if delivery.AnySucceeded {
		if err := o.reservations.SetSentMessage(ctx, res.ID, delivery.RenderedBody, o.clock.Now()); err != nil {
			o.logger.Error("failed to record sent message", "reservation_id", res.ID, "error", err)
		}
	}

	return &types.FulfillmentResult{
		ReservationID: res.ID,
		Language:      lang,
		AnyChannelOK:  delivery.AnySucceeded,
		Channels:      delivery.Entries,
	}, nil
}

// ensurePaymentLink reuses an existing link or creates one through the
// provider. The conditional write makes a concurrent duplicate run converge
// on one link.
func (o *Orchestrator) ensurePaymentLink(ctx context.Context, res *types.Reservation, org *types.Organization) (string, error) {
	if hasValue(res.PaymentLink) {
		return *res.PaymentLink, nil
	}

	amount := res.AmountCents
	if amount <= 0 {
		amount = org.DefaultCents
	}
	currency := res.CurrencyCode
	if currency == "" {
		currency = "COP"
	}

	now := o.clock.Now()
	url, err := o.payments.CreatePaymentLink(ctx, external.PaymentLinkInput{
		Reference:    types.PaymentReference(res.ID, now),
		Description:  fmt.Sprintf("Reserva %s - %s", org.Name, res.GuestName),
		AmountCents:  amount,
		CurrencyCode: currency,
		ExpiresAt:    now.Add(o.cfg.LinkExpiry),
	})
	if err != nil {
		return "", err
	}

	winner, err := o.reservations.SetPaymentLinkIfEmpty(ctx, res.ID, url)
	if err != nil {
		return "", err
	}
	return winner, nil
}

// ensureAccessCode reuses a stored code or issues one on the room lock. Any
// failure is audited and the pipeline continues without a code.
func (o *Orchestrator) ensureAccessCode(ctx context.Context, res *types.Reservation, contact resolvedContact) (string, bool) {
	if hasValue(res.AccessCode) {
		return *res.AccessCode, true
	}
	if res.LockID == nil || o.locks == nil {
		return "", false
	}

	start, end := res.StayWindow()
	code, err := o.locks.CreateTemporaryCode(ctx, *res.LockID, res.GuestName, start, end)
	if err != nil {
		o.logger.Warn("access code issuance failed, continuing without code",
			"reservation_id", res.ID, "lock_id", *res.LockID, "error", err)
		channel, recipient := contact.primaryChannel()
		o.appendAudit(ctx, &types.NotificationLogEntry{
			ReservationID: res.ID,
			Channel:       channel,
			MessageType:   types.MessageAccessCode,
			Recipient:     recipient,
			Success:       false,
			Detail:        "access code issuance failed: " + err.Error(),
		})
		return "", false
	}

	winner, err := o.reservations.SetAccessCodeIfEmpty(ctx, res.ID, code)
	if err != nil {
		o.logger.Error("failed to persist access code", "reservation_id", res.ID, "error", err)
		return code, true
	}
	return winner, true
}

// ensureCheckInLink reuses a stored link or builds one from the
// organization's check-in site, falling back to the internal base URL.
func (o *Orchestrator) ensureCheckInLink(ctx context.Context, res *types.Reservation, org *types.Organization) string {
	if hasValue(res.CheckInLink) {
		return *res.CheckInLink
	}

	base := org.CheckInURL
	if base == "" {
		base = o.cfg.CheckInBaseURL
	}
	link := fmt.Sprintf("%s/checkin/%d", strings.TrimRight(base, "/"), res.ID)

	if err := o.reservations.SetCheckInLink(ctx, res.ID, link); err != nil {
		o.logger.Error("failed to persist check-in link", "reservation_id", res.ID, "error", err)
	}
	return link
}

// advanceToNotified moves the status forward, tolerating reservations that
// already progressed past notification_sent.
func (o *Orchestrator) advanceToNotified(ctx context.Context, reservationID int64) {
	err := o.reservations.AdvanceStatus(ctx, reservationID, types.StatusNotificationSent)
	if err == nil {
		return
	}
	var appErr *types.AppError
	if errors.As(err, &appErr) && appErr.Code == types.ErrCodeConflictStatus {
		return
	}
	o.logger.Error("failed to advance reservation status", "reservation_id", reservationID, "error", err)
}

func (o *Orchestrator) appendAudit(ctx context.Context, entry *types.NotificationLogEntry) {
	if err := o.audit.Append(ctx, entry); err != nil {
		o.logger.Error("failed to append audit entry",
			"reservation_id", entry.ReservationID, "channel", string(entry.Channel), "error", err)
	}
}

// formatLocalDate renders a date in the organization's timezone for guest
// messages. An unknown zone falls back to UTC.
func (o *Orchestrator) formatLocalDate(t time.Time, org *types.Organization) string {
	loc, err := time.LoadLocation(org.Timezone)
	if err != nil {
		loc = time.UTC
	}
	return t.In(loc).Format("02/01/2006")
}

func resolveContact(res *types.Reservation, override *types.ContactOverride) resolvedContact {
	contact := resolvedContact{
		phone: res.GuestPhone,
		email: res.GuestEmail,
		name:  res.GuestName,
	}
	if override == nil {
		return contact
	}
	if hasValue(override.Phone) {
		contact.phone = override.Phone
	}
	if hasValue(override.Email) {
		contact.email = override.Email
	}
	if override.Name != nil && *override.Name != "" {
		contact.name = *override.Name
	}
	return contact
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}
