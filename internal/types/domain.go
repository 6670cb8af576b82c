package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Reservation is the core domain entity representing a guest booking.
type Reservation struct {
	ID             int64 `json:"id" db:"id"`
	OrganizationID int64 `json:"organization_id" db:"organization_id"`
	LocationID     int64 `json:"location_id" db:"location_id"`

	// Guest identity and contact
	GuestName   string  `json:"guest_name" db:"guest_name"`
	GuestPhone  *string `json:"guest_phone,omitempty" db:"guest_phone"`
	GuestEmail  *string `json:"guest_email,omitempty" db:"guest_email"`
	Nationality *string `json:"nationality,omitempty" db:"nationality"`

	// Stay window
	CheckIn  time.Time `json:"check_in" db:"check_in"`
	CheckOut time.Time `json:"check_out" db:"check_out"`
	RoomName string    `json:"room_name,omitempty" db:"room_name"`

	// LockID is the smart lock assigned to the guest's room, when the
	// location has one.
	LockID *int64 `json:"lock_id,omitempty" db:"lock_id"`

	// Billing
	AmountCents  int64  `json:"amount_cents" db:"amount_cents"`
	CurrencyCode string `json:"currency_code" db:"currency_code"`

	// Fulfillment artifacts, written once and reused on re-runs
	PaymentLink *string `json:"payment_link,omitempty" db:"payment_link"`
	AccessCode  *string `json:"access_code,omitempty" db:"access_code"`
	CheckInLink *string `json:"check_in_link,omitempty" db:"check_in_link"`

	Status           ReservationStatus `json:"status" db:"status"`
	InvitationSentAt *time.Time        `json:"invitation_sent_at,omitempty" db:"invitation_sent_at"`
	PaidAt           *time.Time        `json:"paid_at,omitempty" db:"paid_at"`

	// LastMessage holds the body of the most recent guest message for
	// support tooling; the full history lives in the notification log.
	LastMessage   *string    `json:"last_message,omitempty" db:"last_message"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty" db:"last_message_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// HasContact reports whether the reservation carries at least one usable
// contact point. Fulfillment fails fast without one.
func (r *Reservation) HasContact() bool {
	return (r.GuestPhone != nil && *r.GuestPhone != "") ||
		(r.GuestEmail != nil && *r.GuestEmail != "")
}

// StayWindow returns the reservation's stay window with the checkout
// invariant enforced: if check-out is not after check-in, check-out is
// corrected to check-in plus one day.
func (r *Reservation) StayWindow() (start, end time.Time) {
	start = r.CheckIn
	end = r.CheckOut
	if !end.After(start) {
		end = start.AddDate(0, 0, 1)
	}
	return start, end
}

// ContactOverride carries staff-supplied contact corrections for a re-run.
// Non-nil fields take precedence over the stored reservation contact.
type ContactOverride struct {
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
	Name  *string `json:"name,omitempty"`
}

// Organization represents a property operator owning locations and
// reservations.
type Organization struct {
	ID           int64     `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	CountryCode  string    `json:"country_code" db:"country_code"`
	Timezone     string    `json:"timezone" db:"timezone"`
	CheckInURL   string    `json:"check_in_url" db:"check_in_url"`
	DefaultCents int64     `json:"default_amount_cents" db:"default_amount_cents"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// NotificationLogEntry is an append-only audit record of a single delivery
// attempt on a single channel. Rows are never updated.
type NotificationLogEntry struct {
	ID            int64       `json:"id" db:"id"`
	ReservationID int64       `json:"reservation_id" db:"reservation_id"`
	Channel       Channel     `json:"channel" db:"channel"`
	MessageType   MessageType `json:"message_type" db:"message_type"`
	Recipient     string      `json:"recipient" db:"recipient"`
	Success       bool        `json:"success" db:"success"`
	Detail        string      `json:"detail,omitempty" db:"detail"`
	UsedTemplate  bool        `json:"used_template" db:"used_template"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// FulfillmentResult summarizes one pipeline run for API responses and logs.
type FulfillmentResult struct {
	ReservationID int64                  `json:"reservation_id"`
	PaymentLink   string                 `json:"payment_link,omitempty"`
	AccessCode    string                 `json:"access_code,omitempty"`
	CheckInLink   string                 `json:"check_in_link,omitempty"`
	Language      Language               `json:"language"`
	AnyChannelOK  bool                   `json:"any_channel_succeeded"`
	AccessCodeOK  bool                   `json:"access_code_issued"`
	Channels      []NotificationLogEntry `json:"channels"`
}

// JobPayload is the envelope persisted on the queue for every background job.
type JobPayload struct {
	JobID         string           `json:"job_id"`
	Type          JobType          `json:"type"`
	ReservationID int64            `json:"reservation_id"`
	Override      *ContactOverride `json:"override,omitempty"`
	EnqueuedAt    time.Time        `json:"enqueued_at"`
	Attempt       int              `json:"attempt"`
}

// ContactSnapshot captures the reservation's current contact details for a
// job payload, so the job delivers to the contact as it was at enqueue time
// even if the row is edited while the job waits. Returns nil when the
// reservation has no contact at all.
func (r *Reservation) ContactSnapshot() *ContactOverride {
	if r.GuestPhone == nil && r.GuestEmail == nil {
		return nil
	}
	name := r.GuestName
	return &ContactOverride{
		Phone: r.GuestPhone,
		Email: r.GuestEmail,
		Name:  &name,
	}
}

// PaymentReference formats the provider-facing payment reference for a
// reservation. The provider caps references at 60 characters.
func PaymentReference(reservationID int64, now time.Time) string {
	ref := fmt.Sprintf("RES-%d-%d", reservationID, now.UnixMilli())
	if len(ref) > 60 {
		ref = ref[:60]
	}
	return ref
}

// ReservationIDFromReference recovers the reservation ID from a payment
// reference of the form "RES-{id}-{timestamp}".
func ReservationIDFromReference(ref string) (int64, error) {
	parts := strings.Split(ref, "-")
	if len(parts) < 2 || parts[0] != "RES" {
		return 0, NewAppError(ErrCodeValidationBadReference, "malformed payment reference: "+ref, nil)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return 0, NewAppError(ErrCodeValidationBadReference, "malformed payment reference: "+ref, err)
	}
	return id, nil
}
