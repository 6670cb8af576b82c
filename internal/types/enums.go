package types

// ReservationStatus represents the lifecycle state of a reservation.
// The set is closed: parsing an unknown string is an error, and status
// transitions are monotonic in Rank order.
type ReservationStatus string

const (
	StatusPending          ReservationStatus = "pending"
	StatusConfirmed        ReservationStatus = "confirmed"
	StatusNotificationSent ReservationStatus = "notification_sent"
	StatusCheckedIn        ReservationStatus = "checked_in"
	StatusCheckedOut       ReservationStatus = "checked_out"
	StatusCancelled        ReservationStatus = "cancelled"
)

// Rank orders statuses for forward-only transitions. Cancelled is terminal
// and unordered with respect to the check-in flow; it ranks highest so that
// nothing can override it.
func (s ReservationStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusConfirmed:
		return 1
	case StatusNotificationSent:
		return 2
	case StatusCheckedIn:
		return 3
	case StatusCheckedOut:
		return 4
	case StatusCancelled:
		return 5
	default:
		return -1
	}
}

// ParseReservationStatus validates a raw status string against the closed set.
func ParseReservationStatus(raw string) (ReservationStatus, error) {
	s := ReservationStatus(raw)
	if s.Rank() < 0 {
		return "", NewAppError(ErrCodeValidationBadPayload, "unknown reservation status: "+raw, nil)
	}
	return s, nil
}

// MessageType identifies the kind of guest message being sent. Template
// resolution is keyed on (MessageType, Language).
type MessageType string

const (
	MessageInvitation          MessageType = "invitation"
	MessageAccessCode          MessageType = "access_code"
	MessageCheckInConfirmation MessageType = "checkin_confirmation"
	MessagePaymentReceipt      MessageType = "payment_receipt"
)

// Channel identifies a guest notification delivery channel.
type Channel string

const (
	ChannelWhatsApp Channel = "whatsapp"
	ChannelEmail    Channel = "email"
)

// Language is an ISO 639-1 language code used for guest-facing content.
// The pipeline currently produces Spanish and English only.
type Language string

const (
	LangSpanish Language = "es"
	LangEnglish Language = "en"
)

// PaymentEvent enumerates the webhook event kinds accepted from the payment
// provider. Unknown event strings are rejected at the webhook boundary.
type PaymentEvent string

const (
	PaymentPaid          PaymentEvent = "payment.paid"
	PaymentCompleted     PaymentEvent = "payment.completed"
	PaymentPartiallyPaid PaymentEvent = "payment.partially_paid"
	PaymentRefunded      PaymentEvent = "payment.refunded"
	PaymentFailed        PaymentEvent = "payment.failed"
	PaymentCancelled     PaymentEvent = "payment.cancelled"
)

// ParsePaymentEvent validates a raw webhook event string against the closed set.
func ParsePaymentEvent(raw string) (PaymentEvent, error) {
	switch e := PaymentEvent(raw); e {
	case PaymentPaid, PaymentCompleted, PaymentPartiallyPaid,
		PaymentRefunded, PaymentFailed, PaymentCancelled:
		return e, nil
	default:
		return "", NewAppError(ErrCodeValidationBadPayload, "unknown payment event: "+raw, nil)
	}
}

// TriggersFulfillment reports whether the event should cause access-code
// issuance and guest notification. Partial payments do not unlock access.
func (e PaymentEvent) TriggersFulfillment() bool {
	return e == PaymentPaid || e == PaymentCompleted
}

// JobType identifies the work a queued job performs. The worker routes to
// separate internal handlers based on this value.
type JobType string

const (
	// JobFulfillReservation runs the full pipeline: payment link, access
	// code, and guest notification.
	JobFulfillReservation JobType = "fulfill_reservation"
	// JobIssueAccess runs only the access-code and notification steps,
	// used after a successful payment webhook.
	JobIssueAccess JobType = "issue_access"
	// JobUpdateGuestContact re-runs fulfillment with corrected contact
	// details supplied by staff.
	JobUpdateGuestContact JobType = "update_guest_contact"
	// JobSendCheckInConfirmation sends the welcome message after a guest
	// has been checked in.
	JobSendCheckInConfirmation JobType = "send_checkin_confirmation"
)

// ParseJobType validates a raw job type string against the closed set.
func ParseJobType(raw string) (JobType, error) {
	switch t := JobType(raw); t {
	case JobFulfillReservation, JobIssueAccess, JobUpdateGuestContact, JobSendCheckInConfirmation:
		return t, nil
	default:
		return "", NewAppError(ErrCodeValidationBadPayload, "unknown job type: "+raw, nil)
	}
}

// SchedulerName identifies a daily scheduler for the persisted run guard.
type SchedulerName string

const (
	SchedulerInvitation      SchedulerName = "invitation"
	SchedulerPasscodeCleanup SchedulerName = "passcode_cleanup"
)
