package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"guestflow/internal/types"
)

// reservationColumns is the shared SELECT list for scanning reservations.
const reservationColumns = `id, organization_id, location_id, guest_name, guest_phone, guest_email,
	nationality, check_in, check_out, room_name, lock_id, amount_cents, currency_code,
	payment_link, access_code, check_in_link, status, invitation_sent_at, paid_at,
	last_message, last_message_at, created_at, updated_at`

// statusRankCase maps the status column to its transition rank in SQL so
// conditional updates can enforce forward-only transitions without a
// read-modify-write cycle.
const statusRankCase = `CASE status
	WHEN 'pending' THEN 0
	WHEN 'confirmed' THEN 1
	WHEN 'notification_sent' THEN 2
	WHEN 'checked_in' THEN 3
	WHEN 'checked_out' THEN 4
	WHEN 'cancelled' THEN 5
	ELSE -1 END`

// ReservationRepository provides data access for the reservations table.
// Mutations are field-level conditional UPDATEs so concurrent fulfillment
// runs converge on one value per artifact instead of overwriting each other.
type ReservationRepository struct {
	db DBTX
}

// NewReservationRepository creates a new ReservationRepository backed by the
// given database connection (pool or transaction).
func NewReservationRepository(db DBTX) *ReservationRepository {
	return &ReservationRepository{db: db}
}

// GetByID loads a reservation. Missing rows map to a not_found error so the
// queue treats them as non-retryable.
func (r *ReservationRepository) GetByID(ctx context.Context, id int64) (*types.Reservation, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id)

	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load reservation", err)
	}
	return res, nil
}

// SetPaymentLinkIfEmpty stores the payment link only when none exists and
// returns the winning value, which may be a previously stored link when a
// concurrent run got there first.
func (r *ReservationRepository) SetPaymentLinkIfEmpty(ctx context.Context, id int64, link string) (string, error) {
	var winner string
	err := r.db.QueryRow(ctx,
		`UPDATE reservations
		 SET payment_link = COALESCE(NULLIF(payment_link, ''), $2), updated_at = NOW()
		 WHERE id = $1
		 RETURNING payment_link`,
		id, link,
	).Scan(&winner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to set payment link", err)
	}
	return winner, nil
}

// SetAccessCodeIfEmpty stores the access code only when none exists and
// returns the winning value.
func (r *ReservationRepository) SetAccessCodeIfEmpty(ctx context.Context, id int64, code string) (string, error) {
	var winner string
	err := r.db.QueryRow(ctx,
		`UPDATE reservations
		 SET access_code = COALESCE(NULLIF(access_code, ''), $2), updated_at = NOW()
		 WHERE id = $1
		 RETURNING access_code`,
		id, code,
	).Scan(&winner)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to set access code", err)
	}
	return winner, nil
}

// ClearAccessCode removes the stored access code after the lock-side passcode
// has been revoked.
func (r *ReservationRepository) ClearAccessCode(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET access_code = NULL, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear access code", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	return nil
}

// SetCheckInLink stores the check-in link for the reservation.
func (r *ReservationRepository) SetCheckInLink(ctx context.Context, id int64, link string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET check_in_link = $2, updated_at = NOW() WHERE id = $1`,
		id, link)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set check-in link", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	return nil
}

// SetSentMessage records the body and time of the most recent guest message.
func (r *ReservationRepository) SetSentMessage(ctx context.Context, id int64, body string, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET last_message = $2, last_message_at = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, body, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record sent message", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	return nil
}

// AdvanceStatus moves the reservation to the given status only when that is
// a forward transition. A backward or sideways transition returns a conflict
// error and leaves the row untouched.
func (r *ReservationRepository) AdvanceStatus(ctx context.Context, id int64, status types.ReservationStatus) error {
	rank := status.Rank()
	if rank < 0 {
		return types.NewAppError(types.ErrCodeValidationBadPayload, "unknown reservation status: "+string(status), nil)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET status = $2, updated_at = NOW()
		 WHERE id = $1 AND (`+statusRankCase+`) < $3`,
		id, string(status), rank)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to advance reservation status", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	// Zero rows means either the reservation is missing or its status is
	// already at or past the requested one. Distinguish for the caller.
	var current string
	err = r.db.QueryRow(ctx, `SELECT status FROM reservations WHERE id = $1`, id).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", err)
		}
		return types.NewAppError(types.ErrCodeInternalDB, "failed to check reservation status", err)
	}
	return types.NewAppErrorWithDetails(types.ErrCodeConflictStatus,
		"status transition rejected", nil,
		map[string]any{"current": current, "requested": string(status)})
}

// MarkInvitationSent stamps invitation_sent_at once. Returns false without
// error when the invitation was already recorded, so duplicate scheduler
// runs stay idempotent.
func (r *ReservationRepository) MarkInvitationSent(ctx context.Context, id int64, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET invitation_sent_at = $2, updated_at = NOW()
		 WHERE id = $1 AND invitation_sent_at IS NULL`,
		id, at)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to mark invitation sent", err)
	}
	return tag.RowsAffected() > 0, nil
}

// MarkPaid stamps paid_at once; later webhook retries keep the first time.
func (r *ReservationRepository) MarkPaid(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET paid_at = COALESCE(paid_at, $2), updated_at = NOW()
		 WHERE id = $1`,
		id, at)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to mark reservation paid", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	return nil
}

// UpdateContact applies staff-supplied contact corrections. Nil fields keep
// the stored value.
func (r *ReservationRepository) UpdateContact(ctx context.Context, id int64, override types.ContactOverride) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE reservations SET
			guest_phone = COALESCE($2, guest_phone),
			guest_email = COALESCE($3, guest_email),
			guest_name = COALESCE($4, guest_name),
			updated_at = NOW()
		 WHERE id = $1`,
		id, override.Phone, override.Email, override.Name)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update guest contact", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundReservation, "reservation not found", nil)
	}
	return nil
}

// ListArrivingBetween returns reservations for the organization with a
// check-in inside [from, to) that have not yet received an invitation.
// Cancelled reservations are excluded.
func (r *ReservationRepository) ListArrivingBetween(ctx context.Context, orgID int64, from, to time.Time) ([]*types.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE organization_id = $1
		   AND check_in >= $2 AND check_in < $3
		   AND invitation_sent_at IS NULL
		   AND status <> 'cancelled'
		 ORDER BY check_in, id`,
		orgID, from, to)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list arriving reservations", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

// ListExpiredCodes returns reservations that still hold an access code with a
// checkout no later than the cutoff. The passcode cleanup scheduler applies
// the per-organization local-time window on top of this coarse filter.
func (r *ReservationRepository) ListExpiredCodes(ctx context.Context, cutoff time.Time) ([]*types.Reservation, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE access_code IS NOT NULL AND access_code <> ''
		   AND check_out <= $1
		 ORDER BY check_out, id`,
		cutoff)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list expired access codes", err)
	}
	defer rows.Close()

	return collectReservations(rows)
}

func collectReservations(rows pgx.Rows) ([]*types.Reservation, error) {
	var results []*types.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan reservation row", err)
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating reservation rows", err)
	}
	return results, nil
}

// scanReservation scans one reservation row in reservationColumns order.
// Nullable columns use pointer targets directly on the struct.
func scanReservation(row pgx.Row) (*types.Reservation, error) {
	var (
		res    types.Reservation
		status string
	)
	err := row.Scan(
		&res.ID,
		&res.OrganizationID,
		&res.LocationID,
		&res.GuestName,
		&res.GuestPhone,
		&res.GuestEmail,
		&res.Nationality,
		&res.CheckIn,
		&res.CheckOut,
		&res.RoomName,
		&res.LockID,
		&res.AmountCents,
		&res.CurrencyCode,
		&res.PaymentLink,
		&res.AccessCode,
		&res.CheckInLink,
		&status,
		&res.InvitationSentAt,
		&res.PaidAt,
		&res.LastMessage,
		&res.LastMessageAt,
		&res.CreatedAt,
		&res.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	res.Status = types.ReservationStatus(status)
	return &res, nil
}
