package db

import (
	"context"

	"guestflow/internal/types"
)

// NotificationLogRepository provides append-only data access for the
// notification_log table. Rows record every delivery attempt on every
// channel and are never updated.
type NotificationLogRepository struct {
	db DBTX
}

// NewNotificationLogRepository creates a new NotificationLogRepository backed
// by the given database connection (pool or transaction).
func NewNotificationLogRepository(db DBTX) *NotificationLogRepository {
	return &NotificationLogRepository{db: db}
}

// Append inserts one audit entry and fills in the generated ID and timestamp.
func (r *NotificationLogRepository) Append(ctx context.Context, entry *types.NotificationLogEntry) error {
	err := r.db.QueryRow(ctx,
		`INSERT INTO notification_log
		 (reservation_id, channel, message_type, recipient, success, detail, used_template)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id, created_at`,
		entry.ReservationID,
		string(entry.Channel),
		string(entry.MessageType),
		entry.Recipient,
		entry.Success,
		entry.Detail,
		entry.UsedTemplate,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to append notification log entry", err)
	}
	return nil
}

// ListByReservation returns all attempts for a reservation, oldest first.
func (r *NotificationLogRepository) ListByReservation(ctx context.Context, reservationID int64) ([]types.NotificationLogEntry, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, reservation_id, channel, message_type, recipient, success, detail,
		        used_template, created_at
		 FROM notification_log
		 WHERE reservation_id = $1
		 ORDER BY id`,
		reservationID)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list notification log", err)
	}
	defer rows.Close()

	var results []types.NotificationLogEntry
	for rows.Next() {
		var (
			e           types.NotificationLogEntry
			channel     string
			messageType string
		)
		if err := rows.Scan(
			&e.ID,
			&e.ReservationID,
			&channel,
			&messageType,
			&e.Recipient,
			&e.Success,
			&e.Detail,
			&e.UsedTemplate,
			&e.CreatedAt,
		); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan notification log row", err)
		}
		e.Channel = types.Channel(channel)
		e.MessageType = types.MessageType(messageType)
		results = append(results, e)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating notification log rows", err)
	}

	return results, nil
}

// CountByReservation returns the number of logged attempts for a reservation.
func (r *NotificationLogRepository) CountByReservation(ctx context.Context, reservationID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_log WHERE reservation_id = $1`,
		reservationID).Scan(&count)
	if err != nil {
		return 0, types.NewAppError(types.ErrCodeInternalDB, "failed to count notification log entries", err)
	}
	return count, nil
}
