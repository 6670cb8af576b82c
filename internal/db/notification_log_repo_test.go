package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guestflow/internal/api"
	"guestflow/internal/types"
)

// The HTTP layer consumes this repo through its narrow reader interface.
var _ api.NotificationReader = (*NotificationLogRepository)(nil)

func TestNotificationLogRepository_Append_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationLogRepository(db)

	created := time.Date(2026, 8, 30, 8, 5, 0, 0, time.UTC)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{int64(101), created}})

	entry := &types.NotificationLogEntry{
		ReservationID: 42,
		Channel:       types.ChannelWhatsApp,
		MessageType:   types.MessageInvitation,
		Recipient:     "+573001112233",
		Success:       true,
		Detail:        "wamid.1",
	}
	err := repo.Append(context.Background(), entry)
	require.NoError(t, err)
	assert.Equal(t, int64(101), entry.ID)
	assert.Equal(t, created, entry.CreatedAt)
	db.AssertExpectations(t)
}

func TestNotificationLogRepository_Append_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationLogRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: errors.New("connection refused")})

	err := repo.Append(context.Background(), &types.NotificationLogEntry{ReservationID: 42})
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}

func TestNotificationLogRepository_ListByReservation(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationLogRepository(db)

	created := time.Date(2026, 8, 30, 8, 5, 0, 0, time.UTC)
	rows := newMockRows([][]any{
		{int64(1), int64(42), "whatsapp", "invitation", "+573001112233", false, "window closed", true, created},
		{int64(2), int64(42), "email", "invitation", "ana@example.com", true, "msg-1", false, created},
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	entries, err := repo.ListByReservation(context.Background(), 42)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, types.ChannelWhatsApp, entries[0].Channel)
	assert.True(t, entries[0].UsedTemplate)
	assert.False(t, entries[0].Success)
	assert.Equal(t, types.ChannelEmail, entries[1].Channel)
	assert.True(t, entries[1].Success)
}

func TestNotificationLogRepository_CountByReservation(t *testing.T) {
	db := new(mockDBTX)
	repo := NewNotificationLogRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{3}})

	count, err := repo.CountByReservation(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
