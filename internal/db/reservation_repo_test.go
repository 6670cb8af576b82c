package db

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guestflow/internal/api"
	"guestflow/internal/types"
)

var _ api.ReservationReader = (*ReservationRepository)(nil)

// --- Mock DBTX ---
//
// mockDBTX, mockRow, and mockRows are shared by the other _test.go files in
// this package.

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

// assignScanDest copies a mock column value into a Scan destination,
// wrapping plain values into pointer destinations for nullable columns.
func assignScanDest(dest, val any) {
	dv := reflect.ValueOf(dest).Elem()
	if val == nil {
		dv.Set(reflect.Zero(dv.Type()))
		return
	}
	v := reflect.ValueOf(val)
	if v.Type().AssignableTo(dv.Type()) {
		dv.Set(v)
		return
	}
	if dv.Kind() == reflect.Ptr && v.Type().AssignableTo(dv.Type().Elem()) {
		p := reflect.New(dv.Type().Elem())
		p.Elem().Set(v)
		dv.Set(p)
		return
	}
	dv.Set(v.Convert(dv.Type()))
}

// --- Mock Row ---

type mockRow struct {
	row []any
	err error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		assignScanDest(d, r.row[i])
	}
	return nil
}

// --- Mock Rows ---

type mockRows struct {
	data    [][]any
	idx     int
	closed  bool
	scanErr error
	errVal  error
}

func newMockRows(data [][]any) *mockRows {
	return &mockRows{data: data, idx: -1}
}

func (r *mockRows) Next() bool {
	if r.closed {
		return false
	}
	r.idx++
	return r.idx < len(r.data)
}

func (r *mockRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		assignScanDest(d, row[i])
	}
	return nil
}

func (r *mockRows) Close()                                       { r.closed = true }
func (r *mockRows) Err() error                                   { return r.errVal }
func (r *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *mockRows) RawValues() [][]byte                          { return nil }
func (r *mockRows) Values() ([]any, error)                       { return nil, nil }
func (r *mockRows) Conn() *pgx.Conn                              { return nil }

// reservationRowValues builds a mock row in reservationColumns order.
func reservationRowValues(id int64, status string) []any {
	created := time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)
	checkIn := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)
	checkOut := time.Date(2026, 9, 4, 11, 0, 0, 0, time.UTC)
	return []any{
		id, int64(7), int64(3), "Ana Gómez", "+573001112233", "ana@example.com",
		"Colombia", checkIn, checkOut, "Room 4", nil, int64(15000000), "COP",
		nil, nil, nil, status, nil, nil, nil, nil, created, created,
	}
}

// --- ReservationRepository Tests ---

func TestReservationRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: reservationRowValues(42, "confirmed")})

	res, err := repo.GetByID(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, int64(42), res.ID)
	assert.Equal(t, "Ana Gómez", res.GuestName)
	assert.Equal(t, types.StatusConfirmed, res.Status)
	require.NotNil(t, res.GuestPhone)
	assert.Equal(t, "+573001112233", *res.GuestPhone)
	assert.Nil(t, res.LockID)
	db.AssertExpectations(t)
}

func TestReservationRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), 999)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundReservation, appErr.Code)
	assert.False(t, appErr.Code.Retryable())
}

func TestReservationRepository_SetPaymentLinkIfEmpty_NewLink(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{"https://pay.example/new"}})

	winner, err := repo.SetPaymentLinkIfEmpty(context.Background(), 42, "https://pay.example/new")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/new", winner)
}

func TestReservationRepository_SetPaymentLinkIfEmpty_KeepsExisting(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	// The conditional UPDATE returns the previously stored value when a
	// concurrent run already wrote one.
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{"https://pay.example/existing"}})

	winner, err := repo.SetPaymentLinkIfEmpty(context.Background(), 42, "https://pay.example/other")
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/existing", winner)
}

func TestReservationRepository_AdvanceStatus_Forward(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.AdvanceStatus(context.Background(), 42, types.StatusNotificationSent)
	require.NoError(t, err)
	db.AssertExpectations(t)
}

func TestReservationRepository_AdvanceStatus_Regression(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{"checked_in"}})

	err := repo.AdvanceStatus(context.Background(), 42, types.StatusNotificationSent)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeConflictStatus, appErr.Code)
	assert.Equal(t, "checked_in", appErr.Details["current"])
}

func TestReservationRepository_AdvanceStatus_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)
	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: pgx.ErrNoRows})

	err := repo.AdvanceStatus(context.Background(), 999, types.StatusNotificationSent)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundReservation, appErr.Code)
}

func TestReservationRepository_AdvanceStatus_UnknownStatus(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	err := repo.AdvanceStatus(context.Background(), 42, types.ReservationStatus("archived"))
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeValidationBadPayload, appErr.Code)
	db.AssertNotCalled(t, "Exec")
}

func TestReservationRepository_MarkInvitationSent_Idempotent(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 0"), nil)

	marked, err := repo.MarkInvitationSent(context.Background(), 42, time.Now())
	require.NoError(t, err)
	assert.False(t, marked, "second mark should report already sent without error")
}

func TestReservationRepository_ListArrivingBetween(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	rows := newMockRows([][]any{
		reservationRowValues(1, "confirmed"),
		reservationRowValues(2, "pending"),
	})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	from := time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC)
	results, err := repo.ListArrivingBetween(context.Background(), 7, from, from.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(1), results[0].ID)
	assert.Equal(t, types.StatusPending, results[1].Status)
}

func TestReservationRepository_ListExpiredCodes_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewReservationRepository(db)

	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.ListExpiredCodes(context.Background(), time.Now())
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
