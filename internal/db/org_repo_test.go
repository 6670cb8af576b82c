package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"guestflow/internal/types"
)

func orgRowValues(id int64) []any {
	created := time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	return []any{
		id, "Hostal Nube", "CO", "America/Bogota",
		"https://checkin.example.com", int64(8000000), created,
	}
}

func TestOrgRepository_GetByID_Success(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: orgRowValues(7)})

	org, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Hostal Nube", org.Name)
	assert.Equal(t, "America/Bogota", org.Timezone)
	assert.Equal(t, "CO", org.CountryCode)
}

func TestOrgRepository_GetByID_NotFound(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), 99)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeNotFoundOrg, appErr.Code)
}

func TestOrgRepository_ListAll(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	rows := newMockRows([][]any{orgRowValues(7), orgRowValues(8)})
	db.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(rows, nil)

	orgs, err := repo.ListAll(context.Background())
	require.NoError(t, err)
	require.Len(t, orgs, 2)
	assert.Equal(t, int64(7), orgs[0].ID)
	assert.Equal(t, int64(8), orgs[1].ID)
}

func TestOrgRepository_GetOverride_Found(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{row: []any{"Hola {{name}}, bienvenido"}})

	body, ok, err := repo.GetOverride(context.Background(), 7, 0, types.MessageInvitation, types.LangSpanish)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hola {{name}}, bienvenido", body)
}

func TestOrgRepository_GetOverride_Missing(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: pgx.ErrNoRows})

	_, ok, err := repo.GetOverride(context.Background(), 7, 3, types.MessageAccessCode, types.LangEnglish)
	require.NoError(t, err, "a missing override is not an error")
	assert.False(t, ok)
}

func TestOrgRepository_GetOverride_DBError(t *testing.T) {
	db := new(mockDBTX)
	repo := NewOrgRepository(db)

	db.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{err: errors.New("connection refused")})

	_, _, err := repo.GetOverride(context.Background(), 7, 0, types.MessageInvitation, types.LangSpanish)
	var appErr *types.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
