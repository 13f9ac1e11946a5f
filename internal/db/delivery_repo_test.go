package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/types"
)

func deliveryRowValues(id string, status string, now time.Time) []any {
	return []any{
		id, "alrt_abc", "usr_1", "EMAIL", "user@example.com", status,
		2, "upstream timeout", nil,
		now, nil, now, now,
	}
}

func TestDeliveryRepository_CreateIfAbsent(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	created, err := repo.CreateIfAbsent(context.Background(), &types.DeliveryRecord{
		ID:            "del_alrt_abc_EMAIL",
		AlertID:       "alrt_abc",
		UserID:        "usr_1",
		Channel:       types.ChannelEmail,
		Destination:   "user@example.com",
		Status:        types.DeliveryStatusPending,
		NextAttemptAt: &now,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	require.NoError(t, err)
	assert.True(t, created)
}

func TestDeliveryRepository_CreateIfAbsent_Duplicate(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 0"), nil)

	created, err := repo.CreateIfAbsent(context.Background(), &types.DeliveryRecord{
		ID:      "del_alrt_abc_EMAIL",
		AlertID: "alrt_abc",
		Channel: types.ChannelEmail,
	})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestDeliveryRepository_GetByID_NotFound(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	_, err := repo.GetByID(context.Background(), "del_missing")
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeNotFoundDelivery, appErr.Code)
}

func TestDeliveryRepository_FindByAlertAndChannel_Absent(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	d, err := repo.FindByAlertAndChannel(context.Background(), "alrt_abc", types.ChannelEmail)
	require.NoError(t, err, "absence is a normal state for Find")
	assert.Nil(t, d)
}

func TestDeliveryRepository_FindByAlertAndChannel_Found(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"),
		[]any{"alrt_abc", "EMAIL"}).
		Return(&mockRow{values: deliveryRowValues("del_1", "RETRY_SCHEDULED", now)})

	d, err := repo.FindByAlertAndChannel(context.Background(), "alrt_abc", types.ChannelEmail)
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, types.DeliveryStatusRetryScheduled, d.Status)
	assert.Equal(t, 2, d.AttemptCount)
	assert.Equal(t, "upstream timeout", d.LastError)
	assert.Empty(t, d.ProviderMessageID)
}

func TestDeliveryRepository_Update(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("UPDATE 1"), nil)

	err := repo.Update(context.Background(), &types.DeliveryRecord{
		ID:           "del_1",
		Status:       types.DeliveryStatusSent,
		AttemptCount: 1,
		SentAt:       &now,
		UpdatedAt:    now,
	})
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestDeliveryRepository_FindDue(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	rows := newMockRows([][]any{
		deliveryRowValues("del_1", "PENDING", now),
		deliveryRowValues("del_2", "RETRY_SCHEDULED", now),
	})
	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"),
		[]any{"PENDING", "RETRY_SCHEDULED", now, 100}).
		Return(rows, nil)

	out, err := repo.FindDue(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "del_1", out[0].ID)
	assert.Equal(t, "del_2", out[1].ID)
}

func TestDeliveryRepository_FindDue_QueryError(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewDeliveryRepository(dbx)

	dbx.On("Query", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(nil, errors.New("connection refused"))

	_, err := repo.FindDue(context.Background(), time.Now(), 100)
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
