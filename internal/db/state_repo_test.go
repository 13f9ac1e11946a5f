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

func TestCriteriaStateRepository_Find_Absent(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewCriteriaStateRepository(dbx)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(&mockRow{scanErr: pgx.ErrNoRows})

	s, err := repo.Find(context.Background(), "crit_1", "current")
	require.NoError(t, err, "absent state is not an error")
	assert.Nil(t, s)
}

func TestCriteriaStateRepository_Find_Success(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewCriteriaStateRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	notified := now.Add(-30 * time.Minute)

	dbx.On("QueryRow", mock.Anything, mock.AnythingOfType("string"), []any{"crit_1", "current"}).
		Return(&mockRow{values: []any{
			"crit_1", "current", true, "current|crit_1", notified, now,
		}})

	s, err := repo.Find(context.Background(), "crit_1", "current")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.True(t, s.LastConditionMet)
	assert.Equal(t, "current|crit_1", s.LastEventSignature)
	require.NotNil(t, s.LastNotifiedAt)
	assert.Equal(t, notified, *s.LastNotifiedAt)
}

func TestCriteriaStateRepository_Upsert(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewCriteriaStateRepository(dbx)
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.NewCommandTag("INSERT 0 1"), nil)

	err := repo.Upsert(context.Background(), &types.CriteriaState{
		CriteriaID:         "crit_1",
		ConditionKey:       "current",
		LastConditionMet:   true,
		LastEventSignature: "current|crit_1",
		LastNotifiedAt:     &now,
		UpdatedAt:          now,
	})
	require.NoError(t, err)
	dbx.AssertExpectations(t)
}

func TestCriteriaStateRepository_Upsert_DBError(t *testing.T) {
	dbx := new(mockDBTX)
	repo := NewCriteriaStateRepository(dbx)

	dbx.On("Exec", mock.Anything, mock.AnythingOfType("string"), mock.Anything).
		Return(pgconn.CommandTag{}, errors.New("deadlock detected"))

	err := repo.Upsert(context.Background(), &types.CriteriaState{
		CriteriaID:   "crit_1",
		ConditionKey: "current",
	})
	require.Error(t, err)

	var appErr *types.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, types.ErrCodeInternalDB, appErr.Code)
}
