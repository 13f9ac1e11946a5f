package delivery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stormwatch/internal/types"
)

type fakeSweeperStore struct {
	due     []*types.DeliveryRecord
	err     error
	gotNow  time.Time
	gotSize int
}

func (s *fakeSweeperStore) FindDue(_ context.Context, now time.Time, limit int) ([]*types.DeliveryRecord, error) {
	s.gotNow = now
	s.gotSize = limit
	return s.due, s.err
}

func TestSweep_PublishesDueDeliveries(t *testing.T) {
	store := &fakeSweeperStore{due: []*types.DeliveryRecord{
		{ID: "del-1"},
		{ID: "del-2"},
	}}
	tasks := &fakeTaskQueue{}
	s := NewSweeper(store, tasks, NoopMetrics{}, fixedClock{workerNow}, nopLogger{}, 100, true)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"del-1", "del-2"}, tasks.published)
	assert.Equal(t, workerNow, store.gotNow)
	assert.Equal(t, 100, store.gotSize)
}

func TestSweep_DisabledSkips(t *testing.T) {
	store := &fakeSweeperStore{due: []*types.DeliveryRecord{{ID: "del-1"}}}
	tasks := &fakeTaskQueue{}
	s := NewSweeper(store, tasks, NoopMetrics{}, fixedClock{workerNow}, nopLogger{}, 100, false)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, tasks.published)
}

func TestSweep_QueryErrorPropagates(t *testing.T) {
	dbErr := errors.New("connection reset")
	store := &fakeSweeperStore{err: dbErr}
	s := NewSweeper(store, &fakeTaskQueue{}, NoopMetrics{}, fixedClock{workerNow}, nopLogger{}, 100, true)

	_, err := s.Sweep(context.Background())
	assert.ErrorIs(t, err, dbErr)
}

func TestSweep_PublishFailureContinues(t *testing.T) {
	store := &fakeSweeperStore{due: []*types.DeliveryRecord{
		{ID: "del-1"},
		{ID: "del-2"},
	}}
	tasks := &fakeTaskQueue{err: errors.New("queue unavailable")}
	s := NewSweeper(store, tasks, NoopMetrics{}, fixedClock{workerNow}, nopLogger{}, 100, true)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "all publishes failed but the sweep itself succeeds")
}

func TestSweep_EmptyBatch(t *testing.T) {
	s := NewSweeper(&fakeSweeperStore{}, &fakeTaskQueue{}, NoopMetrics{}, fixedClock{workerNow}, nopLogger{}, 50, true)

	n, err := s.Sweep(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}
