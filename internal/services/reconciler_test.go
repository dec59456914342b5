package services_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
)

func newReconciler(gw *mockGateway) *services.Reconciler {
	return services.NewReconciler(gw, 4, services.NewMetrics(prometheus.NewRegistry()), zerolog.Nop())
}

func withTimestamp(ev models.RawGameEvent, ts int64) models.RawGameEvent {
	ev.Timestamp = &ts
	return ev
}

func TestReconcileQuarantinesBadEntries(t *testing.T) {
	good := gameEvent(1, 10, "0.01", true, "0.05")

	removed := gameEvent(2, 10, "0.01", false, "0")
	removed.Removed = true

	malformed := gameEvent(3, 10, "0.01", false, "0")
	delete(malformed.Args, ledger.ArgWon)

	mismatch := gameEvent(4, 10, "0.01", true, "0")

	foreign := gameEvent(5, 10, "0.01", false, "0")
	foreign.Args[ledger.ArgPlayer] = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")

	negative := gameEvent(6, 10, "0.01", false, "0")
	negative.Args[ledger.ArgBetAmount] = big.NewInt(-1)

	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).
		Return([]models.RawGameEvent{good, removed, malformed, mismatch, foreign, negative}, nil)
	gw.On("GetBlockTimestamp", mock.Anything, uint64(10)).Return(int64(1000), nil).Once()

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, uint64(1), rec.GameID)
	assert.Equal(t, uint8(3), rec.BetNumber)
	assert.Equal(t, "0.05", rec.Payout.String())
	assert.Equal(t, int64(1000), rec.TimestampOrZero())
	gw.AssertExpectations(t)
}

func TestReconcileDedupesByGameID(t *testing.T) {
	stale := gameEvent(1, 5, "0.01", false, "0")
	latest := gameEvent(1, 7, "0.01", true, "0.05")

	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).
		Return([]models.RawGameEvent{stale, latest}, nil)
	gw.On("GetBlockTimestamp", mock.Anything, uint64(7)).Return(int64(700), nil).Once()

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Won)
	assert.Equal(t, uint64(7), records[0].BlockNumber)
	gw.AssertNotCalled(t, "GetBlockTimestamp", mock.Anything, uint64(5))
}

func TestReconcileLooksUpEachBlockOnce(t *testing.T) {
	events := []models.RawGameEvent{
		gameEvent(1, 5, "0.01", false, "0"),
		gameEvent(2, 5, "0.01", false, "0"),
		gameEvent(3, 5, "0.01", false, "0"),
		gameEvent(4, 6, "0.01", false, "0"),
	}

	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(events, nil)
	gw.On("GetBlockTimestamp", mock.Anything, uint64(5)).Return(int64(500), nil).Once()
	gw.On("GetBlockTimestamp", mock.Anything, uint64(6)).Return(int64(600), nil).Once()

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)

	assert.Equal(t, []uint64{4, 3, 2, 1}, gameIDs(records))
	gw.AssertNumberOfCalls(t, "GetBlockTimestamp", 2)
}

func TestReconcileSkipsLookupWhenTimestampKnown(t *testing.T) {
	events := []models.RawGameEvent{
		withTimestamp(gameEvent(1, 5, "0.01", false, "0"), 100),
		withTimestamp(gameEvent(2, 6, "0.01", false, "0"), 200),
	}

	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(events, nil)

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)

	assert.Equal(t, []uint64{2, 1}, gameIDs(records))
	gw.AssertNotCalled(t, "GetBlockTimestamp", mock.Anything, mock.Anything)
}

func TestReconcileSameTimestampOrdersByGameID(t *testing.T) {
	events := []models.RawGameEvent{
		gameEvent(7, 42, "0.01", false, "0"),
		gameEvent(12, 42, "0.02", true, "0.1"),
	}

	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(events, nil)
	gw.On("GetBlockTimestamp", mock.Anything, uint64(42)).Return(int64(1700000000), nil).Once()

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)

	assert.Equal(t, []uint64{12, 7}, gameIDs(records))
}

func TestReconcileFailedTimestampSortsLast(t *testing.T) {
	var events []models.RawGameEvent
	gw := new(mockGateway)
	for i := uint64(1); i <= 5; i++ {
		events = append(events, gameEvent(i, i, "0.01", false, "0"))
		if i == 3 {
			gw.On("GetBlockTimestamp", mock.Anything, i).Return(int64(0), errors.New("header not found")).Once()
			continue
		}
		gw.On("GetBlockTimestamp", mock.Anything, i).Return(int64(i*100), nil).Once()
	}
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(events, nil)

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)
	require.NoError(t, err)
	require.Len(t, records, 5)

	assert.Equal(t, []uint64{5, 4, 2, 1, 3}, gameIDs(records))
	assert.False(t, records[4].HasTimestamp())
	for _, rec := range records[:4] {
		assert.True(t, rec.HasTimestamp())
	}
}

func TestReconcileFetchFailureYieldsEmptyHistory(t *testing.T) {
	gw := new(mockGateway)
	gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(nil, errors.New("connection refused"))

	records, err := newReconciler(gw).Reconcile(context.Background(), testPlayer)

	assert.NotNil(t, records)
	assert.Empty(t, records)

	var rErr *models.ReconciliationError
	require.ErrorAs(t, err, &rErr)
	assert.Equal(t, "fetch_events", rErr.Op)
	assert.Equal(t, testPlayer, rErr.Player)
	assert.ErrorContains(t, err, "connection refused")
}

func TestSortByRecency(t *testing.T) {
	records := []models.GameRecord{
		record(1, 0, "0.01", false, "0"),
		record(2, 100, "0.01", false, "0"),
		record(3, 300, "0.01", false, "0"),
		record(4, 300, "0.01", false, "0"),
		record(5, 0, "0.01", false, "0"),
	}

	services.SortByRecency(records)

	assert.Equal(t, []uint64{4, 3, 2, 5, 1}, gameIDs(records))
}
