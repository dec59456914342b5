package services_test

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/models"
)

const (
	testKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPlayer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	otherKey   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SubmitBet(ctx context.Context, number uint8, amount decimal.Decimal) (*models.BetResult, error) {
	args := m.Called(ctx, number, amount)
	v, _ := args.Get(0).(*models.BetResult)
	return v, args.Error(1)
}

func (m *mockGateway) GetPlayerEvents(ctx context.Context, player string) ([]models.RawGameEvent, error) {
	args := m.Called(ctx, player)
	v, _ := args.Get(0).([]models.RawGameEvent)
	return v, args.Error(1)
}

func (m *mockGateway) GetGame(ctx context.Context, gameID uint64) (*models.GameRecord, error) {
	args := m.Called(ctx, gameID)
	v, _ := args.Get(0).(*models.GameRecord)
	return v, args.Error(1)
}

func (m *mockGateway) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error) {
	args := m.Called(ctx, blockNumber)
	return args.Get(0).(int64), args.Error(1)
}

type mockBalances struct {
	mock.Mock
}

func (m *mockBalances) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

var (
	_ ledger.Gateway       = (*mockGateway)(nil)
	_ ledger.BalanceReader = (*mockBalances)(nil)
)

// recorder captures notifications in order.
type recorder struct {
	mu        sync.Mutex
	rounds    []models.GameRound
	refreshes []string
	refreshed chan string
}

func newRecorder() *recorder {
	return &recorder{refreshed: make(chan string, 16)}
}

func (r *recorder) RoundChanged(address string, round models.GameRound) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rounds = append(r.rounds, round)
}

func (r *recorder) HistoryRefreshed(address string, totalGames int) {
	r.refreshed <- address
}

func (r *recorder) RequestRefresh(address string) {
	r.mu.Lock()
	r.refreshes = append(r.refreshes, address)
	r.mu.Unlock()
}

func (r *recorder) statuses() []models.RoundStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.RoundStatus, 0, len(r.rounds))
	for _, round := range r.rounds {
		out = append(out, round.Status)
	}
	return out
}

func (r *recorder) refreshCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.refreshes)
}

func wei(ether string) *big.Int {
	return models.ToWei(decimal.RequireFromString(ether))
}

func gameEvent(gameID uint64, block uint64, betEther string, won bool, payoutEther string) models.RawGameEvent {
	return models.RawGameEvent{
		Args: map[string]interface{}{
			ledger.ArgGameID:          new(big.Int).SetUint64(gameID),
			ledger.ArgPlayer:          common.HexToAddress(testPlayer),
			ledger.ArgBetAmount:       wei(betEther),
			ledger.ArgPredictedNumber: uint8(3),
			ledger.ArgResultNumber:    uint8(3),
			ledger.ArgWon:             won,
			ledger.ArgPayout:          wei(payoutEther),
		},
		BlockNumber: block,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(gameID)).Hex(),
	}
}

func record(gameID uint64, ts int64, betEther string, won bool, payoutEther string) models.GameRecord {
	rec := models.GameRecord{
		GameID:      gameID,
		Player:      testPlayer,
		BetNumber:   3,
		BetAmount:   decimal.RequireFromString(betEther),
		Payout:      decimal.RequireFromString(payoutEther),
		Won:         won,
		BlockNumber: gameID,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(gameID)).Hex(),
	}
	if ts != 0 {
		rec = rec.WithTimestamp(ts)
	}
	return rec
}
