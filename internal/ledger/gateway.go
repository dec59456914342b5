// Package ledger talks to the dice prediction contract.
package ledger

import (
	"context"

	"github.com/shopspring/decimal"

	"dice-prediction-backend/internal/models"
)

// Gateway is the read/write surface of the contract used by the round
// controller and the history reconciler.
//
// SubmitBet blocks until the transaction is mined. Failures are returned as
// *models.SubmissionError. Once the transaction is broadcast the call no
// longer observes ctx cancellation.
type Gateway interface {
	SubmitBet(ctx context.Context, number uint8, amount decimal.Decimal) (*models.BetResult, error)
	GetPlayerEvents(ctx context.Context, player string) ([]models.RawGameEvent, error)
	GetGame(ctx context.Context, gameID uint64) (*models.GameRecord, error)
	GetBlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error)
}

type BalanceReader interface {
	Balance(ctx context.Context, address string) (decimal.Decimal, error)
}
