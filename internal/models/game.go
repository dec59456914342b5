package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	MinBetNumber uint8 = 1
	MaxBetNumber uint8 = 6

	// EtherDecimals is the number of fractional digits of the native currency.
	EtherDecimals int32 = 18

	SepoliaChainID     int64 = 11155111
	SepoliaExplorerURL       = "https://sepolia.etherscan.io"
)

// GameRecord is one settled game as reported by the ledger's GamePlayed log.
// Records are values: copy them, never edit a record that is already part
// of a published sequence.
type GameRecord struct {
	GameID       uint64          `json:"game_id"`
	Player       string          `json:"player"`
	BetNumber    uint8           `json:"bet_number"`
	ResultNumber uint8           `json:"result_number"`
	BetAmount    decimal.Decimal `json:"bet_amount"`
	Payout       decimal.Decimal `json:"payout"`
	Won          bool            `json:"won"`
	BlockNumber  uint64          `json:"block_number"`
	Timestamp    *int64          `json:"timestamp"`
	TxHash       string          `json:"tx_hash"`
}

// HasTimestamp reports whether the block time of the record is known.
func (g GameRecord) HasTimestamp() bool {
	return g.Timestamp != nil
}

// TimestampOrZero returns the block time, or 0 when it is unknown.
func (g GameRecord) TimestampOrZero() int64 {
	if g.Timestamp == nil {
		return 0
	}
	return *g.Timestamp
}

// WithTimestamp returns a copy of the record carrying ts.
func (g GameRecord) WithTimestamp(ts int64) GameRecord {
	g.Timestamp = &ts
	return g
}

// RawGameEvent is a GamePlayed log entry before validation. Args holds the
// decoded event fields keyed by their ABI names; their dynamic types depend
// on the transport.
type RawGameEvent struct {
	Args        map[string]interface{} `json:"args"`
	BlockNumber uint64                 `json:"block_number"`
	TxHash      string                 `json:"tx_hash"`
	LogIndex    uint                   `json:"log_index"`
	Removed     bool                   `json:"removed"`
	Timestamp   *int64                 `json:"timestamp,omitempty"`
}

// BetResult is what the ledger reports back for a confirmed bet.
type BetResult struct {
	TxHash       string          `json:"tx_hash"`
	GameID       uint64          `json:"game_id"`
	BetNumber    uint8           `json:"bet_number"`
	ResultNumber *uint8          `json:"result_number"`
	Won          bool            `json:"won"`
	Payout       decimal.Decimal `json:"payout"`
	BetAmount    decimal.Decimal `json:"bet_amount"`
}

// RecentResult is an entry of the session's recent-results strip.
type RecentResult struct {
	GameID    uint64          `json:"game_id"`
	BetNumber uint8           `json:"bet_number"`
	Rolled    *uint8          `json:"rolled"`
	Won       bool            `json:"won"`
	Amount    string          `json:"amount"`
	Payout    decimal.Decimal `json:"payout"`
	SettledAt int64           `json:"settled_at"`
}

func ValidBetNumber(n uint8) bool {
	return n >= MinBetNumber && n <= MaxBetNumber
}

func ExplorerURL(txHash string) string {
	return fmt.Sprintf("%s/tx/%s", SepoliaExplorerURL, txHash)
}
