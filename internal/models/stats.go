package models

import "github.com/shopspring/decimal"

// PlayerStats is derived from a record sequence and has no identity of its own.
type PlayerStats struct {
	TotalGames     int             `json:"total_games"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	TotalWagered   decimal.Decimal `json:"total_wagered"`
	TotalWon       decimal.Decimal `json:"total_won"`
	TotalLost      decimal.Decimal `json:"total_lost"`
	NetProfit      decimal.Decimal `json:"net_profit"`
	WinRatePercent decimal.Decimal `json:"win_rate_percent"`
}
