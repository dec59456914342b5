package services

import (
	"github.com/shopspring/decimal"

	"dice-prediction-backend/internal/models"
)

var hundred = decimal.NewFromInt(100)

// AggregateStats derives the totals of a record sequence. It has no state and
// gives the same answer for the same input regardless of order.
func AggregateStats(records []models.GameRecord) models.PlayerStats {
	stats := models.PlayerStats{
		TotalWagered:   decimal.Zero,
		TotalWon:       decimal.Zero,
		TotalLost:      decimal.Zero,
		NetProfit:      decimal.Zero,
		WinRatePercent: decimal.Zero,
	}

	for _, rec := range records {
		stats.TotalGames++
		stats.TotalWagered = stats.TotalWagered.Add(rec.BetAmount)
		if rec.Won {
			stats.Wins++
			stats.TotalWon = stats.TotalWon.Add(rec.Payout)
		} else {
			stats.Losses++
			stats.TotalLost = stats.TotalLost.Add(rec.BetAmount)
		}
	}

	stats.NetProfit = stats.TotalWon.Sub(stats.TotalLost)
	if stats.TotalGames > 0 {
		stats.WinRatePercent = decimal.NewFromInt(int64(stats.Wins)).
			Mul(hundred).
			DivRound(decimal.NewFromInt(int64(stats.TotalGames)), 2)
	}

	return stats
}
