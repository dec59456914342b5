package services

import "dice-prediction-backend/internal/models"

// RoundNotifier receives every round transition of a player.
type RoundNotifier interface {
	RoundChanged(address string, round models.GameRound)
}

// HistoryNotifier is told when a new history snapshot has been installed.
type HistoryNotifier interface {
	HistoryRefreshed(address string, totalGames int)
}

type Broadcaster interface {
	RoundNotifier
	HistoryNotifier
}
