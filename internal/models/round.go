package models

import "time"

type RoundStatus string

const (
	RoundIdle                 RoundStatus = "IDLE"
	RoundValidating           RoundStatus = "VALIDATING"
	RoundSubmitting           RoundStatus = "SUBMITTING"
	RoundAwaitingConfirmation RoundStatus = "AWAITING_CONFIRMATION"
	RoundResolving            RoundStatus = "RESOLVING"
	RoundSettled              RoundStatus = "SETTLED"
	RoundFailed               RoundStatus = "FAILED"
)

// Active reports whether a round in this status blocks a new bet.
func (s RoundStatus) Active() bool {
	switch s {
	case RoundValidating, RoundSubmitting, RoundAwaitingConfirmation, RoundResolving:
		return true
	}
	return false
}

func (s RoundStatus) Terminal() bool {
	return s == RoundSettled || s == RoundFailed
}

// GameRound is the state of the bet currently owned by the round controller.
type GameRound struct {
	Seq            uint64      `json:"seq"`
	Player         string      `json:"player,omitempty"`
	Status         RoundStatus `json:"status"`
	SelectedNumber uint8       `json:"selected_number"`
	BetAmount      string      `json:"bet_amount"`
	DiceResult     *uint8      `json:"dice_result"`
	Result         *BetResult  `json:"result,omitempty"`
	Error          *RoundError `json:"error,omitempty"`
	StartedAt      time.Time   `json:"started_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// RoundError is the serialisable form of a validation or submission failure.
type RoundError struct {
	Kind    string    `json:"kind"`
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

type BetRequest struct {
	Number uint8  `json:"number"`
	Amount string `json:"amount" binding:"required"`
}
