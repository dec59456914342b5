package services

import "time"

const (
	KeyUserSession = "session:%s:%s"
	KeyRateLimit   = "ratelimit:%s:%s"

	TTLUserSession = 24 * time.Hour

	ActionBet = "bet"

	DefaultRateLimitBets = 30 // Max 30 bets per minute
)
