package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/wallet"
)

const RecentResultsLimit = 5

// WalletSessions is the session collaborator of the round controller.
type WalletSessions interface {
	Current() wallet.Session
	Subscribe(fn wallet.Listener) func()
}

// Refresher is signalled after every settled round.
type Refresher interface {
	RequestRefresh(address string)
}

type RoundConfig struct {
	MinBet        decimal.Decimal
	RollDuration  time.Duration
	DisplayWindow time.Duration
}

// Ticket tracks one accepted bet until it reaches SETTLED or FAILED.
type Ticket struct {
	// Round is the state at the moment PlaceBet returned.
	Round models.GameRound

	done  chan struct{}
	final models.GameRound
}

// Done is closed once the round is terminal.
func (t *Ticket) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the round is terminal or ctx ends.
func (t *Ticket) Wait(ctx context.Context) (models.GameRound, error) {
	select {
	case <-t.done:
		return t.final, nil
	case <-ctx.Done():
		return models.GameRound{}, ctx.Err()
	}
}

// RoundController drives a single bet at a time through validation,
// submission, confirmation and the result reveal.
type RoundController struct {
	gateway   ledger.Gateway
	balances  ledger.BalanceReader
	sessions  WalletSessions
	refresher Refresher
	notifier  RoundNotifier
	metrics   *Metrics
	cfg       RoundConfig
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	seq         uint64
	round       models.GameRound
	recent      []models.RecentResult
	resetTimer  *time.Timer
	unsubscribe func()
}

func NewRoundController(
	gateway ledger.Gateway,
	balances ledger.BalanceReader,
	sessions WalletSessions,
	refresher Refresher,
	notifier RoundNotifier,
	metrics *Metrics,
	cfg RoundConfig,
	logger zerolog.Logger,
) *RoundController {
	ctx, cancel := context.WithCancel(context.Background())

	c := &RoundController{
		gateway:   gateway,
		balances:  balances,
		sessions:  sessions,
		refresher: refresher,
		notifier:  notifier,
		metrics:   metrics,
		cfg:       cfg,
		logger:    logging.Component(logger, "round"),
		ctx:       ctx,
		cancel:    cancel,
		round:     models.GameRound{Status: models.RoundIdle},
	}
	c.unsubscribe = sessions.Subscribe(c.onSessionChange)

	return c
}

// Close detaches from the wallet session and aborts submissions that have
// not been broadcast yet.
func (c *RoundController) Close() {
	c.unsubscribe()
	c.cancel()

	c.mu.Lock()
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.mu.Unlock()
}

func (c *RoundController) Round() models.GameRound {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.round
}

// Recent returns the last settled results of the session, newest first.
func (c *RoundController) Recent() []models.RecentResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RecentResult, len(c.recent))
	copy(out, c.recent)
	return out
}

// PreloadRecent seeds the recent results from history when the session has
// none of its own yet.
func (c *RoundController) PreloadRecent(records []models.GameRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.recent) > 0 {
		return
	}
	for _, rec := range records {
		if len(c.recent) == RecentResultsLimit {
			break
		}
		rolled := rec.ResultNumber
		c.recent = append(c.recent, models.RecentResult{
			GameID:    rec.GameID,
			BetNumber: rec.BetNumber,
			Rolled:    &rolled,
			Won:       rec.Won,
			Amount:    rec.BetAmount.String(),
			Payout:    rec.Payout,
			SettledAt: rec.TimestampOrZero(),
		})
	}
}

// PlaceBet starts a round for the connected wallet. While another round is
// between VALIDATING and RESOLVING it returns false and changes nothing.
//
// Validation runs before PlaceBet returns; a rejected bet comes back as a
// FAILED round. An accepted bet continues in the background and the ticket
// reports when it is terminal.
func (c *RoundController) PlaceBet(ctx context.Context, number uint8, amount string) (*Ticket, bool) {
	session := c.sessions.Current()

	c.mu.Lock()
	if c.round.Status.Active() {
		current := c.round
		c.mu.Unlock()
		return &Ticket{Round: current}, false
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.seq++
	now := time.Now()
	c.round = models.GameRound{
		Seq:            c.seq,
		Player:         session.Address,
		Status:         models.RoundValidating,
		SelectedNumber: number,
		BetAmount:      amount,
		StartedAt:      now,
		UpdatedAt:      now,
	}
	seq := c.seq
	validating := c.round
	c.mu.Unlock()
	c.publish(validating)

	ticket := &Ticket{done: make(chan struct{})}

	value, err := c.validate(ctx, session, number, amount)
	if err != nil {
		failed := c.fail(seq, err)
		ticket.Round = failed
		ticket.final = failed
		close(ticket.done)
		return ticket, true
	}

	submitting, _ := c.transition(seq, func(r *models.GameRound) {
		r.Status = models.RoundSubmitting
	})
	ticket.Round = submitting

	go c.run(seq, number, value, ticket)

	return ticket, true
}

func (c *RoundController) validate(ctx context.Context, session wallet.Session, number uint8, amount string) (decimal.Decimal, error) {
	if !session.Connected() || !session.CanSign() {
		return decimal.Zero, models.NewValidationError(models.ErrNoWalletConnected, "Please connect your wallet first")
	}
	if !models.ValidBetNumber(number) {
		return decimal.Zero, models.NewValidationError(models.ErrNoNumberSelected, "Please select a number between 1 and 6")
	}

	value, err := models.ParseEther(amount)
	if err != nil {
		return decimal.Zero, models.NewValidationError(models.ErrInvalidAmount, "Please enter a valid bet amount")
	}
	if value.LessThan(c.cfg.MinBet) {
		return decimal.Zero, models.NewValidationError(models.ErrBelowMinimumBet,
			fmt.Sprintf("Minimum bet is %s ETH", c.cfg.MinBet.String()))
	}

	balance, err := c.balances.Balance(ctx, session.Address)
	if err != nil {
		c.logger.Warn().Err(err).Str("player", session.Address).Msg("balance unavailable, treating as zero")
		balance = decimal.Zero
	}
	if value.GreaterThan(balance) {
		return decimal.Zero, models.NewValidationError(models.ErrInsufficientBalance, "Insufficient balance")
	}

	return value, nil
}

func (c *RoundController) run(seq uint64, number uint8, value decimal.Decimal, ticket *Ticket) {
	defer close(ticket.done)

	started := time.Now()
	awaiting, _ := c.transition(seq, func(r *models.GameRound) {
		r.Status = models.RoundAwaitingConfirmation
	})

	result, err := c.gateway.SubmitBet(c.ctx, number, value)
	if err != nil {
		sErr := ledger.ClassifySubmissionError(err)
		c.logger.Warn().
			Err(sErr).
			Str("player", awaiting.Player).
			Str("code", string(sErr.Code)).
			Msg("bet submission failed")
		ticket.final = c.fail(seq, sErr)
		return
	}
	c.metrics.betConfirmed(time.Since(started))

	// The outcome is final from here on. RESOLVING only delays the reveal.
	c.transition(seq, func(r *models.GameRound) {
		r.Status = models.RoundResolving
	})
	if c.cfg.RollDuration > 0 {
		roll := time.NewTimer(c.cfg.RollDuration)
		select {
		case <-roll.C:
		case <-c.ctx.Done():
			roll.Stop()
		}
	}

	settled, ok := c.transition(seq, func(r *models.GameRound) {
		r.Status = models.RoundSettled
		r.DiceResult = result.ResultNumber
		r.Result = result
	})
	if !ok {
		ticket.final = settled
		return
	}

	c.mu.Lock()
	c.recent = append([]models.RecentResult{{
		GameID:    result.GameID,
		BetNumber: number,
		Rolled:    result.ResultNumber,
		Won:       result.Won,
		Amount:    settled.BetAmount,
		Payout:    result.Payout,
		SettledAt: settled.UpdatedAt.Unix(),
	}}, c.recent...)
	if len(c.recent) > RecentResultsLimit {
		c.recent = c.recent[:RecentResultsLimit]
	}
	c.scheduleReset(seq)
	c.mu.Unlock()

	c.metrics.roundFinished(settled)
	c.logger.Info().
		Str("player", settled.Player).
		Uint64("game_id", result.GameID).
		Bool("won", result.Won).
		Str("payout", result.Payout.String()).
		Str("tx", result.TxHash).
		Msg("round settled")

	if c.refresher != nil && settled.Player != "" {
		c.refresher.RequestRefresh(settled.Player)
	}

	ticket.final = settled
}

func (c *RoundController) fail(seq uint64, err error) models.GameRound {
	failed, ok := c.transition(seq, func(r *models.GameRound) {
		r.Status = models.RoundFailed
		r.Error = models.ToRoundError(err)
	})
	if !ok {
		return failed
	}

	c.mu.Lock()
	c.scheduleReset(seq)
	c.mu.Unlock()

	c.metrics.roundFinished(failed)
	return failed
}

// transition applies fn to the round if it is still round seq and publishes
// the new state. It reports false when the round has been replaced.
func (c *RoundController) transition(seq uint64, fn func(r *models.GameRound)) (models.GameRound, bool) {
	c.mu.Lock()
	if c.round.Seq != seq {
		current := c.round
		c.mu.Unlock()
		return current, false
	}
	fn(&c.round)
	c.round.UpdatedAt = time.Now()
	snapshot := c.round
	c.mu.Unlock()

	c.publish(snapshot)
	return snapshot, true
}

// scheduleReset must be called with c.mu held.
func (c *RoundController) scheduleReset(seq uint64) {
	if c.resetTimer != nil {
		c.resetTimer.Stop()
	}
	c.resetTimer = time.AfterFunc(c.cfg.DisplayWindow, func() {
		c.resetIfCurrent(seq)
	})
}

func (c *RoundController) resetIfCurrent(seq uint64) {
	c.mu.Lock()
	if c.round.Seq != seq || !c.round.Status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.round = models.GameRound{
		Seq:       seq,
		Player:    c.round.Player,
		Status:    models.RoundIdle,
		UpdatedAt: time.Now(),
	}
	idle := c.round
	c.mu.Unlock()

	c.publish(idle)
}

func (c *RoundController) onSessionChange(session wallet.Session) {
	c.mu.Lock()
	c.recent = nil
	if c.round.Status.Active() {
		// the round in flight finishes under the session that started it
		c.mu.Unlock()
		return
	}
	if c.resetTimer != nil {
		c.resetTimer.Stop()
		c.resetTimer = nil
	}
	c.round = models.GameRound{
		Seq:       c.seq,
		Player:    session.Address,
		Status:    models.RoundIdle,
		UpdatedAt: time.Now(),
	}
	idle := c.round
	c.mu.Unlock()

	c.logger.Info().Str("player", session.Address).Msg("wallet session changed")
	c.publish(idle)
}

func (c *RoundController) publish(round models.GameRound) {
	if c.notifier == nil {
		return
	}
	c.notifier.RoundChanged(round.Player, round)
}
