package services

import (
	"cmp"
	"context"
	"fmt"
	"math"
	"math/big"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
)

// Quarantine reasons, also used as metric labels.
const (
	quarantineRemoved        = "removed"
	quarantineMalformed      = "malformed"
	quarantinePayoutMismatch = "payout_mismatch"
	quarantineForeignPlayer  = "foreign_player"
)

// Reconciler rebuilds a player's history from the GamePlayed log.
type Reconciler struct {
	gateway     ledger.Gateway
	concurrency int
	metrics     *Metrics
	logger      zerolog.Logger
}

func NewReconciler(gateway ledger.Gateway, concurrency int, metrics *Metrics, logger zerolog.Logger) *Reconciler {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Reconciler{
		gateway:     gateway,
		concurrency: concurrency,
		metrics:     metrics,
		logger:      logging.Component(logger, "reconciler"),
	}
}

// Reconcile returns the player's games, newest first. It never fails: a
// failed fetch yields an empty history and a *models.ReconciliationError
// describing what went wrong, which callers log and otherwise ignore.
func (r *Reconciler) Reconcile(ctx context.Context, player string) ([]models.GameRecord, error) {
	start := time.Now()

	events, err := r.gateway.GetPlayerEvents(ctx, player)
	if err != nil {
		r.metrics.reconciled("fetch_failed", time.Since(start))
		rErr := &models.ReconciliationError{Op: "fetch_events", Player: player, Err: err}
		r.logger.Warn().Err(rErr).Msg("history unavailable")
		return []models.GameRecord{}, rErr
	}

	records := make([]models.GameRecord, 0, len(events))
	for _, raw := range events {
		record, reason, err := parseGameEvent(raw, player)
		if err != nil {
			r.metrics.eventQuarantined(reason)
			r.logger.Warn().
				Err(err).
				Str("reason", reason).
				Str("tx", raw.TxHash).
				Uint64("block", raw.BlockNumber).
				Msg("quarantined GamePlayed entry")
			continue
		}
		records = append(records, record)
	}

	records = dedupeByGameID(records)
	records = r.resolveTimestamps(ctx, player, records)
	SortByRecency(records)

	r.metrics.reconciled("ok", time.Since(start))
	r.logger.Debug().
		Str("player", player).
		Int("events", len(events)).
		Int("records", len(records)).
		Dur("took", time.Since(start)).
		Msg("history reconciled")

	return records, nil
}

// resolveTimestamps looks up each distinct block once, concurrently, and
// returns copies of the records with the times filled in. A failed lookup
// leaves the affected records without a timestamp.
func (r *Reconciler) resolveTimestamps(ctx context.Context, player string, records []models.GameRecord) []models.GameRecord {
	pending := make(map[uint64]struct{})
	for _, rec := range records {
		if !rec.HasTimestamp() {
			pending[rec.BlockNumber] = struct{}{}
		}
	}
	if len(pending) == 0 {
		return records
	}

	var (
		mu    sync.Mutex
		times = make(map[uint64]int64, len(pending))
		g     errgroup.Group
	)
	g.SetLimit(r.concurrency)

	for block := range pending {
		g.Go(func() error {
			ts, err := r.gateway.GetBlockTimestamp(ctx, block)
			if err != nil {
				r.metrics.timestampFailed()
				rErr := &models.ReconciliationError{Op: "block_timestamp", Player: player, BlockNumber: block, Err: err}
				r.logger.Warn().Err(rErr).Msg("block timestamp unavailable")
				return nil
			}
			mu.Lock()
			times[block] = ts
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	out := make([]models.GameRecord, len(records))
	for i, rec := range records {
		if ts, ok := times[rec.BlockNumber]; ok && !rec.HasTimestamp() {
			rec = rec.WithTimestamp(ts)
		}
		out[i] = rec
	}
	return out
}

// dedupeByGameID keeps one record per game. When the log repeats a game the
// entry from the latest block wins.
func dedupeByGameID(records []models.GameRecord) []models.GameRecord {
	index := make(map[uint64]int, len(records))
	out := make([]models.GameRecord, 0, len(records))
	for _, rec := range records {
		if i, seen := index[rec.GameID]; seen {
			if rec.BlockNumber >= out[i].BlockNumber {
				out[i] = rec
			}
			continue
		}
		index[rec.GameID] = len(out)
		out = append(out, rec)
	}
	return out
}

// SortByRecency orders records by timestamp desc then GameID desc. Records
// without a timestamp go last.
func SortByRecency(records []models.GameRecord) {
	slices.SortStableFunc(records, func(a, b models.GameRecord) int {
		switch {
		case a.HasTimestamp() && !b.HasTimestamp():
			return -1
		case !a.HasTimestamp() && b.HasTimestamp():
			return 1
		}
		if c := cmp.Compare(b.TimestampOrZero(), a.TimestampOrZero()); c != 0 {
			return c
		}
		return cmp.Compare(b.GameID, a.GameID)
	})
}

// parseGameEvent validates a raw log entry. On failure it returns the
// quarantine reason alongside the error.
func parseGameEvent(raw models.RawGameEvent, player string) (models.GameRecord, string, error) {
	if raw.Removed {
		return models.GameRecord{}, quarantineRemoved, fmt.Errorf("log was removed by a reorg")
	}
	if raw.Args == nil {
		return models.GameRecord{}, quarantineMalformed, fmt.Errorf("event has no arguments")
	}

	gameID, err := argBigInt(raw.Args, ledger.ArgGameID)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}
	if !gameID.IsUint64() {
		return models.GameRecord{}, quarantineMalformed, fmt.Errorf("gameId %s out of range", gameID)
	}

	owner, err := argAddress(raw.Args, ledger.ArgPlayer)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}
	if player != "" && !strings.EqualFold(owner.Hex(), player) {
		return models.GameRecord{}, quarantineForeignPlayer, fmt.Errorf("event belongs to %s", owner.Hex())
	}

	betAmount, err := argBigInt(raw.Args, ledger.ArgBetAmount)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}
	payout, err := argBigInt(raw.Args, ledger.ArgPayout)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}
	if betAmount.Sign() < 0 || payout.Sign() < 0 {
		return models.GameRecord{}, quarantineMalformed, fmt.Errorf("negative amount")
	}

	betNumber, err := argUint8(raw.Args, ledger.ArgPredictedNumber)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}
	resultNumber, err := argUint8(raw.Args, ledger.ArgResultNumber)
	if err != nil {
		return models.GameRecord{}, quarantineMalformed, err
	}

	won, ok := raw.Args[ledger.ArgWon].(bool)
	if !ok {
		return models.GameRecord{}, quarantineMalformed, fmt.Errorf("won is %T, want bool", raw.Args[ledger.ArgWon])
	}
	if won != (payout.Sign() > 0) {
		return models.GameRecord{}, quarantinePayoutMismatch, fmt.Errorf("won=%t with payout %s", won, payout)
	}

	record := models.GameRecord{
		GameID:       gameID.Uint64(),
		Player:       owner.Hex(),
		BetNumber:    betNumber,
		ResultNumber: resultNumber,
		BetAmount:    models.FromWei(betAmount),
		Payout:       models.FromWei(payout),
		Won:          won,
		BlockNumber:  raw.BlockNumber,
		TxHash:       raw.TxHash,
	}
	if raw.Timestamp != nil {
		record = record.WithTimestamp(*raw.Timestamp)
	}

	return record, "", nil
}

func argBigInt(args map[string]interface{}, name string) (*big.Int, error) {
	switch v := args[name].(type) {
	case *big.Int:
		if v == nil {
			break
		}
		return v, nil
	case big.Int:
		return &v, nil
	case uint64:
		return new(big.Int).SetUint64(v), nil
	case int64:
		return big.NewInt(v), nil
	case int:
		return big.NewInt(int64(v)), nil
	case float64:
		if v == math.Trunc(v) && v >= 0 && v < math.MaxInt64 {
			return big.NewInt(int64(v)), nil
		}
	case string:
		if n, ok := new(big.Int).SetString(v, 0); ok {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%s is %T, want integer", name, args[name])
}

func argUint8(args map[string]interface{}, name string) (uint8, error) {
	if v, ok := args[name].(uint8); ok {
		return v, nil
	}
	n, err := argBigInt(args, name)
	if err != nil {
		return 0, err
	}
	if n.Sign() < 0 || n.Cmp(big.NewInt(math.MaxUint8)) > 0 {
		return 0, fmt.Errorf("%s %s out of range", name, n)
	}
	return uint8(n.Uint64()), nil
}

func argAddress(args map[string]interface{}, name string) (common.Address, error) {
	switch v := args[name].(type) {
	case common.Address:
		return v, nil
	case string:
		if common.IsHexAddress(v) {
			return common.HexToAddress(v), nil
		}
	}
	return common.Address{}, fmt.Errorf("%s is %T, want address", name, args[name])
}
