package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"dice-prediction-backend/internal/models"
)

const diceGameABI = `[
	{"inputs":[{"name":"_predictedNumber","type":"uint8"}],"name":"play","outputs":[],"stateMutability":"payable","type":"function"},
	{"inputs":[{"name":"_gameId","type":"uint256"}],"name":"getGame","outputs":[{"name":"player","type":"address"},{"name":"betAmount","type":"uint256"},{"name":"predictedNumber","type":"uint8"},{"name":"resultNumber","type":"uint8"},{"name":"won","type":"bool"},{"name":"payout","type":"uint256"},{"name":"timestamp","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"inputs":[{"name":"_player","type":"address"},{"name":"_limit","type":"uint256"}],"name":"getPlayerGames","outputs":[{"name":"","type":"uint256[]"}],"stateMutability":"view","type":"function"},
	{"anonymous":false,"inputs":[{"indexed":true,"name":"gameId","type":"uint256"},{"indexed":true,"name":"player","type":"address"},{"indexed":false,"name":"betAmount","type":"uint256"},{"indexed":false,"name":"predictedNumber","type":"uint8"},{"indexed":false,"name":"resultNumber","type":"uint8"},{"indexed":false,"name":"won","type":"bool"},{"indexed":false,"name":"payout","type":"uint256"}],"name":"GamePlayed","type":"event"}
]`

const (
	methodPlay           = "play"
	methodGetGame        = "getGame"
	methodGetPlayerGames = "getPlayerGames"
	eventGamePlayed      = "GamePlayed"
)

// ErrGameNotFound is returned by getGame reads for ids the contract never
// assigned.
var ErrGameNotFound = errors.New("game not found")

// Event argument names, as found in RawGameEvent.Args.
const (
	ArgGameID          = "gameId"
	ArgPlayer          = "player"
	ArgBetAmount       = "betAmount"
	ArgPredictedNumber = "predictedNumber"
	ArgResultNumber    = "resultNumber"
	ArgWon             = "won"
	ArgPayout          = "payout"
)

// Contract wraps the parsed ABI of the dice game and its deployed address.
type Contract struct {
	address common.Address
	abi     abi.ABI
	eventID common.Hash
	indexed abi.Arguments
}

func NewContract(address string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("invalid contract address: %s", address)
	}

	parsed, err := abi.JSON(strings.NewReader(diceGameABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse dice game ABI: %w", err)
	}

	event := parsed.Events[eventGamePlayed]
	var indexed abi.Arguments
	for _, arg := range event.Inputs {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}

	return &Contract{
		address: common.HexToAddress(address),
		abi:     parsed,
		eventID: event.ID,
		indexed: indexed,
	}, nil
}

func (c *Contract) Address() common.Address {
	return c.address
}

// GamePlayedTopic is topic 0 of every GamePlayed log.
func (c *Contract) GamePlayedTopic() common.Hash {
	return c.eventID
}

func (c *Contract) PackPlay(number uint8) ([]byte, error) {
	return c.abi.Pack(methodPlay, number)
}

func (c *Contract) PackGetGame(gameID uint64) ([]byte, error) {
	return c.abi.Pack(methodGetGame, new(big.Int).SetUint64(gameID))
}

func (c *Contract) PackGetPlayerGames(player common.Address, limit uint64) ([]byte, error) {
	return c.abi.Pack(methodGetPlayerGames, player, new(big.Int).SetUint64(limit))
}

// IsGamePlayed reports whether lg was emitted by this contract as GamePlayed.
func (c *Contract) IsGamePlayed(lg ethtypes.Log) bool {
	return lg.Address == c.address && len(lg.Topics) > 0 && lg.Topics[0] == c.eventID
}

// DecodeGamePlayed turns a log into a raw event. Fields that fail to decode
// are left out of Args; the caller decides whether the entry is usable.
func (c *Contract) DecodeGamePlayed(lg ethtypes.Log) (models.RawGameEvent, error) {
	raw := models.RawGameEvent{
		Args:        make(map[string]interface{}),
		BlockNumber: lg.BlockNumber,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		Removed:     lg.Removed,
	}

	if len(lg.Topics) == 0 || lg.Topics[0] != c.eventID {
		return raw, fmt.Errorf("log %s:%d is not a GamePlayed event", raw.TxHash, lg.Index)
	}

	if len(lg.Topics) != len(c.indexed)+1 {
		return raw, fmt.Errorf("GamePlayed log %s:%d has %d topics", raw.TxHash, lg.Index, len(lg.Topics))
	}
	if err := abi.ParseTopicsIntoMap(raw.Args, c.indexed, lg.Topics[1:]); err != nil {
		return raw, fmt.Errorf("failed to decode GamePlayed topics: %w", err)
	}

	if err := c.abi.UnpackIntoMap(raw.Args, eventGamePlayed, lg.Data); err != nil {
		return raw, fmt.Errorf("failed to decode GamePlayed data: %w", err)
	}

	return raw, nil
}

// UnpackGame decodes the return data of getGame.
func (c *Contract) UnpackGame(gameID uint64, data []byte) (*models.GameRecord, error) {
	out := make(map[string]interface{})
	if err := c.abi.UnpackIntoMap(out, methodGetGame, data); err != nil {
		return nil, fmt.Errorf("failed to decode getGame result: %w", err)
	}

	player, _ := out["player"].(common.Address)
	betAmount, _ := out["betAmount"].(*big.Int)
	predicted, _ := out["predictedNumber"].(uint8)
	result, _ := out["resultNumber"].(uint8)
	won, _ := out["won"].(bool)
	payout, _ := out["payout"].(*big.Int)
	ts, _ := out["timestamp"].(*big.Int)

	if player == (common.Address{}) {
		return nil, fmt.Errorf("game %d: %w", gameID, ErrGameNotFound)
	}

	record := &models.GameRecord{
		GameID:       gameID,
		Player:       player.Hex(),
		BetNumber:    predicted,
		ResultNumber: result,
		BetAmount:    models.FromWei(betAmount),
		Payout:       models.FromWei(payout),
		Won:          won,
	}
	if ts != nil && ts.Sign() > 0 {
		stamped := record.WithTimestamp(ts.Int64())
		record = &stamped
	}

	return record, nil
}

func (c *Contract) UnpackPlayerGames(data []byte) ([]uint64, error) {
	values, err := c.abi.Unpack(methodGetPlayerGames, data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode getPlayerGames result: %w", err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("getPlayerGames returned %d values", len(values))
	}

	ids, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getPlayerGames result type %T", values[0])
	}

	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		out = append(out, id.Uint64())
	}
	return out, nil
}

// ResultFromEvent converts a decoded GamePlayed event into the bet result
// shown for a confirmed round.
func ResultFromEvent(txHash string, raw models.RawGameEvent) (*models.BetResult, error) {
	gameID, ok := raw.Args[ArgGameID].(*big.Int)
	if !ok || !gameID.IsUint64() {
		return nil, fmt.Errorf("GamePlayed event has no gameId")
	}
	betAmount, _ := raw.Args[ArgBetAmount].(*big.Int)
	predicted, _ := raw.Args[ArgPredictedNumber].(uint8)
	rolled, ok := raw.Args[ArgResultNumber].(uint8)
	if !ok {
		return nil, fmt.Errorf("GamePlayed event has no resultNumber")
	}
	won, _ := raw.Args[ArgWon].(bool)
	payout, _ := raw.Args[ArgPayout].(*big.Int)

	return &models.BetResult{
		TxHash:       txHash,
		GameID:       gameID.Uint64(),
		BetNumber:    predicted,
		ResultNumber: &rolled,
		Won:          won,
		Payout:       models.FromWei(payout),
		BetAmount:    models.FromWei(betAmount),
	}, nil
}
