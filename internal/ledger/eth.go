package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/wallet"
)

// Backend is the subset of *ethclient.Client the gateway needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*ethtypes.Header, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]ethtypes.Log, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
	Close()
}

// SessionSource yields the wallet session bets are signed with.
type SessionSource interface {
	Current() wallet.Session
}

type Options struct {
	ChainID        int64
	DeployBlock    uint64
	PollInterval   time.Duration
	ReceiptTimeout time.Duration
}

// EthGateway implements Gateway and BalanceReader over a JSON-RPC node.
type EthGateway struct {
	backend  Backend
	contract *Contract
	sessions SessionSource
	opts     Options
	logger   zerolog.Logger
}

func Dial(ctx context.Context, rpcURL string, contract *Contract, sessions SessionSource, opts Options, logger zerolog.Logger) (*EthGateway, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("RPC URL is required")
	}

	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ledger node: %w", err)
	}

	return NewEthGateway(client, contract, sessions, opts, logger), nil
}

func NewEthGateway(backend Backend, contract *Contract, sessions SessionSource, opts Options, logger zerolog.Logger) *EthGateway {
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.ReceiptTimeout <= 0 {
		opts.ReceiptTimeout = 5 * time.Minute
	}

	return &EthGateway{
		backend:  backend,
		contract: contract,
		sessions: sessions,
		opts:     opts,
		logger:   logging.Component(logger, "ledger"),
	}
}

func (g *EthGateway) Close() {
	g.backend.Close()
}

func (g *EthGateway) SubmitBet(ctx context.Context, number uint8, amount decimal.Decimal) (*models.BetResult, error) {
	session := g.sessions.Current()
	if !session.Connected() {
		return nil, models.NewSubmissionError(models.ErrRejected, "No wallet connected", wallet.ErrNotConnected)
	}
	if !session.CanSign() {
		return nil, models.NewSubmissionError(models.ErrRejected, "Wallet session is read-only", wallet.ErrReadOnly)
	}

	if err := g.checkNetwork(ctx, session); err != nil {
		return nil, err
	}

	data, err := g.contract.PackPlay(number)
	if err != nil {
		return nil, models.NewSubmissionError(models.ErrUnknown, "Failed to encode bet", err)
	}

	from := session.CommonAddress()
	to := g.contract.Address()
	value := models.ToWei(amount)

	nonce, err := g.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, ClassifySubmissionError(fmt.Errorf("failed to read pending account state: %w", err))
	}

	gasPrice, err := g.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, ClassifySubmissionError(fmt.Errorf("failed to get gas price: %w", err))
	}

	gasLimit, err := g.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil {
		return nil, ClassifySubmissionError(err)
	}

	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signedTx, err := session.SignTx(tx)
	if err != nil {
		return nil, ClassifySubmissionError(err)
	}

	if err := g.backend.SendTransaction(ctx, signedTx); err != nil {
		return nil, ClassifySubmissionError(err)
	}

	txHash := signedTx.Hash()
	g.logger.Info().
		Str("tx", txHash.Hex()).
		Str("player", session.Address).
		Uint8("number", number).
		Str("amount", amount.String()).
		Msg("bet submitted")

	// Broadcast: from here on the receipt is awaited regardless of ctx.
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.opts.ReceiptTimeout)
	defer cancel()

	receipt, err := g.waitForReceipt(waitCtx, txHash)
	if err != nil {
		return nil, models.NewSubmissionError(models.ErrUnknown, "Transaction was not confirmed", err)
	}

	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return nil, models.NewSubmissionError(models.ErrUnknown, "Transaction reverted",
			fmt.Errorf("tx %s reverted in block %d", txHash.Hex(), receipt.BlockNumber))
	}

	return g.resultFromReceipt(txHash.Hex(), receipt, number, amount), nil
}

func (g *EthGateway) checkNetwork(ctx context.Context, session wallet.Session) error {
	if session.ChainID != g.opts.ChainID {
		return models.NewSubmissionError(models.ErrNetworkMismatch,
			fmt.Sprintf("Wallet is on chain %d, expected %d", session.ChainID, g.opts.ChainID), nil)
	}

	chainID, err := g.backend.ChainID(ctx)
	if err != nil {
		return models.NewSubmissionError(models.ErrUnknown, "Failed to reach ledger node", err)
	}
	if chainID.Int64() != g.opts.ChainID {
		return models.NewSubmissionError(models.ErrNetworkMismatch,
			fmt.Sprintf("Node is on chain %s, expected %d", chainID, g.opts.ChainID), nil)
	}
	return nil
}

func (g *EthGateway) waitForReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	ticker := time.NewTicker(g.opts.PollInterval)
	defer ticker.Stop()

	for {
		receipt, err := g.backend.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			g.logger.Debug().Err(err).Str("tx", txHash.Hex()).Msg("receipt lookup failed, retrying")
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for receipt of %s: %w", txHash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}

func (g *EthGateway) resultFromReceipt(txHash string, receipt *ethtypes.Receipt, number uint8, amount decimal.Decimal) *models.BetResult {
	for _, lg := range receipt.Logs {
		if lg == nil || !g.contract.IsGamePlayed(*lg) {
			continue
		}

		raw, err := g.contract.DecodeGamePlayed(*lg)
		if err != nil {
			g.logger.Warn().Err(err).Str("tx", txHash).Msg("undecodable GamePlayed log in receipt")
			continue
		}

		result, err := ResultFromEvent(txHash, raw)
		if err != nil {
			g.logger.Warn().Err(err).Str("tx", txHash).Msg("incomplete GamePlayed log in receipt")
			continue
		}
		return result
	}

	// Mined without a GamePlayed log: confirmed, but the outcome is unknown.
	g.logger.Warn().Str("tx", txHash).Msg("receipt carries no GamePlayed event")
	return &models.BetResult{
		TxHash:    txHash,
		BetNumber: number,
		BetAmount: amount,
		Payout:    decimal.Zero,
	}
}

func (g *EthGateway) GetPlayerEvents(ctx context.Context, player string) ([]models.RawGameEvent, error) {
	if !common.IsHexAddress(player) {
		return nil, fmt.Errorf("invalid player address: %s", player)
	}
	playerAddr := common.HexToAddress(player)

	query := ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(g.opts.DeployBlock),
		Addresses: []common.Address{g.contract.Address()},
		Topics: [][]common.Hash{
			{g.contract.GamePlayedTopic()},
			nil,
			{common.BytesToHash(playerAddr.Bytes())},
		},
	}

	logs, err := g.backend.FilterLogs(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to filter GamePlayed logs: %w", err)
	}

	events := make([]models.RawGameEvent, 0, len(logs))
	for _, lg := range logs {
		raw, err := g.contract.DecodeGamePlayed(lg)
		if err != nil {
			g.logger.Warn().Err(err).Uint64("block", lg.BlockNumber).Msg("malformed GamePlayed log")
		}
		events = append(events, raw)
	}

	return events, nil
}

func (g *EthGateway) GetGame(ctx context.Context, gameID uint64) (*models.GameRecord, error) {
	data, err := g.contract.PackGetGame(gameID)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getGame: %w", err)
	}

	to := g.contract.Address()
	result, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getGame(%d): %w", gameID, err)
	}

	return g.contract.UnpackGame(gameID, result)
}

// GetPlayerGameIDs returns up to limit game ids of player, as tracked by the
// contract itself.
func (g *EthGateway) GetPlayerGameIDs(ctx context.Context, player string, limit uint64) ([]uint64, error) {
	if !common.IsHexAddress(player) {
		return nil, fmt.Errorf("invalid player address: %s", player)
	}

	data, err := g.contract.PackGetPlayerGames(common.HexToAddress(player), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to encode getPlayerGames: %w", err)
	}

	to := g.contract.Address()
	result, err := g.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call getPlayerGames: %w", err)
	}

	return g.contract.UnpackPlayerGames(result)
}

func (g *EthGateway) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error) {
	header, err := g.backend.HeaderByNumber(ctx, new(big.Int).SetUint64(blockNumber))
	if err != nil {
		return 0, fmt.Errorf("failed to get block %d: %w", blockNumber, err)
	}
	return int64(header.Time), nil
}

func (g *EthGateway) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !common.IsHexAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address: %s", address)
	}

	wei, err := g.backend.BalanceAt(ctx, common.HexToAddress(address), nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	return models.FromWei(wei), nil
}
