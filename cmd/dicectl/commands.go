package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dice-prediction-backend/internal/config"
	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

var errRoundFailed = errors.New("round failed")

func RootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dicectl",
		Short:         "dice prediction game client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringP("address", "a", "", "watch this address instead of the PRIVATE_KEY wallet")
	cmd.PersistentFlags().Duration("timeout", 2*time.Minute, "overall deadline of the command")

	cmd.AddCommand(
		HistoryCmd(),
		StatsCmd(),
		GameCmd(),
		GamesCmd(),
		BalanceCmd(),
		BetCmd(),
	)

	return cmd
}

// app is the core wired against the configured node.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	wallets *wallet.Manager
	gateway *ledger.EthGateway
	session wallet.Session
	ctx     context.Context
	cancel  context.CancelFunc
}

func newApp(cmd *cobra.Command) (*app, error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := logging.NewWithWriter(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr(), TimeFormat: time.Kitchen}, cfg.LogLevel)

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)

	wallets := wallet.NewManager()
	address, _ := cmd.Flags().GetString("address")
	switch {
	case address != "":
		_, err = wallets.Watch(address, cfg.ChainID)
	case cfg.HasSigner():
		_, err = wallets.Connect(cfg.PrivateKey, cfg.ChainID)
	}
	if err != nil {
		cancel()
		return nil, err
	}

	contract, err := ledger.NewContract(cfg.ContractAddress)
	if err != nil {
		cancel()
		return nil, err
	}

	gateway, err := ledger.Dial(ctx, cfg.RPCURL, contract, wallets, ledger.Options{
		ChainID:      cfg.ChainID,
		DeployBlock:  cfg.DeployBlock,
		PollInterval: cfg.ReceiptPollInterval,
	}, logger)
	if err != nil {
		cancel()
		return nil, err
	}

	return &app{
		cfg:     cfg,
		logger:  logger,
		wallets: wallets,
		gateway: gateway,
		session: wallets.Current(),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

func (a *app) Close() {
	a.cancel()
	a.gateway.Close()
}

func (a *app) player() (string, error) {
	if !a.session.Connected() {
		return "", fmt.Errorf("no wallet: set PRIVATE_KEY or pass --address")
	}
	return a.session.Address, nil
}

func (a *app) reconcile() ([]models.GameRecord, error) {
	player, err := a.player()
	if err != nil {
		return nil, err
	}
	reconciler := services.NewReconciler(a.gateway, a.cfg.TimestampConcurrency, nil, a.logger)
	records, err := reconciler.Reconcile(a.ctx, player)
	if err != nil {
		return nil, err
	}
	return records, nil
}

func printJSON(out io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(data))
	return err
}

func HistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show settled games of the wallet, newest first",
		Args:  cobra.NoArgs,
		RunE:  history,
	}
	addHistoryFlags(cmd)
	return cmd
}

func addHistoryFlags(cmd *cobra.Command) {
	cmd.Flags().String("outcome", string(models.OutcomeAll), "all, wins or losses")
	cmd.Flags().String("tx", "", "transaction hash substring")
	cmd.Flags().String("start", "", "first day, YYYY-MM-DD")
	cmd.Flags().String("end", "", "last day, YYYY-MM-DD")
	cmd.Flags().String("sort", string(models.SortByDate), "date, amount or outcome")
	cmd.Flags().String("order", string(models.SortDesc), "asc or desc")
	cmd.Flags().IntP("limit", "n", services.DefaultPageSize, "records to show")
}

func queryFromFlags(cmd *cobra.Command) (models.HistoryQuery, int, error) {
	outcome, _ := cmd.Flags().GetString("outcome")
	tx, _ := cmd.Flags().GetString("tx")
	start, _ := cmd.Flags().GetString("start")
	end, _ := cmd.Flags().GetString("end")
	sortKey, _ := cmd.Flags().GetString("sort")
	order, _ := cmd.Flags().GetString("order")
	limit, _ := cmd.Flags().GetInt("limit")

	query := models.HistoryQuery{
		Outcome:   models.OutcomeFilter(outcome),
		TxHash:    tx,
		DateRange: models.DateRange{Start: start, End: end},
		SortKey:   models.SortKey(sortKey),
		SortOrder: models.SortOrder(order),
	}.Normalize()
	if err := query.Validate(); err != nil {
		return models.HistoryQuery{}, 0, err
	}
	return query, limit, nil
}

func history(cmd *cobra.Command, args []string) error {
	query, limit, err := queryFromFlags(cmd)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	records, err := a.reconcile()
	if err != nil {
		return err
	}

	page := services.ApplyQuery(records, query, limit, a.cfg.Timezone)
	return printJSON(cmd.OutOrStdout(), page)
}

func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Aggregate statistics over every game of the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			records, err := a.reconcile()
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), services.AggregateStats(records))
		},
	}
}

func GameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "game <id>",
		Short: "Read one game from the contract",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			gameID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid game id %q", args[0])
			}

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			game, err := a.gateway.GetGame(a.ctx, gameID)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), game)
		},
	}
}

func GamesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "games",
		Short: "List the game ids the contract tracks for the wallet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetUint64("limit")

			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			player, err := a.player()
			if err != nil {
				return err
			}
			ids, err := a.gateway.GetPlayerGameIDs(a.ctx, player, limit)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), ids)
		},
	}
	cmd.Flags().Uint64P("limit", "n", 10, "maximum number of ids")
	return cmd
}

func BalanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Show the wallet balance in ETH",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			player, err := a.player()
			if err != nil {
				return err
			}
			balance, err := a.gateway.Balance(a.ctx, player)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), models.FormatEther(balance))
			return err
		},
	}
}

func BetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bet <number> <amount>",
		Short: "Bet amount ETH that the die shows number",
		Args:  cobra.ExactArgs(2),
		RunE:  bet,
	}
}

func parseBetArgs(args []string) (uint8, string, error) {
	n, err := strconv.ParseUint(args[0], 10, 8)
	if err != nil {
		return 0, "", fmt.Errorf("invalid number %q", args[0])
	}
	return uint8(n), args[1], nil
}

// statusPrinter writes every round transition as one line.
type statusPrinter struct {
	out io.Writer
}

func (p statusPrinter) RoundChanged(address string, round models.GameRound) {
	line := string(round.Status)
	switch {
	case round.Error != nil:
		line += fmt.Sprintf(" %s: %s", round.Error.Code, round.Error.Message)
	case round.Status == models.RoundSettled && round.Result != nil:
		outcome := "lost"
		if round.Result.Won {
			outcome = "won " + models.FormatEther(round.Result.Payout)
		}
		rolled := "?"
		if round.DiceResult != nil {
			rolled = strconv.Itoa(int(*round.DiceResult))
		}
		line += fmt.Sprintf(" rolled %s, %s (game %d)", rolled, outcome, round.Result.GameID)
	}
	fmt.Fprintln(p.out, line)
}

func bet(cmd *cobra.Command, args []string) error {
	number, amount, err := parseBetArgs(args)
	if err != nil {
		return err
	}

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	rounds := services.NewRoundController(a.gateway, a.gateway, a.wallets, nil, statusPrinter{out: cmd.OutOrStdout()}, nil, services.RoundConfig{
		MinBet:        a.cfg.MinBet,
		DisplayWindow: a.cfg.DisplayWindow,
	}, a.logger)
	defer rounds.Close()

	ticket, _ := rounds.PlaceBet(a.ctx, number, amount)
	final, err := ticket.Wait(a.ctx)
	if err != nil {
		return err
	}
	if final.Status == models.RoundFailed {
		return errRoundFailed
	}
	if final.Result != nil && final.Result.TxHash != "" {
		fmt.Fprintln(cmd.OutOrStdout(), models.ExplorerURL(final.Result.TxHash))
	}
	return nil
}
