package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

type GameHandler struct {
	rounds   *services.RoundController
	gateway  ledger.Gateway
	balances ledger.BalanceReader
	wallets  *wallet.Manager
	logger   zerolog.Logger
}

func NewGameHandler(rounds *services.RoundController, gateway ledger.Gateway, balances ledger.BalanceReader, wallets *wallet.Manager, logger zerolog.Logger) *GameHandler {
	return &GameHandler{
		rounds:   rounds,
		gateway:  gateway,
		balances: balances,
		wallets:  wallets,
		logger:   logging.Component(logger, "game_handler"),
	}
}

// PlaceBet answers 202 once the bet is accepted for submission. Progress is
// pushed over the websocket and can be polled from GET /round.
func (h *GameHandler) PlaceBet(c *gin.Context) {
	var req models.BetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	current := h.wallets.Current()
	if current.Connected() && !strings.EqualFold(current.Address, c.GetString("address")) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Session does not belong to the connected wallet"})
		return
	}

	ticket, accepted := h.rounds.PlaceBet(c.Request.Context(), req.Number, req.Amount)
	if !accepted {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A round is already in progress",
			"round": ticket.Round,
		})
		return
	}

	if ticket.Round.Status == models.RoundFailed && ticket.Round.Error != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to place bet",
			"code":    ticket.Round.Error.Code,
			"details": ticket.Round.Error.Message,
			"round":   ticket.Round,
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"round":   ticket.Round,
	})
}

func (h *GameHandler) GetRound(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"round":   h.rounds.Round(),
	})
}

func (h *GameHandler) GetRecentResults(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"results": h.rounds.Recent(),
	})
}

func (h *GameHandler) GetBalance(c *gin.Context) {
	address := c.GetString("address")

	balance, err := h.balances.Balance(c.Request.Context(), address)
	if err != nil {
		h.logger.Warn().Err(err).Str("player", address).Msg("balance lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to get balance",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"balance": gin.H{
			"address": address,
			"ether":   balance,
		},
	})
}

func (h *GameHandler) GetGame(c *gin.Context) {
	gameID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid game id",
			"details": err.Error(),
		})
		return
	}

	game, err := h.gateway.GetGame(c.Request.Context(), gameID)
	if errors.Is(err, ledger.ErrGameNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		return
	}
	if err != nil {
		h.logger.Warn().Err(err).Uint64("game_id", gameID).Msg("game lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Failed to get game",
			"details": err.Error(),
		})
		return
	}
	if game == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Game not found"})
		return
	}

	response := gin.H{
		"success": true,
		"game":    game,
	}
	if game.TxHash != "" {
		response["explorer_url"] = models.ExplorerURL(game.TxHash)
	}
	c.JSON(http.StatusOK, response)
}
