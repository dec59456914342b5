package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/middleware"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

type RouterDeps struct {
	Sessions     SessionStore
	Limiter      middleware.RateLimiter
	JWT          *services.JWTService
	Wallets      *wallet.Manager
	Rounds       *services.RoundController
	Histories    *services.PlayerHistories
	Gateway      ledger.Gateway
	Balances     ledger.BalanceReader
	Hub          *WebSocketHub
	Metrics      http.Handler
	ChainID      int64
	BetRateLimit int
	Logger       zerolog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	authHandler := NewAuthHandler(deps.Sessions, deps.JWT, deps.Wallets, deps.ChainID, deps.Logger)
	userHandler := NewUserHandler(deps.Sessions, deps.Wallets)
	gameHandler := NewGameHandler(deps.Rounds, deps.Gateway, deps.Balances, deps.Wallets, deps.Logger)
	historyHandler := NewHistoryHandler(deps.Histories)
	wsHandler := NewWebSocketHandler(deps.Hub, deps.Rounds)

	router := gin.Default()

	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	router.POST("/auth/session", authHandler.CreateSession)

	protected := router.Group("/api")
	protected.Use(middleware.AuthMiddleware(deps.JWT))
	{
		protected.GET("/me", userHandler.GetCurrentUser)
		protected.POST("/logout", userHandler.Logout)

		protected.GET("/ws", wsHandler.HandleWebSocket)

		protected.POST("/bets",
			middleware.RateLimitMiddleware(deps.Limiter, services.ActionBet, deps.BetRateLimit, time.Minute),
			gameHandler.PlaceBet)
		protected.GET("/round", gameHandler.GetRound)
		protected.GET("/recent", gameHandler.GetRecentResults)
		protected.GET("/balance", gameHandler.GetBalance)
		protected.GET("/games/:id", gameHandler.GetGame)

		history := protected.Group("/history")
		{
			history.GET("", historyHandler.GetHistory)
			history.POST("/more", historyHandler.LoadMore)
			history.POST("/clear", historyHandler.ClearFilters)
			history.POST("/refresh", historyHandler.Refresh)
		}
		protected.GET("/stats", historyHandler.GetStats)
	}

	return router
}
