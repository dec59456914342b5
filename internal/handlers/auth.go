package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"dice-prediction-backend/internal/logging"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

// SessionStore persists API sessions. *services.RedisService implements it.
type SessionStore interface {
	StoreUserSession(session *models.UserSession, expiry time.Duration) error
	GetUserSession(address, sessionID string) (*models.UserSession, error)
	DeleteUserSession(address, sessionID string) error
}

type AuthHandler struct {
	sessions   SessionStore
	jwtService *services.JWTService
	wallets    *wallet.Manager
	chainID    int64
	logger     zerolog.Logger
}

func NewAuthHandler(sessions SessionStore, jwtService *services.JWTService, wallets *wallet.Manager, chainID int64, logger zerolog.Logger) *AuthHandler {
	return &AuthHandler{
		sessions:   sessions,
		jwtService: jwtService,
		wallets:    wallets,
		chainID:    chainID,
		logger:     logging.Component(logger, "auth"),
	}
}

// LoginMaxAge bounds how far a signed login message's issued_at may be from now.
const LoginMaxAge = 5 * time.Minute

type sessionRequest struct {
	Address   string `json:"address" binding:"required"`
	IssuedAt  int64  `json:"issued_at" binding:"required"`
	Signature string `json:"signature" binding:"required"`
}

// CreateSession issues a token to whoever proves control of an address by
// signing wallet.LoginMessage. Only the connected wallet's own address gets a
// session that can place bets; any other address is read-only. The request
// never changes the connected wallet.
func (h *AuthHandler) CreateSession(c *gin.Context) {
	var req sessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request",
			"details": err.Error(),
		})
		return
	}

	address := strings.TrimSpace(req.Address)
	if !common.IsHexAddress(address) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid address"})
		return
	}

	issuedAt := time.Unix(req.IssuedAt, 0)
	if age := time.Since(issuedAt); age > LoginMaxAge || age < -LoginMaxAge {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Login message expired"})
		return
	}

	sig, err := hexutil.Decode(strings.TrimSpace(req.Signature))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid signature",
			"details": err.Error(),
		})
		return
	}

	signer, err := wallet.RecoverSigner(wallet.LoginMessage(address, h.chainID, req.IssuedAt), sig)
	if err != nil || signer != common.HexToAddress(address) {
		h.logger.Warn().Str("player", address).Msg("login signature does not match address")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid signature"})
		return
	}

	current := h.wallets.Current()
	canSign := current.CanSign() && strings.EqualFold(current.Address, signer.Hex())

	now := time.Now()
	session := &models.UserSession{
		Address:      signer.Hex(),
		SessionID:    models.GenerateSessionID(),
		ChainID:      h.chainID,
		CreatedAt:    now,
		LastAccessed: now,
	}

	if err := h.sessions.StoreUserSession(session, h.jwtService.TTL()); err != nil {
		h.logger.Error().Err(err).Str("player", session.Address).Msg("failed to store session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	token, err := h.jwtService.GenerateToken(session.Address, session.SessionID)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to sign token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      token,
		"expires_in": int64(h.jwtService.TTL().Seconds()),
		"session": gin.H{
			"address":    session.Address,
			"session_id": session.SessionID,
			"chain_id":   session.ChainID,
			"can_sign":   canSign,
		},
	})
}
