package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/wallet"
)

type UserHandler struct {
	sessions SessionStore
	wallets  *wallet.Manager
}

func NewUserHandler(sessions SessionStore, wallets *wallet.Manager) *UserHandler {
	return &UserHandler{
		sessions: sessions,
		wallets:  wallets,
	}
}

func (h *UserHandler) GetCurrentUser(c *gin.Context) {
	address := c.GetString("address")
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.GetString("session_id")
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	session, err := h.sessions.GetUserSession(address, sessionID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session expired or invalid"})
		return
	}

	current := h.wallets.Current()
	active := current.Connected() && strings.EqualFold(current.Address, session.Address)

	c.JSON(http.StatusOK, gin.H{
		"session": gin.H{
			"address":       session.Address,
			"short_address": models.ShortAddress(session.Address),
			"session_id":    session.SessionID,
			"chain_id":      session.ChainID,
			"created_at":    session.CreatedAt,
			"last_accessed": session.LastAccessed,
		},
		"wallet": gin.H{
			"connected": active,
			"can_sign":  active && current.CanSign(),
		},
	})
}

func (h *UserHandler) Logout(c *gin.Context) {
	address := c.GetString("address")
	if address == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return
	}

	sessionID := c.GetString("session_id")
	if sessionID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Session not found"})
		return
	}

	err := h.sessions.DeleteUserSession(address, sessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to logout"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Successfully logged out"})
}
