package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
)

type HistoryHandler struct {
	histories *services.PlayerHistories
}

func NewHistoryHandler(histories *services.PlayerHistories) *HistoryHandler {
	return &HistoryHandler{histories: histories}
}

func (h *HistoryHandler) history(c *gin.Context) *services.PlayerHistory {
	history := h.histories.Get(c.GetString("address"))
	history.EnsureLoaded(c.Request.Context())
	return history
}

// GetHistory renders the current page. Query parameters, when present,
// replace the panel query and reset paging.
func (h *HistoryHandler) GetHistory(c *gin.Context) {
	history := h.history(c)

	if c.Request.URL.RawQuery == "" {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"history": history.Page(),
		})
		return
	}

	var query models.HistoryQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return
	}

	page, err := history.SetQuery(query)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid query",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": page,
	})
}

func (h *HistoryHandler) LoadMore(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": h.history(c).LoadMore(),
	})
}

func (h *HistoryHandler) ClearFilters(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"history": h.history(c).ClearFilters(),
	})
}

func (h *HistoryHandler) Refresh(c *gin.Context) {
	history := h.histories.Get(c.GetString("address"))
	history.Refresh(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"refreshed_at": history.RefreshedAt(),
		"history":      history.Page(),
	})
}

// GetStats covers every game of the player, whatever the panel filters.
func (h *HistoryHandler) GetStats(c *gin.Context) {
	history := h.history(c)

	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"stats":        history.Stats(),
		"refreshed_at": history.RefreshedAt(),
	})
}
