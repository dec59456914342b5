package handlers_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
)

type historyResponse struct {
	Success bool                 `json:"success"`
	History services.HistoryPage `json:"history"`
}

func historyGameIDs(page services.HistoryPage) []uint64 {
	ids := make([]uint64, 0, len(page.Records))
	for _, rec := range page.Records {
		ids = append(ids, rec.GameID)
	}
	return ids
}

func withHistory(t *testing.T, count int) (*fixture, string) {
	f := newFixture(t, true)
	var events []models.RawGameEvent
	for i := 1; i <= count; i++ {
		events = append(events, gameEvent(uint64(i), i%2 == 0))
	}
	f.gw.On("GetPlayerEvents", mock.Anything, testPlayer).Return(events, nil)
	return f, f.login(t)
}

func TestGetHistoryDefaultPage(t *testing.T) {
	f, token := withHistory(t, 25)

	w := f.do(http.MethodGet, "/api/history", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp historyResponse
	decode(t, w, &resp)
	assert.Len(t, resp.History.Records, 20)
	assert.True(t, resp.History.HasMore)
	assert.Equal(t, uint64(25), resp.History.Records[0].GameID)
	assert.Equal(t, 25, resp.History.TotalCount)

	w = f.do(http.MethodPost, "/api/history/more", token, nil)
	decode(t, w, &resp)
	assert.Len(t, resp.History.Records, 25)
	assert.False(t, resp.History.HasMore)
}

func TestGetHistoryWithQuery(t *testing.T) {
	f, token := withHistory(t, 6)

	w := f.do(http.MethodGet, "/api/history?outcome=wins&order=asc", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var resp historyResponse
	decode(t, w, &resp)
	assert.Equal(t, []uint64{2, 4, 6}, historyGameIDs(resp.History))
	assert.Equal(t, "100", resp.History.Stats.WinRatePercent.String())

	w = f.do(http.MethodPost, "/api/history/clear", token, nil)
	decode(t, w, &resp)
	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6}, historyGameIDs(resp.History), "sort order survives clearing filters")

	w = f.do(http.MethodGet, "/api/history?outcome=draws", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/history?start=2024/03/10", token, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetStatsAndRefresh(t *testing.T) {
	f, token := withHistory(t, 4)

	w := f.do(http.MethodGet, "/api/stats", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	var stats struct {
		Stats models.PlayerStats `json:"stats"`
	}
	decode(t, w, &stats)
	assert.Equal(t, 4, stats.Stats.TotalGames)
	assert.Equal(t, 2, stats.Stats.Wins)
	assert.Equal(t, "50", stats.Stats.WinRatePercent.String())
	assert.Equal(t, "0.04", stats.Stats.TotalWagered.String())
	assert.Equal(t, "0.08", stats.Stats.NetProfit.String())

	w = f.do(http.MethodPost, "/api/history/refresh", token, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	f.gw.AssertNumberOfCalls(t, "GetPlayerEvents", 2)
}
