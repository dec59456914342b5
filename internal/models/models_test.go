package models_test

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dice-prediction-backend/internal/models"
)

func TestParseEther(t *testing.T) {
	amount, err := models.ParseEther(" 0.01 ")
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.RequireFromString("0.01")))

	for _, input := range []string{"", "abc", "0", "-1", "0.0000000000000000001"} {
		_, err := models.ParseEther(input)
		assert.Error(t, err, "input %q should be rejected", input)
	}

	amount, err = models.ParseEther("0.000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(1), models.ToWei(amount))
}

func TestWeiConversion(t *testing.T) {
	wei, ok := new(big.Int).SetString("19600000000000000", 10)
	require.True(t, ok)

	ether := models.FromWei(wei)
	assert.True(t, ether.Equal(decimal.RequireFromString("0.0196")))
	assert.Equal(t, 0, models.ToWei(ether).Cmp(wei))
	assert.True(t, models.FromWei(nil).IsZero())
}

func TestErrorHelpers(t *testing.T) {
	vErr := models.NewValidationError(models.ErrBelowMinimumBet, "minimum bet is 0.001 ETH")
	wrapped := fmt.Errorf("place bet: %w", vErr)

	assert.True(t, models.IsValidationError(wrapped, models.ErrBelowMinimumBet))
	assert.False(t, models.IsValidationError(wrapped, models.ErrInvalidAmount))
	assert.False(t, models.IsSubmissionError(wrapped, models.ErrUnknown))

	cause := errors.New("nonce too low")
	sErr := models.NewSubmissionError(models.ErrNonceConflict, "transaction conflict", cause)
	assert.True(t, models.IsSubmissionError(sErr, models.ErrNonceConflict))
	assert.ErrorIs(t, sErr, cause)

	roundErr := models.ToRoundError(wrapped)
	require.NotNil(t, roundErr)
	assert.Equal(t, models.KindValidation, roundErr.Kind)
	assert.Equal(t, models.ErrBelowMinimumBet, roundErr.Code)

	roundErr = models.ToRoundError(errors.New("boom"))
	assert.Equal(t, models.ErrUnknown, roundErr.Code)
	assert.Nil(t, models.ToRoundError(nil))
}

func TestRoundStatus(t *testing.T) {
	assert.False(t, models.RoundIdle.Active())
	assert.True(t, models.RoundValidating.Active())
	assert.True(t, models.RoundResolving.Active())
	assert.False(t, models.RoundSettled.Active())
	assert.True(t, models.RoundFailed.Terminal())
}

func TestHistoryQueryNormalize(t *testing.T) {
	q := models.HistoryQuery{Outcome: " WINS ", SortOrder: "ASC"}.Normalize()
	require.NoError(t, q.Validate())
	assert.Equal(t, models.OutcomeWins, q.Outcome)
	assert.Equal(t, models.SortByDate, q.SortKey)
	assert.Equal(t, models.SortAsc, q.SortOrder)
	assert.True(t, q.IsFiltered())

	assert.False(t, models.DefaultHistoryQuery().IsFiltered())
	assert.Error(t, models.HistoryQuery{Outcome: "all", SortKey: "size", SortOrder: "asc"}.Validate())

	dated := models.DefaultHistoryQuery()
	dated.DateRange.Start = "2024-13-01"
	assert.Error(t, dated.Validate())
	dated.DateRange.Start = "2024-02-29"
	assert.NoError(t, dated.Validate())

	cleared := q.ClearFilters()
	assert.False(t, cleared.IsFiltered())
	assert.Equal(t, models.SortAsc, cleared.SortOrder)
}

func TestGameRecordTimestamp(t *testing.T) {
	rec := models.GameRecord{GameID: 7}
	assert.False(t, rec.HasTimestamp())
	assert.Equal(t, int64(0), rec.TimestampOrZero())

	stamped := rec.WithTimestamp(1700000000)
	assert.False(t, rec.HasTimestamp())
	assert.Equal(t, int64(1700000000), stamped.TimestampOrZero())

	assert.Equal(t, "https://sepolia.etherscan.io/tx/0xabc", models.ExplorerURL("0xabc"))
	assert.Equal(t, "0x1234...cdef", models.ShortAddress("0x1234567890abcdef"))
}
