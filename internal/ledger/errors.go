package ledger

import (
	"errors"
	"strings"

	"dice-prediction-backend/internal/models"
)

var submissionPatterns = []struct {
	needles []string
	code    models.ErrorCode
	message string
}{
	{[]string{"user rejected", "denied"}, models.ErrRejected, "Transaction rejected by user"},
	{[]string{"insufficient funds"}, models.ErrInsufficientFunds, "Insufficient funds for transaction"},
	{[]string{"nonce"}, models.ErrNonceConflict, "Transaction conflict, please try again"},
	{[]string{"chain id", "chainid", "network"}, models.ErrNetworkMismatch, "Wrong network, switch to the configured chain"},
}

// ClassifySubmissionError maps a raw transport failure onto the submission
// error taxonomy. Errors that are already classified pass through unchanged.
func ClassifySubmissionError(err error) *models.SubmissionError {
	if err == nil {
		return nil
	}

	var sErr *models.SubmissionError
	if errors.As(err, &sErr) {
		return sErr
	}

	text := strings.ToLower(err.Error())
	for _, p := range submissionPatterns {
		for _, needle := range p.needles {
			if strings.Contains(text, needle) {
				return models.NewSubmissionError(p.code, p.message, err)
			}
		}
	}

	return models.NewSubmissionError(models.ErrUnknown, err.Error(), err)
}
