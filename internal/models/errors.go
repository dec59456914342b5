package models

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a failure inside the bet and history flows.
type ErrorCode string

const (
	// Validation errors, raised before the ledger is contacted
	ErrNoWalletConnected   ErrorCode = "NO_WALLET_CONNECTED"
	ErrNoNumberSelected    ErrorCode = "NO_NUMBER_SELECTED"
	ErrInvalidAmount       ErrorCode = "INVALID_AMOUNT"
	ErrBelowMinimumBet     ErrorCode = "BELOW_MINIMUM_BET"
	ErrInsufficientBalance ErrorCode = "INSUFFICIENT_BALANCE"

	// Submission errors, reported by the ledger gateway
	ErrRejected          ErrorCode = "REJECTED"
	ErrInsufficientFunds ErrorCode = "INSUFFICIENT_FUNDS"
	ErrNetworkMismatch   ErrorCode = "NETWORK_MISMATCH"
	ErrNonceConflict     ErrorCode = "NONCE_CONFLICT"
	ErrUnknown           ErrorCode = "UNKNOWN"
)

const (
	KindValidation = "validation"
	KindSubmission = "submission"
)

type ValidationError struct {
	Code    ErrorCode
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewValidationError(code ErrorCode, message string) *ValidationError {
	return &ValidationError{Code: code, Message: message}
}

// SubmissionError is a classified failure of a bet transaction.
type SubmissionError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *SubmissionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func NewSubmissionError(code ErrorCode, message string, err error) *SubmissionError {
	return &SubmissionError{Code: code, Message: message, Err: err}
}

// ReconciliationError describes a degraded history read. It is logged, never
// returned to the UI.
type ReconciliationError struct {
	Op          string
	Player      string
	BlockNumber uint64
	Err         error
}

func (e *ReconciliationError) Error() string {
	if e.BlockNumber != 0 {
		return fmt.Sprintf("reconcile %s for %s (block %d): %v", e.Op, e.Player, e.BlockNumber, e.Err)
	}
	return fmt.Sprintf("reconcile %s for %s: %v", e.Op, e.Player, e.Err)
}

func (e *ReconciliationError) Unwrap() error {
	return e.Err
}

func IsValidationError(err error, code ErrorCode) bool {
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		return false
	}
	return vErr.Code == code
}

func IsSubmissionError(err error, code ErrorCode) bool {
	var sErr *SubmissionError
	if !errors.As(err, &sErr) {
		return false
	}
	return sErr.Code == code
}

// ToRoundError converts a validation or submission error into the payload
// attached to a failed round.
func ToRoundError(err error) *RoundError {
	if err == nil {
		return nil
	}

	var vErr *ValidationError
	if errors.As(err, &vErr) {
		return &RoundError{Kind: KindValidation, Code: vErr.Code, Message: vErr.Message}
	}

	var sErr *SubmissionError
	if errors.As(err, &sErr) {
		return &RoundError{Kind: KindSubmission, Code: sErr.Code, Message: sErr.Message}
	}

	return &RoundError{Kind: KindSubmission, Code: ErrUnknown, Message: err.Error()}
}
