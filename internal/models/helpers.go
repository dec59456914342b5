package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func GenerateSessionID() string {
	return fmt.Sprintf("sess_%s_%s",
		time.Now().Format("20060102"),
		uuid.NewString())
}

// ParseEther parses a user supplied ether amount. It rejects empty input,
// non-positive values and amounts finer than one wei.
func ParseEther(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return decimal.Zero, fmt.Errorf("amount is empty")
	}

	amount, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", input, err)
	}

	if !amount.IsPositive() {
		return decimal.Zero, fmt.Errorf("amount must be positive")
	}

	if -amount.Exponent() > EtherDecimals && !amount.Equal(amount.Truncate(EtherDecimals)) {
		return decimal.Zero, fmt.Errorf("amount has more than %d decimal places", EtherDecimals)
	}

	return amount, nil
}

func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(EtherDecimals).Truncate(0).BigInt()
}

func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals)
}

func FormatEther(amount decimal.Decimal) string {
	return fmt.Sprintf("%s ETH", amount.String())
}

// ShortAddress renders 0x1234...abcd style labels for logs and the CLI.
func ShortAddress(address string) string {
	if len(address) <= 10 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
