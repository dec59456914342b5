package wallet

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrBadSignature = errors.New("invalid signature")

// LoginMessage is the text a player signs with personal_sign to open an API
// session.
func LoginMessage(address string, chainID int64, issuedAt int64) string {
	return fmt.Sprintf("Sign in to Dice Prediction\n\nAddress: %s\nChain ID: %d\nIssued At: %d",
		common.HexToAddress(address).Hex(), chainID, issuedAt)
}

// SignMessage returns an EIP-191 personal signature of message, V in {27, 28}.
func (s Session) SignMessage(message string) ([]byte, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	if s.key == nil {
		return nil, ErrReadOnly
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign message: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

// RecoverSigner returns the address behind a personal signature of message.
// Both V conventions (0/1 and 27/28) are accepted.
func RecoverSigner(message string, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrBadSignature, crypto.SignatureLength, len(sig))
	}

	normalized := make([]byte, len(sig))
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), normalized)
	if err != nil {
		return common.Address{}, fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}
