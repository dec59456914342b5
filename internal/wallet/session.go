// Package wallet holds the connected wallet session: who the player is and,
// when a key is available, how their transactions are signed.
package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"dice-prediction-backend/internal/models"
)

var (
	ErrNotConnected = errors.New("no wallet connected")
	ErrReadOnly     = errors.New("wallet session cannot sign transactions")
)

// Session is an immutable snapshot of the connected wallet. The zero value
// means no wallet is connected.
type Session struct {
	ID          string
	Address     string
	ChainID     int64
	ConnectedAt time.Time

	key *ecdsa.PrivateKey
}

func (s Session) Connected() bool {
	return s.Address != ""
}

func (s Session) CanSign() bool {
	return s.key != nil
}

func (s Session) CommonAddress() common.Address {
	return common.HexToAddress(s.Address)
}

// SignTx signs tx for the session's chain.
func (s Session) SignTx(tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	if !s.Connected() {
		return nil, ErrNotConnected
	}
	if s.key == nil {
		return nil, ErrReadOnly
	}
	signer := ethtypes.LatestSignerForChainID(big.NewInt(s.ChainID))
	return ethtypes.SignTx(tx, signer, s.key)
}

// Listener is called with the new session after every change.
type Listener func(Session)

// Manager owns the current session and notifies subscribers when it changes.
type Manager struct {
	mu        sync.RWMutex
	current   Session
	listeners map[uint64]Listener
	nextID    uint64
}

func NewManager() *Manager {
	return &Manager{
		listeners: make(map[uint64]Listener),
	}
}

func (m *Manager) Current() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Connect opens a signing session from a hex encoded private key.
func (m *Manager) Connect(hexKey string, chainID int64) (Session, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return Session{}, fmt.Errorf("failed to parse private key: %w", err)
	}

	session := Session{
		ID:          models.GenerateSessionID(),
		Address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		ChainID:     chainID,
		ConnectedAt: time.Now(),
		key:         key,
	}
	m.set(session)
	return session, nil
}

// Watch opens a read-only session for address. History and balances work,
// bets are refused at signing time.
func (m *Manager) Watch(address string, chainID int64) (Session, error) {
	if !common.IsHexAddress(address) {
		return Session{}, fmt.Errorf("invalid address: %s", address)
	}

	session := Session{
		ID:          models.GenerateSessionID(),
		Address:     common.HexToAddress(address).Hex(),
		ChainID:     chainID,
		ConnectedAt: time.Now(),
	}
	m.set(session)
	return session, nil
}

func (m *Manager) Disconnect() {
	m.set(Session{})
}

// Subscribe registers fn for session changes and returns its unsubscribe func.
func (m *Manager) Subscribe(fn Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

func (m *Manager) set(session Session) {
	m.mu.Lock()
	m.current = session
	listeners := make([]Listener, 0, len(m.listeners))
	for _, fn := range m.listeners {
		listeners = append(listeners, fn)
	}
	m.mu.Unlock()

	for _, fn := range listeners {
		fn(session)
	}
}
