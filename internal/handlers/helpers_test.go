package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dice-prediction-backend/internal/config"
	"dice-prediction-backend/internal/handlers"
	"dice-prediction-backend/internal/ledger"
	"dice-prediction-backend/internal/models"
	"dice-prediction-backend/internal/services"
	"dice-prediction-backend/internal/wallet"
)

const (
	testKey    = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testPlayer = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	otherKey   = "59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d"
	otherAddr  = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
)

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) SubmitBet(ctx context.Context, number uint8, amount decimal.Decimal) (*models.BetResult, error) {
	args := m.Called(ctx, number, amount)
	v, _ := args.Get(0).(*models.BetResult)
	return v, args.Error(1)
}

func (m *mockGateway) GetPlayerEvents(ctx context.Context, player string) ([]models.RawGameEvent, error) {
	args := m.Called(ctx, player)
	v, _ := args.Get(0).([]models.RawGameEvent)
	return v, args.Error(1)
}

func (m *mockGateway) GetGame(ctx context.Context, gameID uint64) (*models.GameRecord, error) {
	args := m.Called(ctx, gameID)
	v, _ := args.Get(0).(*models.GameRecord)
	return v, args.Error(1)
}

func (m *mockGateway) GetBlockTimestamp(ctx context.Context, blockNumber uint64) (int64, error) {
	args := m.Called(ctx, blockNumber)
	return args.Get(0).(int64), args.Error(1)
}

type mockBalances struct {
	mock.Mock
}

func (m *mockBalances) Balance(ctx context.Context, address string) (decimal.Decimal, error) {
	args := m.Called(ctx, address)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// memStore keeps sessions in memory.
type memStore struct {
	mu       sync.Mutex
	sessions map[string]models.UserSession
}

func newMemStore() *memStore {
	return &memStore{sessions: make(map[string]models.UserSession)}
}

func (s *memStore) StoreUserSession(session *models.UserSession, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[strings.ToLower(session.Address)+":"+session.SessionID] = *session
	return nil
}

func (s *memStore) GetUserSession(address, sessionID string) (*models.UserSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[strings.ToLower(address)+":"+sessionID]
	if !ok {
		return nil, services.ErrSessionNotFound
	}
	return &session, nil
}

func (s *memStore) DeleteUserSession(address, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, strings.ToLower(address)+":"+sessionID)
	return nil
}

type allowAll struct{}

func (allowAll) CheckRateLimit(string, string, int, time.Duration) (bool, error) {
	return true, nil
}

type fixture struct {
	router    *gin.Engine
	gw        *mockGateway
	balances  *mockBalances
	wallets   *wallet.Manager
	rounds    *services.RoundController
	histories *services.PlayerHistories
	hub       *handlers.WebSocketHub
}

func newFixture(t *testing.T, connect bool) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{
		gw:       new(mockGateway),
		balances: new(mockBalances),
		wallets:  wallet.NewManager(),
	}
	if connect {
		_, err := f.wallets.Connect(testKey, models.SepoliaChainID)
		require.NoError(t, err)
	}

	logger := zerolog.Nop()
	f.hub = handlers.NewWebSocketHub(logger)
	reconciler := services.NewReconciler(f.gw, 2, nil, logger)
	f.histories = services.NewPlayerHistories(reconciler, f.hub, 20, time.UTC, logger)
	f.rounds = services.NewRoundController(f.gw, f.balances, f.wallets, f.histories, f.hub, nil, services.RoundConfig{
		MinBet:        decimal.RequireFromString("0.001"),
		RollDuration:  5 * time.Millisecond,
		DisplayWindow: time.Hour,
	}, logger)

	t.Cleanup(func() {
		f.rounds.Close()
		f.histories.Wait()
		f.hub.Close()
	})

	f.router = handlers.NewRouter(handlers.RouterDeps{
		Sessions:     newMemStore(),
		Limiter:      allowAll{},
		JWT:          services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour}),
		Wallets:      f.wallets,
		Rounds:       f.rounds,
		Histories:    f.histories,
		Gateway:      f.gw,
		Balances:     f.balances,
		Hub:          f.hub,
		ChainID:      models.SepoliaChainID,
		BetRateLimit: 30,
		Logger:       logger,
	})
	return f
}

func (f *fixture) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}

	var req *http.Request
	if reader != nil {
		req = httptest.NewRequest(method, path, reader)
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// signedLogin builds a /auth/session body signed with key.
func signedLogin(t *testing.T, key string, issuedAt int64) map[string]interface{} {
	t.Helper()
	session, err := wallet.NewManager().Connect(key, models.SepoliaChainID)
	require.NoError(t, err)

	sig, err := session.SignMessage(wallet.LoginMessage(session.Address, models.SepoliaChainID, issuedAt))
	require.NoError(t, err)

	return map[string]interface{}{
		"address":   session.Address,
		"issued_at": issuedAt,
		"signature": hexutil.Encode(sig),
	}
}

func (f *fixture) loginAs(t *testing.T, key string) string {
	t.Helper()
	w := f.do(http.MethodPost, "/auth/session", "", signedLogin(t, key, time.Now().Unix()))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (f *fixture) login(t *testing.T) string {
	return f.loginAs(t, testKey)
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func wei(ether string) *big.Int {
	return models.ToWei(decimal.RequireFromString(ether))
}

func gameEvent(gameID uint64, won bool) models.RawGameEvent {
	payout := "0"
	if won {
		payout = "0.05"
	}
	ts := int64(1710028800) + int64(gameID)
	return models.RawGameEvent{
		Args: map[string]interface{}{
			ledger.ArgGameID:          new(big.Int).SetUint64(gameID),
			ledger.ArgPlayer:          common.HexToAddress(testPlayer),
			ledger.ArgBetAmount:       wei("0.01"),
			ledger.ArgPredictedNumber: uint8(3),
			ledger.ArgResultNumber:    uint8(3),
			ledger.ArgWon:             won,
			ledger.ArgPayout:          wei(payout),
		},
		BlockNumber: gameID,
		TxHash:      common.BigToHash(new(big.Int).SetUint64(gameID)).Hex(),
		Timestamp:   &ts,
	}
}
