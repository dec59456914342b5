package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Setenv("RPC_URL", "http://127.0.0.1:8545")
	t.Setenv("CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PRIVATE_KEY", "")
	t.Setenv("LOG_LEVEL", "disabled")
}

func TestRunReturnsConfigErrors(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("JWT_SECRET", "")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid API config")
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestRunReturnsWalletErrors(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("PRIVATE_KEY", "not-a-key")

	err := run()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open wallet session")
}
