package services_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dice-prediction-backend/internal/config"
	"dice-prediction-backend/internal/services"
)

func TestJWTRoundTrip(t *testing.T) {
	svc := services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})

	token, err := svc.GenerateToken(testPlayer, "session-1")
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, testPlayer, claims.Address)
	assert.Equal(t, "session-1", claims.SessionID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, 5*time.Second)
}

func TestJWTRejectsForeignSecret(t *testing.T) {
	issuer := services.NewJWTService(&config.Config{JWTSecret: "one", JWTTTL: time.Hour})
	verifier := services.NewJWTService(&config.Config{JWTSecret: "two", JWTTTL: time.Hour})

	token, err := issuer.GenerateToken(testPlayer, "session-1")
	require.NoError(t, err)

	_, err = verifier.ValidateToken(token)
	assert.Error(t, err)
}

func TestJWTRejectsExpiredAndUnsigned(t *testing.T) {
	svc := services.NewJWTService(&config.Config{JWTSecret: "test-secret", JWTTTL: time.Hour})

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, services.Claims{
		Address:   testPlayer,
		SessionID: "session-1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	})
	signed, err := expired.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	_, err = svc.ValidateToken(signed)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, services.Claims{Address: testPlayer, SessionID: "s"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = svc.ValidateToken(unsigned)
	assert.Error(t, err)

	_, err = svc.ValidateToken("not-a-token")
	assert.Error(t, err)
}
