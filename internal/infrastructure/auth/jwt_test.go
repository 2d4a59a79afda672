package auth

import (
	"testing"
	"time"

	"github.com/gamehub/backend/internal/infrastructure/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJWTConfig = config.JWTConfig{
	Secret:                 "test-secret-key-at-least-32-chars",
	RefreshSecret:          "test-refresh-secret-key-32-chars",
	AccessTokenExpiration:  15 * time.Minute,
	RefreshTokenExpiration: 7 * 24 * time.Hour,
	Issuer:                 "gamehub-test",
	MaxRefreshCount:        2,
}

func headOffice() Subject {
	return Subject{PartnerID: uuid.New(), Username: "head01", PartnerType: "head_office"}
}

func TestJWTService_IssueAndValidate(t *testing.T) {
	svc := NewJWTService(testJWTConfig)
	sub := headOffice()

	pair, err := svc.IssuePair(sub)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.True(t, pair.RefreshTokenExpiresAt.After(pair.AccessTokenExpiresAt))

	claims, err := svc.ValidateAccessToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "head01", claims.Username)
	assert.Equal(t, "head_office", claims.PartnerType)
	assert.Equal(t, TokenTypeAccess, claims.TokenType)
	assert.Equal(t, sub.PartnerID.String(), claims.Subject)
	id, err := claims.PartnerUUID()
	require.NoError(t, err)
	assert.Equal(t, sub.PartnerID, id)
	assert.InDelta(t, (15 * time.Minute).Seconds(), claims.RemainingTTL().Seconds(), 5)
	assert.WithinDuration(t, time.Now(), claims.IssuedAtTime(), 5*time.Second)

	_, err = svc.ValidateAccessToken(pair.RefreshToken)
	assert.Error(t, err, "refresh token used as access token")
	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.Error(t, err, "access token used as refresh token")
	_, err = svc.ValidateAccessToken("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestJWTService_SharedSecretChecksTokenType(t *testing.T) {
	svc := NewJWTService(config.JWTConfig{Secret: "only-one-secret", AccessTokenExpiration: time.Minute, RefreshTokenExpiration: time.Hour})
	pair, err := svc.IssuePair(headOffice())
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidTokenType)
}

func TestJWTService_Expired(t *testing.T) {
	cfg := testJWTConfig
	cfg.AccessTokenExpiration = -time.Minute
	svc := NewJWTService(cfg)

	pair, err := svc.IssuePair(headOffice())
	require.NoError(t, err)
	_, err = svc.ValidateAccessToken(pair.AccessToken)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestJWTService_RejectsForeignTokens(t *testing.T) {
	svc := NewJWTService(testJWTConfig)
	sub := headOffice()

	t.Run("other issuer", func(t *testing.T) {
		cfg := testJWTConfig
		cfg.Issuer = "someone-else"
		pair, err := NewJWTService(cfg).IssuePair(sub)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(pair.AccessToken)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := &Claims{PartnerID: sub.PartnerID.String(), TokenType: TokenTypeAccess}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing partner id", func(t *testing.T) {
		claims := &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    testJWTConfig.Issuer,
				Audience:  jwt.ClaimStrings{testJWTConfig.Issuer},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
			},
			TokenType: TokenTypeAccess,
		}
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTConfig.Secret))
		require.NoError(t, err)
		_, err = svc.ValidateAccessToken(raw)
		assert.ErrorIs(t, err, ErrInvalidClaims)
	})
}

func TestJWTService_Refresh(t *testing.T) {
	svc := NewJWTService(testJWTConfig)
	pair, err := svc.IssuePair(headOffice())
	require.NoError(t, err)

	refreshed, err := svc.Refresh(pair.RefreshToken, "main_office")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(refreshed.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "main_office", claims.PartnerType)

	refreshClaims, err := svc.ValidateRefreshToken(refreshed.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, 1, refreshClaims.RefreshCount)

	second, err := svc.Refresh(refreshed.RefreshToken, "main_office")
	require.NoError(t, err)
	_, err = svc.Refresh(second.RefreshToken, "main_office")
	assert.ErrorIs(t, err, ErrMaxRefreshExceeded)

	_, err = svc.Refresh(pair.AccessToken, "main_office")
	assert.Error(t, err)
}
