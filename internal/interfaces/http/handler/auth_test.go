package handler

import (
	"net/http"
	"testing"
	"time"

	partnerapp "github.com/gamehub/backend/internal/application/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/gamehub/backend/internal/interfaces/http/dto"
	"github.com/gamehub/backend/internal/interfaces/http/middleware"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newAuthRouter(svc *MockAuthService, claims *auth.Claims) *gin.Engine {
	r := newRouter(&storeActor)
	if claims != nil {
		r.Use(func(c *gin.Context) { c.Set(middleware.JWTClaimsKey, claims) })
	}
	h := NewAuthHandler(svc)
	r.POST("/auth/login", h.Login)
	r.POST("/auth/refresh", h.RefreshToken)
	r.POST("/auth/logout", h.Logout)
	r.GET("/auth/me", h.Me)
	return r
}

func TestAuthHandler_Login(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Login", mock.Anything, mock.MatchedBy(func(in partnerapp.LoginInput) bool {
			return in.Username == "store01" && in.Password == "secret-pass" && in.IP != ""
		})).Return(&partnerapp.LoginResult{
			AccessToken: "access",
			TokenType:   "Bearer",
			Partner:     partnerapp.PartnerResponse{ID: storeActor.PartnerID, Username: "store01"},
		}, nil)

		w := doJSON(t, newAuthRouter(svc, nil), http.MethodPost, "/auth/login",
			LoginRequest{Username: "store01", Password: "secret-pass"})

		assert.Equal(t, http.StatusOK, w.Code)
		resp := decodeResponse(t, w)
		assert.True(t, resp.Success)
		data := resp.Data.(map[string]any)
		assert.Equal(t, "access", data["access_token"])
		svc.AssertExpectations(t)
	})

	t.Run("missing password is a validation error", func(t *testing.T) {
		svc := new(MockAuthService)
		w := doJSON(t, newAuthRouter(svc, nil), http.MethodPost, "/auth/login", `{"username":"store01"}`)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidation, resp.Error.Code)
		require.NotEmpty(t, resp.Error.Details)
		assert.Equal(t, "password", resp.Error.Details[0].Field)
		svc.AssertNotCalled(t, "Login", mock.Anything, mock.Anything)
	})

	t.Run("bad credentials", func(t *testing.T) {
		svc := new(MockAuthService)
		svc.On("Login", mock.Anything, mock.Anything).
			Return(nil, shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password"))

		w := doJSON(t, newAuthRouter(svc, nil), http.MethodPost, "/auth/login",
			LoginRequest{Username: "store01", Password: "wrong-pass"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "INVALID_CREDENTIALS", decodeResponse(t, w).Error.Code)
	})
}

func TestAuthHandler_RefreshToken(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("RefreshToken", mock.Anything, "refresh-token").
		Return(&auth.TokenPair{AccessToken: "new-access", RefreshToken: "new-refresh"}, nil)

	w := doJSON(t, newAuthRouter(svc, nil), http.MethodPost, "/auth/refresh",
		RefreshTokenRequest{RefreshToken: "refresh-token"})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "new-access", decodeResponse(t, w).Data.(map[string]any)["access_token"])
}

func TestAuthHandler_Logout(t *testing.T) {
	claims := &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(10 * time.Minute)),
		},
	}
	svc := new(MockAuthService)
	svc.On("Logout", mock.Anything, mock.MatchedBy(func(in partnerapp.LogoutInput) bool {
		return in.PartnerID == storeActor.PartnerID &&
			in.TokenJTI == "jti-1" &&
			in.TokenTTL > 9*time.Minute
	})).Return(nil)

	w := doJSON(t, newAuthRouter(svc, claims), http.MethodPost, "/auth/logout", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	svc.AssertExpectations(t)
}

func TestAuthHandler_Me(t *testing.T) {
	svc := new(MockAuthService)
	svc.On("CurrentPartner", mock.Anything, storeActor.PartnerID).
		Return(&partnerapp.PartnerResponse{ID: storeActor.PartnerID, Username: "store01", Type: "store"}, nil)

	w := doJSON(t, newAuthRouter(svc, nil), http.MethodGet, "/auth/me", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "store", decodeResponse(t, w).Data.(map[string]any)["partner_type"])
}
