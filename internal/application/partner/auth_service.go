package partner

import (
	"context"
	"errors"
	"time"

	"github.com/gamehub/backend/internal/domain/partner"
	"github.com/gamehub/backend/internal/domain/shared"
	"github.com/gamehub/backend/internal/infrastructure/auth"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AuthService handles dashboard authentication for partners
type AuthService struct {
	partnerRepo partner.PartnerRepository
	jwtService  *auth.JWTService
	blacklist   auth.TokenBlacklist
	logger      *zap.Logger
}

// NewAuthService creates a new authentication service
func NewAuthService(
	partnerRepo partner.PartnerRepository,
	jwtService *auth.JWTService,
	blacklist auth.TokenBlacklist,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		partnerRepo: partnerRepo,
		jwtService:  jwtService,
		blacklist:   blacklist,
		logger:      logger,
	}
}

var errInvalidCredentials = shared.NewDomainError("INVALID_CREDENTIALS", "Invalid username or password")

// Login authenticates a partner and returns tokens
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	s.logger.Info("Login attempt", zap.String("username", input.Username), zap.String("ip", input.IP))

	p, err := s.partnerRepo.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Partner not found during login", zap.String("username", input.Username))
			return nil, errInvalidCredentials
		}
		return nil, err
	}

	if !p.VerifyPassword(input.Password) {
		s.logger.Warn("Invalid password attempt", zap.String("username", input.Username))
		return nil, errInvalidCredentials
	}
	if !p.CanLogin() {
		if p.IsBlocked() {
			return nil, shared.NewDomainError("ACCOUNT_BLOCKED", "Account has been blocked")
		}
		return nil, shared.NewDomainError("ACCOUNT_INACTIVE", "Account is not active")
	}

	pair, err := s.jwtService.IssuePair(auth.Subject{
		PartnerID:   p.ID,
		Username:    p.Username,
		PartnerType: string(p.Type),
	})
	if err != nil {
		s.logger.Error("Failed to generate token pair", zap.Error(err))
		return nil, shared.NewDomainError("INTERNAL_ERROR", "Failed to generate authentication tokens")
	}

	now := time.Now()
	p.RecordLogin(now)
	if err := s.partnerRepo.UpdateLastLogin(ctx, p.ID, now); err != nil {
		s.logger.Error("Failed to record login", zap.String("partner_id", p.ID.String()), zap.Error(err))
	}

	s.logger.Info("Partner logged in",
		zap.String("username", p.Username),
		zap.String("partner_id", p.ID.String()))

	return &LoginResult{
		AccessToken:           pair.AccessToken,
		RefreshToken:          pair.RefreshToken,
		AccessTokenExpiresAt:  pair.AccessTokenExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshTokenExpiresAt,
		TokenType:             pair.TokenType,
		Partner:               ToPartnerResponse(p),
	}, nil
}

// RefreshToken issues a new pair from a valid refresh token
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*auth.TokenPair, error) {
	claims, err := s.jwtService.ValidateRefreshToken(refreshToken)
	if err != nil {
		s.logger.Warn("Refresh token validation failed", zap.Error(err))
		return nil, tokenError(err)
	}

	partnerID, err := claims.PartnerUUID()
	if err != nil {
		return nil, shared.NewDomainError("TOKEN_INVALID", "Invalid partner ID in token")
	}

	if s.blacklist != nil {
		revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
		if err != nil {
			return nil, err
		}
		invalidated, err := s.blacklist.IsPartnerRevoked(ctx, claims.PartnerID, claims.IssuedAtTime())
		if err != nil {
			return nil, err
		}
		if revoked || invalidated {
			return nil, shared.NewDomainError("TOKEN_REVOKED", "Refresh token has been revoked")
		}
	}

	p, err := s.partnerRepo.FindByID(ctx, partnerID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.NewDomainError("TOKEN_INVALID", "Partner no longer exists")
		}
		return nil, err
	}
	if !p.CanLogin() {
		return nil, shared.NewDomainError("ACCOUNT_INACTIVE", "Account is no longer active")
	}

	pair, err := s.jwtService.Refresh(refreshToken, string(p.Type))
	if err != nil {
		s.logger.Warn("Token refresh failed", zap.Error(err))
		return nil, tokenError(err)
	}

	if s.blacklist != nil {
		if err := s.blacklist.Revoke(ctx, claims.ID, claims.RemainingTTL()); err != nil {
			s.logger.Warn("Failed to revoke used refresh token", zap.Error(err))
		}
	}

	s.logger.Info("Token refreshed", zap.String("partner_id", partnerID.String()))
	return pair, nil
}

// Logout revokes the presented access token
func (s *AuthService) Logout(ctx context.Context, input LogoutInput) error {
	s.logger.Info("Partner logout", zap.String("partner_id", input.PartnerID.String()))
	if s.blacklist == nil || input.TokenJTI == "" {
		return nil
	}
	return s.blacklist.Revoke(ctx, input.TokenJTI, input.TokenTTL)
}

// CurrentPartner returns the signed-in partner
func (s *AuthService) CurrentPartner(ctx context.Context, partnerID uuid.UUID) (*PartnerResponse, error) {
	p, err := s.partnerRepo.FindByID(ctx, partnerID)
	if err != nil {
		return nil, err
	}
	response := ToPartnerResponse(p)
	return &response, nil
}

func tokenError(err error) error {
	switch {
	case errors.Is(err, auth.ErrExpiredToken):
		return shared.NewDomainError("TOKEN_EXPIRED", "Refresh token has expired")
	case errors.Is(err, auth.ErrMaxRefreshExceeded):
		return shared.NewDomainError("TOKEN_MAX_REFRESH", "Maximum token refresh count exceeded. Please log in again")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrInvalidTokenType), errors.Is(err, auth.ErrInvalidClaims):
		return shared.NewDomainError("TOKEN_INVALID", "Invalid refresh token")
	}
	return shared.NewDomainError("TOKEN_ERROR", "Failed to validate refresh token")
}
