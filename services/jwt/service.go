package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"github.com/bookwell/authkit/services/revocation"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrMalformedToken   = errors.New("malformed token")
	ErrInvalidSignature = errors.New("invalid token signature")
	ErrTokenRevoked     = errors.New("token has been revoked")
)

type Claims struct {
	UserID    uint   `json:"user_id"`
	RoleID    uint   `json:"role_id"`
	TokenType string `json:"token_type,omitempty"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// RevocationLedger is the slice of the ledger the authenticator consumes.
type RevocationLedger interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
	RecordIssuedToken(ctx context.Context, jti string, userID uint, tokenType revocation.TokenType, issuedAt, expiresAt time.Time) error
}

type TokenPair struct {
	AccessToken   string
	RefreshToken  string
	AccessClaims  *Claims
	RefreshClaims *Claims
}

type Service struct {
	config  *config.Config
	logger  *logging.Service
	metrics *metrics.Service
	ledger  RevocationLedger
}

func NewService(cfg *config.Config, logger *logging.Service, m *metrics.Service) *Service {
	return &Service{
		config:  cfg,
		logger:  logger,
		metrics: m,
	}
}

func (s *Service) SetRevocationLedger(ledger RevocationLedger) {
	s.ledger = ledger
}

func (s *Service) GetAccessExpirySeconds() int {
	return int(s.config.JWT.AccessExpiry.Seconds())
}

func (s *Service) GetRefreshExpirySeconds() int {
	return int(s.config.JWT.RefreshExpiry.Seconds())
}

func (s *Service) IssueAccessToken(ctx context.Context, userID, roleID uint) (string, *Claims, error) {
	return s.issue(ctx, userID, roleID, revocation.TokenTypeAccess, s.config.JWT.AccessExpiry)
}

func (s *Service) IssueRefreshToken(ctx context.Context, userID, roleID uint) (string, *Claims, error) {
	return s.issue(ctx, userID, roleID, revocation.TokenTypeRefresh, s.config.JWT.RefreshExpiry)
}

func (s *Service) IssueTokenPair(ctx context.Context, userID, roleID uint) (*TokenPair, error) {
	accessToken, accessClaims, err := s.IssueAccessToken(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}

	refreshToken, refreshClaims, err := s.IssueRefreshToken(ctx, userID, roleID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:   accessToken,
		RefreshToken:  refreshToken,
		AccessClaims:  accessClaims,
		RefreshClaims: refreshClaims,
	}, nil
}

func (s *Service) issue(ctx context.Context, userID, roleID uint, tokenType revocation.TokenType, expiry time.Duration) (string, *Claims, error) {
	now := time.Now()
	jti := uuid.New().String()
	claims := Claims{
		UserID:    userID,
		RoleID:    roleID,
		TokenType: string(tokenType),
		JTI:       jti,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    s.config.JWT.Issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{s.config.JWT.Issuer},
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.config.JWT.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign token",
				zap.String("token_type", string(tokenType)),
				zap.Error(err))
		}
		return "", nil, fmt.Errorf("failed to generate %s token: %w", tokenType, err)
	}

	// Issuance is logged before the token leaves the service; a token the
	// ledger cannot enumerate cannot be bulk-revoked later.
	if s.ledger != nil {
		if err := s.ledger.RecordIssuedToken(ctx, jti, userID, tokenType, now, now.Add(expiry)); err != nil {
			if s.logger != nil {
				s.logger.Error("failed to record token issuance",
					zap.String("jti", jti),
					zap.Error(err))
			}
			return "", nil, fmt.Errorf("failed to record token issuance: %w", err)
		}
	}

	return tokenString, &claims, nil
}

// Authenticate validates a bearer token: signature, then expiry, then the
// revocation ledger. A ledger failure or timeout rejects the token; the
// ledger is never failed open.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if token.Method.Alg() == "none" {
			return nil, errors.New("'none' algorithm is not allowed")
		}

		if token.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unexpected algorithm: expected HS256, got %s", token.Method.Alg())
		}

		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("invalid algorithm family: %v", token.Header["alg"])
		}

		return []byte(s.config.JWT.SecretKey), nil
	}, jwt.WithExpirationRequired())

	if err != nil {
		if s.logger != nil {
			s.logger.Warn("token validation failed", zap.Error(err))
		}

		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			s.metrics.ObserveAuthentication("expired")
			return nil, ErrExpiredToken
		case errors.Is(err, jwt.ErrTokenMalformed):
			s.metrics.ObserveAuthentication("malformed")
			return nil, ErrMalformedToken
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrSignatureInvalid):
			s.metrics.ObserveAuthentication("invalid_signature")
			return nil, ErrInvalidSignature
		default:
			s.metrics.ObserveAuthentication("invalid")
			return nil, ErrInvalidToken
		}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		s.metrics.ObserveAuthentication("invalid")
		return nil, ErrInvalidToken
	}

	if s.ledger != nil {
		checkCtx, cancel := context.WithTimeout(ctx, s.config.JWT.RevocationCheckTimeout)
		defer cancel()

		revoked, err := s.ledger.IsRevoked(checkCtx, claims.JTI)
		if err != nil {
			// Fail closed: an unreachable ledger rejects the request.
			s.metrics.ObserveDegradedMode()
			s.metrics.ObserveAuthentication("revoked")
			if s.logger != nil {
				s.logger.Error("revocation check unavailable, rejecting token",
					zap.String("jti", claims.JTI),
					zap.Error(err))
			}
			return nil, ErrTokenRevoked
		}
		if revoked {
			s.metrics.ObserveAuthentication("revoked")
			if s.logger != nil {
				s.logger.Warn("rejected revoked token",
					zap.String("jti", claims.JTI),
					zap.Uint("user_id", claims.UserID))
			}
			return nil, ErrTokenRevoked
		}
	}

	s.metrics.ObserveAuthentication("accepted")

	return claims, nil
}

// RejectionKind names an authentication failure for logs and telemetry.
// The distinct kind is never sent to the end user.
func RejectionKind(err error) string {
	switch {
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrExpiredToken):
		return "expired"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrMalformedToken):
		return "malformed"
	default:
		return "invalid"
	}
}
