package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mileusna/useragent"
	"gorm.io/datatypes"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/jwt"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/rbac"
	"github.com/bookwell/authkit/services/revocation"
	"go.uber.org/zap"
)

var (
	ErrPermissionDenied    = errors.New("caller lacks permission to revoke tokens")
	ErrNotARefreshToken    = errors.New("token is not a refresh token")
	ErrUnknownTargetToken  = errors.New("target token not present in issuance log")
	ErrRevocationNotSynced = errors.New("revocation may not have fully propagated")
)

// RequestMeta is the audit context of the request that triggered a
// revocation event.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func (m RequestMeta) auditInfo() revocation.AuditInfo {
	info := revocation.AuditInfo{
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
	}

	if m.UserAgent != "" {
		ua := useragent.Parse(m.UserAgent)
		device := map[string]any{
			"browser": ua.Name,
			"os":      ua.OS,
			"mobile":  ua.Mobile,
		}
		if ua.Device != "" {
			device["device"] = ua.Device
		}
		if raw, err := json.Marshal(device); err == nil {
			info.DeviceInfo = datatypes.JSON(raw)
		}
	}

	return info
}

// Service translates domain events into ledger writes. Every trigger is
// synchronous with its initiating request: the request does not complete
// until the ledger write has committed.
type Service struct {
	config   *config.Config
	ledger   *revocation.Service
	tokens   *jwt.Service
	resolver *rbac.Service
	logger   *logging.Service
}

func NewService(cfg *config.Config, ledger *revocation.Service, tokens *jwt.Service, resolver *rbac.Service, logger *logging.Service) *Service {
	return &Service{
		config:   cfg,
		ledger:   ledger,
		tokens:   tokens,
		resolver: resolver,
		logger:   logger,
	}
}

// Authorize answers whether the identity may perform (resource, action).
func (s *Service) Authorize(ctx context.Context, claims *jwt.Claims, resource string, action rbac.Action) bool {
	if claims == nil {
		return false
	}
	return s.resolver.IsAllowed(ctx, claims.RoleID, resource, action)
}

// Logout revokes the session's current token. A token that already has a
// ledger record counts as a successful logout.
func (s *Service) Logout(ctx context.Context, claims *jwt.Claims, meta RequestMeta) error {
	_, err := s.ledger.Revoke(ctx, revocation.RevokeParams{
		JTI:       claims.JTI,
		UserID:    claims.UserID,
		TokenType: revocation.TokenType(claims.TokenType),
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    revocation.ReasonLogout,
		Audit:     meta.auditInfo(),
	})
	if errors.Is(err, revocation.ErrDuplicateToken) {
		if s.logger != nil {
			s.logger.Debug("logout for already-revoked token",
				zap.String("jti", claims.JTI))
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	return nil
}

// LogoutAll revokes every live token of the user across all devices.
func (s *Service) LogoutAll(ctx context.Context, userID uint, meta RequestMeta) (int64, error) {
	count, err := s.ledger.RevokeAllUserTokens(ctx, userID, revocation.ReasonLogoutAll, "", meta.auditInfo())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	return count, nil
}

// PasswordChanged revokes all of the user's tokens except the replacement
// session issued with the new credentials.
func (s *Service) PasswordChanged(ctx context.Context, userID uint, newSessionJTI string, meta RequestMeta) (int64, error) {
	count, err := s.ledger.RevokeAllUserTokens(ctx, userID, revocation.ReasonPasswordChange, newSessionJTI, meta.auditInfo())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	return count, nil
}

// SecurityBreach revokes every live token of the user with no exclusions.
func (s *Service) SecurityBreach(ctx context.Context, userID uint, meta RequestMeta) (int64, error) {
	count, err := s.ledger.RevokeAllUserTokens(ctx, userID, revocation.ReasonSecurityBreach, "", meta.auditInfo())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	if s.logger != nil {
		s.logger.Warn("security breach revocation executed",
			zap.Uint("user_id", userID),
			zap.Int64("tokens_revoked", count))
	}

	return count, nil
}

// AdminRevoke revokes a specific token on behalf of an operator. The caller
// must hold users:edit.
func (s *Service) AdminRevoke(ctx context.Context, caller *jwt.Claims, targetJTI string, meta RequestMeta) (*revocation.TokenRecord, error) {
	if caller == nil || !s.resolver.IsAllowed(ctx, caller.RoleID, "users", rbac.ActionEdit) {
		if s.logger != nil && caller != nil {
			s.logger.Warn("admin revocation denied",
				zap.Uint("caller_user_id", caller.UserID),
				zap.Uint("caller_role_id", caller.RoleID),
				zap.String("target_jti", targetJTI))
		}
		return nil, ErrPermissionDenied
	}

	target, err := s.ledger.GetIssuedToken(ctx, targetJTI)
	if err != nil {
		if errors.Is(err, revocation.ErrIssuedTokenNotFound) {
			return nil, ErrUnknownTargetToken
		}
		return nil, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	record, err := s.ledger.Revoke(ctx, revocation.RevokeParams{
		JTI:       target.TokenJTI,
		UserID:    target.UserID,
		TokenType: target.TokenType,
		ExpiresAt: target.ExpiresAt,
		Reason:    revocation.ReasonAdminRevoke,
		Audit:     meta.auditInfo(),
	})
	if err != nil {
		if errors.Is(err, revocation.ErrDuplicateToken) {
			return nil, revocation.ErrDuplicateToken
		}
		return nil, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	if s.logger != nil {
		s.logger.Info("token revoked by administrator",
			zap.Uint("caller_user_id", caller.UserID),
			zap.String("target_jti", targetJTI),
			zap.Uint("target_user_id", target.UserID))
	}

	return record, nil
}

// RotateRefreshToken exchanges a refresh token for a new pair. The old
// token is revoked before the new pair is issued; a rotation that cannot
// retire the old token does not hand out new credentials.
func (s *Service) RotateRefreshToken(ctx context.Context, rawRefreshToken string, meta RequestMeta) (*jwt.TokenPair, error) {
	claims, err := s.tokens.Authenticate(ctx, rawRefreshToken)
	if err != nil {
		return nil, err
	}

	if claims.TokenType != string(revocation.TokenTypeRefresh) {
		return nil, ErrNotARefreshToken
	}

	_, err = s.ledger.Revoke(ctx, revocation.RevokeParams{
		JTI:       claims.JTI,
		UserID:    claims.UserID,
		TokenType: revocation.TokenTypeRefresh,
		ExpiresAt: claims.ExpiresAt.Time,
		Reason:    revocation.ReasonTokenRefresh,
		Audit:     meta.auditInfo(),
	})
	if err != nil && !errors.Is(err, revocation.ErrDuplicateToken) {
		return nil, fmt.Errorf("%w: %v", ErrRevocationNotSynced, err)
	}

	pair, err := s.tokens.IssueTokenPair(ctx, claims.UserID, claims.RoleID)
	if err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.Info("refresh token rotated",
			zap.Uint("user_id", claims.UserID),
			zap.String("old_jti", claims.JTI),
			zap.String("new_jti", pair.RefreshClaims.JTI))
	}

	return pair, nil
}

// ListRevocations exposes the user's ledger history for support tooling,
// most recent first.
func (s *Service) ListRevocations(ctx context.Context, userID uint) ([]revocation.TokenRecord, error) {
	return s.ledger.ListRevocations(ctx, userID)
}
