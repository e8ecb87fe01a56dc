package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var (
	ErrDuplicateToken      = errors.New("token already has a revocation record")
	ErrInvalidExpiry       = errors.New("token expiry precedes revocation time")
	ErrInvalidJTI          = errors.New("token jti must be 1-255 characters")
	ErrIssuedTokenNotFound = errors.New("token not found in issuance log")
	ErrStoreNotConfigured  = errors.New("revocation store not configured")
	ErrStoreUnavailable    = errors.New("revocation store unavailable")
)

const maxJTILength = 255

// AuditInfo carries the request context attached to ledger writes.
type AuditInfo struct {
	DeviceInfo datatypes.JSON
	IPAddress  string
	UserAgent  string
}

type RevokeParams struct {
	JTI       string
	UserID    uint
	TokenType TokenType
	ExpiresAt time.Time
	// RevokedAt defaults to now; future values are clamped to now.
	RevokedAt time.Time
	Reason    Reason
	Audit     AuditInfo
}

type Service struct {
	config  *config.Config
	store   Store
	logger  *logging.Service
	metrics *metrics.Service
	stop    chan struct{}
}

func NewService(cfg *config.Config, store Store, logger *logging.Service, m *metrics.Service) *Service {
	if logger != nil {
		logger.Info("initializing revocation ledger",
			zap.Duration("purge_period", cfg.Revocation.PurgePeriod),
			zap.Duration("purge_grace", cfg.Revocation.PurgeGrace))
	}

	return &Service{
		config:  cfg,
		store:   store,
		logger:  logger,
		metrics: m,
		stop:    make(chan struct{}),
	}
}

// Revoke appends one ledger record. Duplicate jtis are an error here;
// treating re-revocation as success is the caller's decision.
func (s *Service) Revoke(ctx context.Context, p RevokeParams) (*TokenRecord, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	if p.JTI == "" || len(p.JTI) > maxJTILength {
		return nil, ErrInvalidJTI
	}

	now := time.Now()
	revokedAt := p.RevokedAt
	if revokedAt.IsZero() || revokedAt.After(now) {
		revokedAt = now
	}

	if p.ExpiresAt.Before(revokedAt) {
		if s.logger != nil {
			s.logger.Warn("rejecting revocation with expiry before revocation time",
				zap.String("jti", p.JTI),
				zap.Time("expires_at", p.ExpiresAt),
				zap.Time("revoked_at", revokedAt))
		}
		return nil, ErrInvalidExpiry
	}

	record := &TokenRecord{
		TokenJTI:   p.JTI,
		UserID:     p.UserID,
		TokenType:  p.TokenType,
		RevokedAt:  revokedAt,
		ExpiresAt:  p.ExpiresAt,
		Reason:     p.Reason,
		DeviceInfo: p.Audit.DeviceInfo,
		IPAddress:  p.Audit.IPAddress,
		UserAgent:  p.Audit.UserAgent,
	}

	start := time.Now()
	if err := s.store.Insert(ctx, record); err != nil {
		if errors.Is(err, ErrDuplicateToken) {
			if s.logger != nil {
				s.logger.Error("duplicate revocation record rejected",
					zap.String("jti", p.JTI),
					zap.Uint("user_id", p.UserID))
			}
			return nil, ErrDuplicateToken
		}
		if s.logger != nil {
			s.logger.Error("ledger write failed",
				zap.String("jti", p.JTI),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}
	s.metrics.ObserveLedgerLatency("revoke", time.Since(start).Seconds())
	s.metrics.ObserveRevocation(string(p.Reason))

	if s.logger != nil {
		s.logger.Info("token revoked",
			zap.String("jti", p.JTI),
			zap.Uint("user_id", p.UserID),
			zap.String("token_type", string(p.TokenType)),
			zap.String("reason", string(p.Reason)),
			zap.Time("expires_at", p.ExpiresAt))
	}

	return record, nil
}

// IsRevoked is the hot path; it runs on every authenticated request.
// Errors are surfaced so the authenticator can fail closed.
func (s *Service) IsRevoked(ctx context.Context, jti string) (bool, error) {
	if s.store == nil {
		return false, ErrStoreNotConfigured
	}

	start := time.Now()
	revoked, err := s.store.IsRevoked(ctx, jti)
	s.metrics.ObserveLedgerLatency("is_revoked", time.Since(start).Seconds())
	if err != nil {
		s.metrics.ObserveRevocationCheck("error")
		if s.logger != nil {
			s.logger.Error("revocation lookup failed",
				zap.String("jti", jti),
				zap.Error(err))
		}
		return false, fmt.Errorf("failed to check revocation status: %w", err)
	}

	if revoked {
		s.metrics.ObserveRevocationCheck("revoked")
	} else {
		s.metrics.ObserveRevocationCheck("valid")
	}

	return revoked, nil
}

// RevokeAllUserTokens revokes every live token recorded for the user,
// except excludeJTI when set. The write is a single transaction.
func (s *Service) RevokeAllUserTokens(ctx context.Context, userID uint, reason Reason, excludeJTI string, audit AuditInfo) (int64, error) {
	if s.store == nil {
		return 0, ErrStoreNotConfigured
	}

	if s.logger != nil {
		s.logger.Info("revoking all user tokens",
			zap.Uint("user_id", userID),
			zap.String("reason", string(reason)),
			zap.String("exclude_jti", excludeJTI))
	}

	start := time.Now()
	count, err := s.store.InsertAllForUser(ctx, userID, reason, excludeJTI, audit)
	s.metrics.ObserveLedgerLatency("revoke_all", time.Since(start).Seconds())
	if err != nil {
		if s.logger != nil {
			s.logger.Error("bulk revocation failed",
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
		return 0, fmt.Errorf("failed to revoke all user tokens: %w", err)
	}

	s.metrics.ObserveRevocations(string(reason), count)

	if s.logger != nil {
		s.logger.Info("revoked all user tokens",
			zap.Uint("user_id", userID),
			zap.String("reason", string(reason)),
			zap.Int64("count", count))
	}

	return count, nil
}

// PurgeExpired removes ledger rows whose expiry is before the cutoff.
// Running it twice with the same cutoff deletes nothing the second time.
func (s *Service) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	if s.store == nil {
		return 0, ErrStoreNotConfigured
	}

	count, err := s.store.PurgeExpired(ctx, before)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("ledger purge failed", zap.Error(err))
		}
		return 0, fmt.Errorf("failed to purge expired records: %w", err)
	}

	s.metrics.ObservePurgedRecords(count)

	if s.logger != nil && count > 0 {
		s.logger.Info("purged expired ledger records",
			zap.Int64("count", count),
			zap.Time("before", before))
	}

	return count, nil
}

// ListRevocations returns the user's ledger history, most recent first.
func (s *Service) ListRevocations(ctx context.Context, userID uint) ([]TokenRecord, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	records, err := s.store.ListByUser(ctx, userID)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to list revocations",
				zap.Uint("user_id", userID),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to list revocations: %w", err)
	}

	return records, nil
}

// RecordIssuedToken appends to the issuance log so bulk revocation can
// enumerate the user's live tokens later.
func (s *Service) RecordIssuedToken(ctx context.Context, jti string, userID uint, tokenType TokenType, issuedAt, expiresAt time.Time) error {
	if s.store == nil {
		return ErrStoreNotConfigured
	}

	if jti == "" || len(jti) > maxJTILength {
		return ErrInvalidJTI
	}

	token := &IssuedToken{
		TokenJTI:  jti,
		UserID:    userID,
		TokenType: tokenType,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}

	if err := s.store.RecordIssued(ctx, token); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to record issued token",
				zap.String("jti", jti),
				zap.Error(err))
		}
		return fmt.Errorf("failed to record issued token: %w", err)
	}

	return nil
}

// GetIssuedToken looks a token up in the issuance log, for callers that
// need its recorded owner and expiry (admin revocation).
func (s *Service) GetIssuedToken(ctx context.Context, jti string) (*IssuedToken, error) {
	if s.store == nil {
		return nil, ErrStoreNotConfigured
	}

	return s.store.GetIssued(ctx, jti)
}

func (s *Service) StartPurgeWorker(interval time.Duration) {
	if s.store == nil {
		if s.logger != nil {
			s.logger.Warn("cannot start purge worker: store not configured")
		}
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-s.config.Revocation.PurgeGrace)
				if _, err := s.PurgeExpired(context.Background(), cutoff); err != nil && s.logger != nil {
					s.logger.Error("purge worker failed", zap.Error(err))
				}
			}
		}
	}()

	if s.logger != nil {
		s.logger.Info("started ledger purge worker",
			zap.Duration("interval", interval))
	}
}

func (s *Service) StopPurgeWorker() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}
