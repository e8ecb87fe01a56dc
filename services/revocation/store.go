package revocation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

type Store interface {
	Insert(ctx context.Context, record *TokenRecord) error

	IsRevoked(ctx context.Context, jti string) (bool, error)

	InsertAllForUser(ctx context.Context, userID uint, reason Reason, excludeJTI string, audit AuditInfo) (int64, error)

	PurgeExpired(ctx context.Context, before time.Time) (int64, error)

	ListByUser(ctx context.Context, userID uint) ([]TokenRecord, error)

	RecordIssued(ctx context.Context, token *IssuedToken) error

	GetIssued(ctx context.Context, jti string) (*IssuedToken, error)
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (g *GormStore) Insert(ctx context.Context, record *TokenRecord) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&TokenRecord{}).Where("token_jti = ?", record.TokenJTI).Count(&count).Error; err != nil {
			return wrapStoreErr(err)
		}
		if count > 0 {
			return ErrDuplicateToken
		}

		if err := tx.Create(record).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateToken
			}
			return wrapStoreErr(err)
		}

		return nil
	})
}

func (g *GormStore) IsRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := g.db.WithContext(ctx).
		Model(&TokenRecord{}).
		Where("token_jti = ?", jti).
		Count(&count).Error
	if err != nil {
		return false, wrapStoreErr(err)
	}

	return count > 0, nil
}

// InsertAllForUser enumerates the user's live tokens from the issuance log
// and inserts their ledger records in one transaction, so a concurrent
// IsRevoked reader sees either none or all of them.
func (g *GormStore) InsertAllForUser(ctx context.Context, userID uint, reason Reason, excludeJTI string, audit AuditInfo) (int64, error) {
	var revoked int64

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		query := tx.Model(&IssuedToken{}).
			Where("user_id = ? AND expires_at > ?", userID, now)
		if excludeJTI != "" {
			query = query.Where("token_jti <> ?", excludeJTI)
		}

		var candidates []IssuedToken
		if err := query.Find(&candidates).Error; err != nil {
			return wrapStoreErr(err)
		}

		if len(candidates) == 0 {
			return nil
		}

		jtis := make([]string, 0, len(candidates))
		for _, c := range candidates {
			jtis = append(jtis, c.TokenJTI)
		}

		var existing []string
		if err := tx.Model(&TokenRecord{}).
			Where("token_jti IN ?", jtis).
			Pluck("token_jti", &existing).Error; err != nil {
			return wrapStoreErr(err)
		}

		alreadyRevoked := make(map[string]struct{}, len(existing))
		for _, jti := range existing {
			alreadyRevoked[jti] = struct{}{}
		}

		records := make([]TokenRecord, 0, len(candidates))
		for _, c := range candidates {
			if _, ok := alreadyRevoked[c.TokenJTI]; ok {
				continue
			}
			records = append(records, TokenRecord{
				TokenJTI:   c.TokenJTI,
				UserID:     c.UserID,
				TokenType:  c.TokenType,
				RevokedAt:  now,
				ExpiresAt:  c.ExpiresAt,
				Reason:     reason,
				DeviceInfo: audit.DeviceInfo,
				IPAddress:  audit.IPAddress,
				UserAgent:  audit.UserAgent,
			})
		}

		if len(records) == 0 {
			return nil
		}

		if err := tx.Create(&records).Error; err != nil {
			return wrapStoreErr(err)
		}

		revoked = int64(len(records))
		return nil
	})

	return revoked, err
}

func (g *GormStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	result := g.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&TokenRecord{})
	if result.Error != nil {
		return 0, wrapStoreErr(result.Error)
	}

	issued := g.db.WithContext(ctx).
		Where("expires_at < ?", before).
		Delete(&IssuedToken{})
	if issued.Error != nil {
		return result.RowsAffected, wrapStoreErr(issued.Error)
	}

	return result.RowsAffected, nil
}

func (g *GormStore) ListByUser(ctx context.Context, userID uint) ([]TokenRecord, error) {
	var records []TokenRecord
	err := g.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("revoked_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	return records, nil
}

func (g *GormStore) RecordIssued(ctx context.Context, token *IssuedToken) error {
	if err := g.db.WithContext(ctx).Create(token).Error; err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (g *GormStore) GetIssued(ctx context.Context, jti string) (*IssuedToken, error) {
	var token IssuedToken
	err := g.db.WithContext(ctx).Where("token_jti = ?", jti).First(&token).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrIssuedTokenNotFound
		}
		return nil, wrapStoreErr(err)
	}

	return &token, nil
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
