package revocation

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

type Reason string

const (
	ReasonLogout         Reason = "logout"
	ReasonLogoutAll      Reason = "logout_all"
	ReasonPasswordChange Reason = "password_change"
	ReasonSecurityBreach Reason = "security_breach"
	ReasonAdminRevoke    Reason = "admin_revoke"
	ReasonTokenRefresh   Reason = "token_refresh"
)

// TokenRecord is one ledger entry per revoked token. Records are created
// exactly once and never updated in place; corrections are new records.
type TokenRecord struct {
	ID         string         `json:"id" gorm:"primaryKey;size:36"`
	TokenJTI   string         `json:"token_jti" gorm:"column:token_jti;uniqueIndex;size:255;not null"`
	UserID     uint           `json:"user_id" gorm:"not null;index;index:idx_token_records_user_type,priority:1"`
	TokenType  TokenType      `json:"token_type" gorm:"size:16;not null;index:idx_token_records_user_type,priority:2"`
	RevokedAt  time.Time      `json:"revoked_at" gorm:"not null;index"`
	ExpiresAt  time.Time      `json:"expires_at" gorm:"not null;index"`
	Reason     Reason         `json:"reason" gorm:"size:32;not null"`
	DeviceInfo datatypes.JSON `json:"device_info,omitempty"`
	IPAddress  string         `json:"ip_address,omitempty" gorm:"size:45"`
	UserAgent  string         `json:"user_agent,omitempty" gorm:"size:500"`
	CreatedAt  time.Time      `json:"created_at"`
}

func (TokenRecord) TableName() string {
	return "token_records"
}

func (r *TokenRecord) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

// IssuedToken is the token-issuance log. Tokens are recorded here at issue
// time so that bulk revocation can enumerate a user's live tokens; the
// ledger alone cannot reconstruct that set.
type IssuedToken struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TokenJTI  string    `json:"token_jti" gorm:"column:token_jti;uniqueIndex;size:255;not null"`
	UserID    uint      `json:"user_id" gorm:"not null;index"`
	TokenType TokenType `json:"token_type" gorm:"size:16;not null"`
	IssuedAt  time.Time `json:"issued_at" gorm:"not null"`
	ExpiresAt time.Time `json:"expires_at" gorm:"not null;index"`
}

func (IssuedToken) TableName() string {
	return "issued_tokens"
}
