package revocation

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bookwell/authkit/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	db := testutils.NewTestDB(t, &TokenRecord{}, &IssuedToken{})
	return NewGormStore(db)
}

func TestGormStore_InsertAndIsRevoked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	revoked, err := store.IsRevoked(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, revoked)

	record := &TokenRecord{
		TokenJTI:  "abc123",
		UserID:    1,
		TokenType: TokenTypeAccess,
		RevokedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		Reason:    ReasonLogout,
		IPAddress: "203.0.113.7",
	}
	require.NoError(t, store.Insert(ctx, record))
	assert.NotEmpty(t, record.ID)

	revoked, err = store.IsRevoked(ctx, "abc123")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestGormStore_Insert_Duplicate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	record := &TokenRecord{
		TokenJTI:  "dup-jti",
		UserID:    1,
		TokenType: TokenTypeAccess,
		RevokedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		Reason:    ReasonLogout,
	}
	require.NoError(t, store.Insert(ctx, record))

	again := &TokenRecord{
		TokenJTI:  "dup-jti",
		UserID:    1,
		TokenType: TokenTypeAccess,
		RevokedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Hour),
		Reason:    ReasonAdminRevoke,
	}
	err := store.Insert(ctx, again)
	assert.ErrorIs(t, err, ErrDuplicateToken)
}

func TestGormStore_InsertAllForUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	issued := []IssuedToken{
		{TokenJTI: "a", UserID: 1, TokenType: TokenTypeAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{TokenJTI: "b", UserID: 1, TokenType: TokenTypeRefresh, IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour)},
		{TokenJTI: "new-jti", UserID: 1, TokenType: TokenTypeAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
		{TokenJTI: "stale", UserID: 1, TokenType: TokenTypeAccess, IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)},
		{TokenJTI: "other-user", UserID: 2, TokenType: TokenTypeAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour)},
	}
	for i := range issued {
		require.NoError(t, store.RecordIssued(ctx, &issued[i]))
	}

	count, err := store.InsertAllForUser(ctx, 1, ReasonPasswordChange, "new-jti", AuditInfo{IPAddress: "198.51.100.1"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	for jti, want := range map[string]bool{
		"a":          true,
		"b":          true,
		"new-jti":    false,
		"stale":      false,
		"other-user": false,
	} {
		revoked, err := store.IsRevoked(ctx, jti)
		require.NoError(t, err)
		assert.Equal(t, want, revoked, "jti %q", jti)
	}
}

func TestGormStore_InsertAllForUser_SkipsAlreadyRevoked(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordIssued(ctx, &IssuedToken{
		TokenJTI: "a", UserID: 1, TokenType: TokenTypeAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))
	require.NoError(t, store.RecordIssued(ctx, &IssuedToken{
		TokenJTI: "b", UserID: 1, TokenType: TokenTypeAccess, IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	require.NoError(t, store.Insert(ctx, &TokenRecord{
		TokenJTI: "a", UserID: 1, TokenType: TokenTypeAccess,
		RevokedAt: now, ExpiresAt: now.Add(time.Hour), Reason: ReasonLogout,
	}))

	count, err := store.InsertAllForUser(ctx, 1, ReasonSecurityBreach, "", AuditInfo{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	revoked, err := store.IsRevoked(ctx, "b")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestGormStore_InsertAllForUser_NoCandidates(t *testing.T) {
	store := newTestStore(t)

	count, err := store.InsertAllForUser(context.Background(), 99, ReasonLogoutAll, "", AuditInfo{})
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestGormStore_PurgeExpired_Idempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-2 * time.Hour)
	require.NoError(t, store.Insert(ctx, &TokenRecord{
		TokenJTI: "expired", UserID: 1, TokenType: TokenTypeAccess,
		RevokedAt: past, ExpiresAt: past.Add(time.Hour), Reason: ReasonLogout,
	}))
	require.NoError(t, store.Insert(ctx, &TokenRecord{
		TokenJTI: "live", UserID: 1, TokenType: TokenTypeAccess,
		RevokedAt: now, ExpiresAt: now.Add(time.Hour), Reason: ReasonLogout,
	}))

	count, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	count, err = store.PurgeExpired(ctx, now)
	require.NoError(t, err)
	assert.Zero(t, count)

	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
}

func TestGormStore_PurgeExpired_AllowsReRevocation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	past := now.Add(-2 * time.Hour)
	require.NoError(t, store.Insert(ctx, &TokenRecord{
		TokenJTI: "recycled", UserID: 1, TokenType: TokenTypeAccess,
		RevokedAt: past, ExpiresAt: past.Add(time.Hour), Reason: ReasonLogout,
	}))

	_, err := store.PurgeExpired(ctx, now)
	require.NoError(t, err)

	err = store.Insert(ctx, &TokenRecord{
		TokenJTI: "recycled", UserID: 1, TokenType: TokenTypeAccess,
		RevokedAt: now, ExpiresAt: now.Add(time.Hour), Reason: ReasonAdminRevoke,
	})
	assert.NoError(t, err)
}

func TestGormStore_ListByUser(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	for i, jti := range []string{"first", "second", "third"} {
		require.NoError(t, store.Insert(ctx, &TokenRecord{
			TokenJTI:  jti,
			UserID:    1,
			TokenType: TokenTypeAccess,
			RevokedAt: now.Add(time.Duration(i) * time.Minute),
			ExpiresAt: now.Add(time.Hour),
			Reason:    ReasonLogout,
		}))
	}
	require.NoError(t, store.Insert(ctx, &TokenRecord{
		TokenJTI: "foreign", UserID: 2, TokenType: TokenTypeAccess,
		RevokedAt: now, ExpiresAt: now.Add(time.Hour), Reason: ReasonLogout,
	}))

	records, err := store.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "third", records[0].TokenJTI)
	assert.Equal(t, "second", records[1].TokenJTI)
	assert.Equal(t, "first", records[2].TokenJTI)
}

func TestGormStore_GetIssued(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, store.RecordIssued(ctx, &IssuedToken{
		TokenJTI: "lookup-me", UserID: 5, TokenType: TokenTypeAccess,
		IssuedAt: now, ExpiresAt: now.Add(time.Hour),
	}))

	token, err := store.GetIssued(ctx, "lookup-me")
	require.NoError(t, err)
	assert.Equal(t, uint(5), token.UserID)
	assert.Equal(t, TokenTypeAccess, token.TokenType)

	_, err = store.GetIssued(ctx, "unknown")
	assert.ErrorIs(t, err, ErrIssuedTokenNotFound)
}

func TestGormStore_IsRevoked_StoreUnavailable(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	mock.ExpectQuery("SELECT count").WillReturnError(assert.AnError)

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	store := NewGormStore(db)

	_, err = store.IsRevoked(context.Background(), "any")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func newMockedStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return NewGormStore(db), mock
}

// Bulk revocation must run its candidate enumeration and multi-row
// insert inside one transaction, so a concurrent IsRevoked reader sees
// either none or all of a user's tokens revoked. The ordered
// expectations here fail if any statement moves outside BEGIN/COMMIT
// or the bulk insert splits into per-record writes.
func TestGormStore_InsertAllForUser_SingleTransaction(t *testing.T) {
	store, mock := newMockedStore(t)
	now := time.Now()

	candidates := sqlmock.NewRows([]string{"id", "token_jti", "user_id", "token_type", "issued_at", "expires_at"}).
		AddRow(1, "jti-a", 1, "access", now, now.Add(time.Hour)).
		AddRow(2, "jti-b", 1, "refresh", now, now.Add(24*time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "issued_tokens"`).WillReturnRows(candidates)
	mock.ExpectQuery(`SELECT (.+) FROM "token_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_jti"}))
	mock.ExpectExec(`INSERT INTO "token_records"`).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	count, err := store.InsertAllForUser(context.Background(), 1, ReasonLogoutAll, "", AuditInfo{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_InsertAllForUser_RollsBackOnInsertFailure(t *testing.T) {
	store, mock := newMockedStore(t)
	now := time.Now()

	candidates := sqlmock.NewRows([]string{"id", "token_jti", "user_id", "token_type", "issued_at", "expires_at"}).
		AddRow(1, "jti-a", 1, "access", now, now.Add(time.Hour))

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT (.+) FROM "issued_tokens"`).WillReturnRows(candidates)
	mock.ExpectQuery(`SELECT (.+) FROM "token_records"`).
		WillReturnRows(sqlmock.NewRows([]string{"token_jti"}))
	mock.ExpectExec(`INSERT INTO "token_records"`).WillReturnError(assert.AnError)
	mock.ExpectRollback()

	count, err := store.InsertAllForUser(context.Background(), 1, ReasonSecurityBreach, "", AuditInfo{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	assert.Zero(t, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
