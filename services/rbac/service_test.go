package rbac

import (
	"context"
	"testing"
	"time"

	"github.com/bookwell/authkit/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	db := testutils.NewTestDB(t, &Role{}, &PermissionEntry{})
	return NewService(testutils.GetTestConfig(), NewGormStore(db), nil, nil)
}

func TestService_IsAllowed_DenyByDefault(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	assert.False(t, service.IsAllowed(ctx, 1, "appointments", ActionView))
}

func TestService_IsAllowed_RoundTrip(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "salon", "salon owner", "#7c3aed")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionDelete, true)
	require.NoError(t, err)

	assert.True(t, service.IsAllowed(ctx, role.ID, "appointments", ActionDelete))
	assert.False(t, service.IsAllowed(ctx, role.ID, "users", ActionDelete))
	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionEdit))
}

func TestService_IsAllowed_ExplicitDeny(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "reception", "", "")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionDelete, false)
	require.NoError(t, err)

	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionDelete))
}

func TestService_IsAllowed_InvalidAction(t *testing.T) {
	service := newTestService(t)

	assert.False(t, service.IsAllowed(context.Background(), 1, "appointments", Action("purge")))
}

func TestService_SetPermission_DuplicateRule(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "salon", "", "")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionEdit, true)
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionEdit, false)
	assert.ErrorIs(t, err, ErrDuplicateRule)
}

func TestService_SetPermission_InvalidAction(t *testing.T) {
	service := newTestService(t)

	_, err := service.SetPermission(context.Background(), 1, "appointments", Action("transmogrify"), true)
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestService_AllowedActions(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "salon", "", "")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionView, true)
	require.NoError(t, err)
	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionAdd, true)
	require.NoError(t, err)
	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionDelete, false)
	require.NoError(t, err)

	actions := service.AllowedActions(ctx, role.ID, "appointments")
	assert.ElementsMatch(t, []Action{ActionView, ActionAdd}, actions)

	assert.Empty(t, service.AllowedActions(ctx, role.ID, "users"))
}

func TestService_UpdatePermission(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "salon", "", "")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionEdit, false)
	require.NoError(t, err)
	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionEdit))

	require.NoError(t, service.UpdatePermission(ctx, role.ID, "appointments", ActionEdit, true))
	assert.True(t, service.IsAllowed(ctx, role.ID, "appointments", ActionEdit))

	err = service.UpdatePermission(ctx, role.ID, "users", ActionEdit, true)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestService_RemovePermission(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "salon", "", "")
	require.NoError(t, err)

	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionDelete, true)
	require.NoError(t, err)
	require.True(t, service.IsAllowed(ctx, role.ID, "appointments", ActionDelete))

	require.NoError(t, service.RemovePermission(ctx, role.ID, "appointments", ActionDelete))
	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionDelete))

	err = service.RemovePermission(ctx, role.ID, "appointments", ActionDelete)
	assert.ErrorIs(t, err, ErrRuleNotFound)
}

func TestService_DeleteRole_RemovesRules(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	role, err := service.CreateRole(ctx, "temp", "", "")
	require.NoError(t, err)
	_, err = service.SetPermission(ctx, role.ID, "appointments", ActionView, true)
	require.NoError(t, err)

	require.NoError(t, service.DeleteRole(ctx, role.ID))

	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionView))
	_, err = service.GetRole(ctx, role.ID)
	assert.ErrorIs(t, err, ErrRoleNotFound)
}

func TestService_SnapshotStaleness(t *testing.T) {
	db := testutils.NewTestDB(t, &Role{}, &PermissionEntry{})
	cfg := testutils.GetTestConfig()
	cfg.Permissions.CacheTTL = 50 * time.Millisecond
	store := NewGormStore(db)
	service := NewService(cfg, store, nil, nil)
	ctx := context.Background()

	role := &Role{Name: "salon"}
	require.NoError(t, store.CreateRole(ctx, role))

	// Prime the cache while no rule exists.
	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionView))

	// Write behind the cache's back, as another instance would.
	require.NoError(t, store.AddPermission(ctx, &PermissionEntry{
		RoleID: role.ID, Resource: "appointments", Action: ActionView, Allowed: true,
	}))

	// Still the stale snapshot (stale-deny is safe).
	assert.False(t, service.IsAllowed(ctx, role.ID, "appointments", ActionView))

	time.Sleep(60 * time.Millisecond)

	assert.True(t, service.IsAllowed(ctx, role.ID, "appointments", ActionView))
}

func TestService_ListRoles(t *testing.T) {
	service := newTestService(t)
	ctx := context.Background()

	_, err := service.CreateRole(ctx, "salon", "", "")
	require.NoError(t, err)
	_, err = service.CreateRole(ctx, "admin", "", "")
	require.NoError(t, err)

	roles, err := service.ListRoles(ctx)
	require.NoError(t, err)
	require.Len(t, roles, 2)
	assert.Equal(t, "admin", roles[0].Name)
	assert.Equal(t, "salon", roles[1].Name)
}

func TestGormStore_LoadRules_MostRestrictiveWins(t *testing.T) {
	db := testutils.NewTestDB(t, &Role{})
	// Create the table without the composite unique index so conflicting
	// rows can exist, mirroring a corrupted matrix.
	type permissionEntries struct {
		ID       uint `gorm:"primaryKey"`
		RoleID   uint
		Resource string
		Action   string
		Allowed  bool
	}
	require.NoError(t, db.AutoMigrate(&permissionEntries{}))

	require.NoError(t, db.Create(&permissionEntries{RoleID: 1, Resource: "appointments", Action: "delete", Allowed: true}).Error)
	require.NoError(t, db.Create(&permissionEntries{RoleID: 1, Resource: "appointments", Action: "delete", Allowed: false}).Error)

	store := NewGormStore(db)
	rules, err := store.LoadRules(context.Background())
	require.NoError(t, err)

	assert.False(t, rules[ruleKey{RoleID: 1, Resource: "appointments", Action: ActionDelete}])
}
