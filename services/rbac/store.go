package rbac

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type ruleKey struct {
	RoleID   uint
	Resource string
	Action   Action
}

type Store interface {
	LoadRules(ctx context.Context) (map[ruleKey]bool, error)

	CreateRole(ctx context.Context, role *Role) error
	GetRole(ctx context.Context, id uint) (*Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	DeleteRole(ctx context.Context, id uint) error

	AddPermission(ctx context.Context, entry *PermissionEntry) error
	UpdatePermission(ctx context.Context, roleID uint, resource string, action Action, allowed bool) error
	RemovePermission(ctx context.Context, roleID uint, resource string, action Action) error
}

type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// LoadRules materializes the full permission matrix. Conflicting rows for
// the same key (which the unique index should prevent) resolve to the most
// restrictive value.
func (g *GormStore) LoadRules(ctx context.Context) (map[ruleKey]bool, error) {
	var entries []PermissionEntry
	if err := g.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, wrapStoreErr(err)
	}

	rules := make(map[ruleKey]bool, len(entries))
	for _, e := range entries {
		key := ruleKey{RoleID: e.RoleID, Resource: e.Resource, Action: e.Action}
		if existing, ok := rules[key]; ok {
			rules[key] = existing && e.Allowed
			continue
		}
		rules[key] = e.Allowed
	}

	return rules, nil
}

func (g *GormStore) CreateRole(ctx context.Context, role *Role) error {
	if err := g.db.WithContext(ctx).Create(role).Error; err != nil {
		return wrapStoreErr(err)
	}
	return nil
}

func (g *GormStore) GetRole(ctx context.Context, id uint) (*Role, error) {
	var role Role
	err := g.db.WithContext(ctx).Preload("Permissions").First(&role, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoleNotFound
		}
		return nil, wrapStoreErr(err)
	}

	return &role, nil
}

func (g *GormStore) ListRoles(ctx context.Context) ([]Role, error) {
	var roles []Role
	if err := g.db.WithContext(ctx).Preload("Permissions").Order("name").Find(&roles).Error; err != nil {
		return nil, wrapStoreErr(err)
	}
	return roles, nil
}

func (g *GormStore) DeleteRole(ctx context.Context, id uint) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("role_id = ?", id).Delete(&PermissionEntry{}).Error; err != nil {
			return wrapStoreErr(err)
		}
		if err := tx.Delete(&Role{}, id).Error; err != nil {
			return wrapStoreErr(err)
		}
		return nil
	})
}

func (g *GormStore) AddPermission(ctx context.Context, entry *PermissionEntry) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		err := tx.Model(&PermissionEntry{}).
			Where("role_id = ? AND resource = ? AND action = ?", entry.RoleID, entry.Resource, entry.Action).
			Count(&count).Error
		if err != nil {
			return wrapStoreErr(err)
		}
		if count > 0 {
			return ErrDuplicateRule
		}

		if err := tx.Create(entry).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateRule
			}
			return wrapStoreErr(err)
		}

		return nil
	})
}

func (g *GormStore) UpdatePermission(ctx context.Context, roleID uint, resource string, action Action, allowed bool) error {
	result := g.db.WithContext(ctx).Model(&PermissionEntry{}).
		Where("role_id = ? AND resource = ? AND action = ?", roleID, resource, action).
		Update("allowed", allowed)
	if result.Error != nil {
		return wrapStoreErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

func (g *GormStore) RemovePermission(ctx context.Context, roleID uint, resource string, action Action) error {
	result := g.db.WithContext(ctx).
		Where("role_id = ? AND resource = ? AND action = ?", roleID, resource, action).
		Delete(&PermissionEntry{})
	if result.Error != nil {
		return wrapStoreErr(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRuleNotFound
	}

	return nil
}

func wrapStoreErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
