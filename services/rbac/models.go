package rbac

import (
	"time"
)

type Action string

const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionEdit   Action = "edit"
	ActionDelete Action = "delete"
)

func (a Action) Valid() bool {
	switch a {
	case ActionView, ActionAdd, ActionEdit, ActionDelete:
		return true
	}
	return false
}

// Role groups permission entries. Color is presentational only and carries
// no security meaning.
type Role struct {
	ID          uint              `json:"id" gorm:"primaryKey"`
	Name        string            `json:"name" gorm:"uniqueIndex;size:100;not null"`
	Description string            `json:"description" gorm:"size:255"`
	Color       string            `json:"color" gorm:"size:32"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Permissions []PermissionEntry `json:"permissions,omitempty" gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

func (Role) TableName() string {
	return "roles"
}

// PermissionEntry is one (role, resource, action) rule. Absence of a rule
// means deny.
type PermissionEntry struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	RoleID    uint      `json:"role_id" gorm:"not null;uniqueIndex:idx_permission_rule,priority:1"`
	Resource  string    `json:"resource" gorm:"size:100;not null;uniqueIndex:idx_permission_rule,priority:2"`
	Action    Action    `json:"action" gorm:"size:16;not null;uniqueIndex:idx_permission_rule,priority:3"`
	Allowed   bool      `json:"allowed" gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

func (PermissionEntry) TableName() string {
	return "permission_entries"
}
