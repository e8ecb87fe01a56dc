package rbac

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bookwell/authkit/config"
	"github.com/bookwell/authkit/services/logging"
	"github.com/bookwell/authkit/services/metrics"
	"go.uber.org/zap"
)

var (
	ErrDuplicateRule    = errors.New("permission rule already exists")
	ErrRuleNotFound     = errors.New("permission rule not found")
	ErrRoleNotFound     = errors.New("role not found")
	ErrInvalidAction    = errors.New("invalid permission action")
	ErrStoreUnavailable = errors.New("permission store unavailable")
)

// Service resolves permissions against a cached snapshot of the matrix.
// The snapshot is reloaded lazily once it is older than Permissions.CacheTTL,
// so changes propagate within that bound. A reload failure keeps serving the
// previous snapshot; with no snapshot at all every check denies.
type Service struct {
	config  *config.Config
	store   Store
	logger  *logging.Service
	metrics *metrics.Service

	mu       sync.RWMutex
	rules    map[ruleKey]bool
	loadedAt time.Time
}

func NewService(cfg *config.Config, store Store, logger *logging.Service, m *metrics.Service) *Service {
	if logger != nil {
		logger.Info("initializing permission resolver",
			zap.Duration("cache_ttl", cfg.Permissions.CacheTTL))
	}

	return &Service{
		config:  cfg,
		store:   store,
		logger:  logger,
		metrics: m,
	}
}

// IsAllowed answers one (role, resource, action) check. Absence of a rule
// denies; resolution failures deny.
func (s *Service) IsAllowed(ctx context.Context, roleID uint, resource string, action Action) bool {
	if !action.Valid() {
		if s.logger != nil {
			s.logger.Warn("permission check with invalid action",
				zap.Uint("role_id", roleID),
				zap.String("resource", resource),
				zap.String("action", string(action)))
		}
		return false
	}

	rules := s.snapshot(ctx)
	allowed := rules[ruleKey{RoleID: roleID, Resource: resource, Action: action}]

	s.metrics.ObserveAuthorization(resource, string(action), allowed)

	if s.logger != nil {
		s.logger.Debug("permission decision",
			zap.Uint("role_id", roleID),
			zap.String("resource", resource),
			zap.String("action", string(action)),
			zap.Bool("allowed", allowed))
	}

	return allowed
}

// AllowedActions lists the actions the role may take on a resource. It is a
// filter over the same snapshot IsAllowed reads; there is no separate source
// of truth.
func (s *Service) AllowedActions(ctx context.Context, roleID uint, resource string) []Action {
	rules := s.snapshot(ctx)

	actions := make([]Action, 0, 4)
	for _, action := range []Action{ActionView, ActionAdd, ActionEdit, ActionDelete} {
		if rules[ruleKey{RoleID: roleID, Resource: resource, Action: action}] {
			actions = append(actions, action)
		}
	}

	return actions
}

func (s *Service) snapshot(ctx context.Context) map[ruleKey]bool {
	s.mu.RLock()
	rules := s.rules
	fresh := rules != nil && time.Since(s.loadedAt) < s.config.Permissions.CacheTTL
	s.mu.RUnlock()

	if fresh {
		return rules
	}

	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) map[ruleKey]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rules != nil && time.Since(s.loadedAt) < s.config.Permissions.CacheTTL {
		return s.rules
	}

	loaded, err := s.store.LoadRules(ctx)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to reload permission snapshot, serving previous",
				zap.Error(err),
				zap.Time("loaded_at", s.loadedAt))
		}
		return s.rules
	}

	s.rules = loaded
	s.loadedAt = time.Now()

	if s.logger != nil {
		s.logger.Debug("permission snapshot reloaded",
			zap.Int("rule_count", len(loaded)))
	}

	return s.rules
}

// Invalidate drops the cached snapshot so the next check reloads. Called
// after local writes; other instances converge within the TTL.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.rules = nil
	s.loadedAt = time.Time{}
	s.mu.Unlock()
}

func (s *Service) CreateRole(ctx context.Context, name, description, color string) (*Role, error) {
	role := &Role{Name: name, Description: description, Color: color}

	if err := s.store.CreateRole(ctx, role); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to create role",
				zap.String("name", name),
				zap.Error(err))
		}
		return nil, fmt.Errorf("failed to create role: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("role created",
			zap.Uint("role_id", role.ID),
			zap.String("name", name))
	}

	return role, nil
}

func (s *Service) GetRole(ctx context.Context, id uint) (*Role, error) {
	return s.store.GetRole(ctx, id)
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.store.ListRoles(ctx)
}

func (s *Service) DeleteRole(ctx context.Context, id uint) error {
	if err := s.store.DeleteRole(ctx, id); err != nil {
		if s.logger != nil {
			s.logger.Error("failed to delete role",
				zap.Uint("role_id", id),
				zap.Error(err))
		}
		return fmt.Errorf("failed to delete role: %w", err)
	}

	s.Invalidate()

	if s.logger != nil {
		s.logger.Info("role deleted", zap.Uint("role_id", id))
	}

	return nil
}

// SetPermission inserts a new rule. A rule that already exists for the
// (role, resource, action) key is a data-integrity error, not an update.
func (s *Service) SetPermission(ctx context.Context, roleID uint, resource string, action Action, allowed bool) (*PermissionEntry, error) {
	if !action.Valid() {
		return nil, ErrInvalidAction
	}

	entry := &PermissionEntry{
		RoleID:   roleID,
		Resource: resource,
		Action:   action,
		Allowed:  allowed,
	}

	if err := s.store.AddPermission(ctx, entry); err != nil {
		if errors.Is(err, ErrDuplicateRule) {
			if s.logger != nil {
				s.logger.Error("duplicate permission rule rejected",
					zap.Uint("role_id", roleID),
					zap.String("resource", resource),
					zap.String("action", string(action)))
			}
			return nil, ErrDuplicateRule
		}
		if s.logger != nil {
			s.logger.Error("failed to add permission rule", zap.Error(err))
		}
		return nil, fmt.Errorf("failed to add permission rule: %w", err)
	}

	s.Invalidate()

	if s.logger != nil {
		s.logger.Info("permission rule added",
			zap.Uint("role_id", roleID),
			zap.String("resource", resource),
			zap.String("action", string(action)),
			zap.Bool("allowed", allowed))
	}

	return entry, nil
}

func (s *Service) UpdatePermission(ctx context.Context, roleID uint, resource string, action Action, allowed bool) error {
	if !action.Valid() {
		return ErrInvalidAction
	}

	if err := s.store.UpdatePermission(ctx, roleID, resource, action, allowed); err != nil {
		return err
	}

	s.Invalidate()

	if s.logger != nil {
		s.logger.Info("permission rule updated",
			zap.Uint("role_id", roleID),
			zap.String("resource", resource),
			zap.String("action", string(action)),
			zap.Bool("allowed", allowed))
	}

	return nil
}

func (s *Service) RemovePermission(ctx context.Context, roleID uint, resource string, action Action) error {
	if !action.Valid() {
		return ErrInvalidAction
	}

	if err := s.store.RemovePermission(ctx, roleID, resource, action); err != nil {
		return err
	}

	s.Invalidate()

	if s.logger != nil {
		s.logger.Info("permission rule removed",
			zap.Uint("role_id", roleID),
			zap.String("resource", resource),
			zap.String("action", string(action)))
	}

	return nil
}
