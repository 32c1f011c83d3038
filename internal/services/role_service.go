package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

// RoleService manages tenant roles; built-in roles are listed but read-only.
type RoleService interface {
	Create(ctx context.Context, role *authz.Role) error
	Update(ctx context.Context, role *authz.Role) error
	Delete(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (*authz.Role, error)
	List(ctx context.Context) ([]*authz.Role, error)
}

type roleService struct {
	repo  repositories.RoleRepository
	users repositories.UserRepository
	cache *authz.PolicyCache
	log   *zap.Logger
}

func NewRoleService(repo repositories.RoleRepository, users repositories.UserRepository, cache *authz.PolicyCache, log *zap.Logger) RoleService {
	return &roleService{repo: repo, users: users, cache: cache, log: log}
}

func (s *roleService) Create(ctx context.Context, role *authz.Role) error {
	role.ID = 0
	role.System = false
	if err := role.Validate(); err != nil {
		return err
	}
	return s.repo.Create(ctx, role)
}

func (s *roleService) Update(ctx context.Context, role *authz.Role) error {
	if authz.IsBuiltin(role.ID) {
		return fmt.Errorf("%w: built-in roles cannot be changed", models.ErrForbidden)
	}
	role.System = false
	if err := role.Validate(); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, role); err != nil {
		return err
	}
	s.invalidate(ctx, role.ID)
	return nil
}

func (s *roleService) Delete(ctx context.Context, id int64) error {
	if authz.IsBuiltin(id) {
		return fmt.Errorf("%w: built-in roles cannot be deleted", models.ErrForbidden)
	}
	n, err := s.users.CountByRole(ctx, id)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: role is assigned to %d users", models.ErrConflict, n)
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *roleService) invalidate(ctx context.Context, roleID int64) {
	tid, _ := tenant.FromContext(ctx)
	s.cache.Invalidate(tid, roleID)
	s.log.Info("[roles][invalidate] policy dropped", zap.Int64("tenant_id", tid), zap.Int64("role_id", roleID))
}

func (s *roleService) Get(ctx context.Context, id int64) (*authz.Role, error) {
	if r, ok := authz.BuiltinRole(id); ok {
		return &r, nil
	}
	return s.repo.GetByID(ctx, id)
}

func (s *roleService) List(ctx context.Context) ([]*authz.Role, error) {
	custom, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	builtin := authz.BuiltinRoles()
	out := make([]*authz.Role, 0, len(builtin)+len(custom))
	for i := range builtin {
		out = append(out, &builtin[i])
	}
	return append(out, custom...), nil
}
