package services

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

type UserService interface {
	CreateUserWithPassword(ctx context.Context, user *models.User, plainPassword string) error
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, user *models.User) error
	DeleteUser(ctx context.Context, actorID, id int64) error
	ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error)
	GetUserCountByRole(ctx context.Context, roleID int64) (int, error)
}

type userService struct {
	repo        repositories.UserRepository
	roles       repositories.RoleRepository
	authService AuthService
	log         *zap.Logger
}

func NewUserService(repo repositories.UserRepository, roles repositories.RoleRepository, authService AuthService, log *zap.Logger) UserService {
	return &userService{
		repo:        repo,
		roles:       roles,
		authService: authService,
		log:         log,
	}
}

func (s *userService) checkRole(ctx context.Context, roleID int64) error {
	if authz.IsBuiltin(roleID) {
		return nil
	}
	if _, err := s.roles.GetByID(ctx, roleID); err != nil {
		return fmt.Errorf("%w: unknown role %d", models.ErrInvalidInput, roleID)
	}
	return nil
}

func (s *userService) CreateUserWithPassword(ctx context.Context, user *models.User, plainPassword string) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: valid email is required", models.ErrInvalidInput)
	}
	if user.RoleID == 0 {
		user.RoleID = authz.RoleSales
	}
	if err := s.checkRole(ctx, user.RoleID); err != nil {
		return err
	}

	hashedPassword, err := s.authService.HashPassword(plainPassword)
	if err != nil {
		return err
	}
	user.PasswordHash = hashedPassword

	if err := s.repo.Create(ctx, user); err != nil {
		return err
	}
	s.log.Info("[users][create] user created", zap.Int64("user_id", user.ID), zap.Int64("role_id", user.RoleID))
	return nil
}

func (s *userService) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *userService) UpdateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if !strings.Contains(user.Email, "@") {
		return fmt.Errorf("%w: valid email is required", models.ErrInvalidInput)
	}
	if err := s.checkRole(ctx, user.RoleID); err != nil {
		return err
	}
	return s.repo.Update(ctx, user)
}

func (s *userService) DeleteUser(ctx context.Context, actorID, id int64) error {
	if actorID == id {
		return fmt.Errorf("%w: you cannot delete yourself", models.ErrConflict)
	}
	return s.repo.Delete(ctx, id)
}

func (s *userService) ListUsers(ctx context.Context, limit, offset int) ([]*models.User, error) {
	return s.repo.List(ctx, limit, offset)
}

func (s *userService) GetUserCountByRole(ctx context.Context, roleID int64) (int, error) {
	return s.repo.CountByRole(ctx, roleID)
}
