package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/utils"
)

const passwordResetTTL = time.Hour

type PasswordResetService interface {
	RequestReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
	// PurgeExpired removes reset tokens that expired before the cutoff.
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

type passwordResetService struct {
	userRepo repositories.UserRepository
	repo     repositories.PasswordResetRepository
	emails   EmailService
	auth     AuthService
	now      func() time.Time
	log      *zap.Logger
}

func NewPasswordResetService(userRepo repositories.UserRepository, repo repositories.PasswordResetRepository, emails EmailService, auth AuthService, log *zap.Logger) PasswordResetService {
	return &passwordResetService{
		userRepo: userRepo,
		repo:     repo,
		emails:   emails,
		auth:     auth,
		now:      time.Now,
		log:      log,
	}
}

func (s *passwordResetService) RequestReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return fmt.Errorf("%w: email is required", models.ErrInvalidInput)
	}
	user, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		// don't leak existence
		s.log.Info("[password-reset] request for unknown email", zap.String("email", email), zap.Error(err))
		return nil
	}

	token, err := utils.RandomToken(32)
	if err != nil {
		return err
	}
	if _, err := s.repo.Create(ctx, user.ID, token, s.now().Add(passwordResetTTL)); err != nil {
		return err
	}

	if s.emails != nil {
		if err := s.emails.SendPasswordResetEmail(user.Email, token); err != nil {
			s.log.Warn("[password-reset] failed to send email", zap.String("email", user.Email), zap.Error(err))
		}
	}
	return nil
}

func (s *passwordResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	token = strings.TrimSpace(token)
	newPassword = strings.TrimSpace(newPassword)
	if token == "" || newPassword == "" {
		return fmt.Errorf("%w: token and password are required", models.ErrInvalidInput)
	}

	pr, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return fmt.Errorf("%w: invalid or expired token", models.ErrInvalidInput)
		}
		return err
	}
	if pr.UsedAt != nil {
		return fmt.Errorf("%w: token already used", models.ErrInvalidInput)
	}
	if s.now().After(pr.ExpiresAt) {
		return fmt.Errorf("%w: token expired", models.ErrInvalidInput)
	}

	hash, err := s.auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, pr.UserID, hash); err != nil {
		return err
	}
	return s.repo.MarkUsed(ctx, pr.ID)
}

func (s *passwordResetService) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	return s.repo.DeleteExpired(ctx, before)
}
