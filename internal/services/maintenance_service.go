package services

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
)

const DefaultRetentionDays = 90

type CleanupResult struct {
	NotificationsDeleted int64 `json:"notifications_deleted"`
	ResetTokensDeleted   int64 `json:"reset_tokens_deleted"`
}

type MaintenanceService interface {
	// Cleanup removes read notifications older than days and expired
	// password reset tokens.
	Cleanup(ctx context.Context, days int) (*CleanupResult, error)
}

type maintenanceService struct {
	notifications repositories.NotificationRepository
	resets        PasswordResetService
	log           *zap.Logger
	now           func() time.Time
}

func NewMaintenanceService(notifications repositories.NotificationRepository, resets PasswordResetService, log *zap.Logger) MaintenanceService {
	return &maintenanceService{notifications: notifications, resets: resets, log: log, now: time.Now}
}

func (s *maintenanceService) Cleanup(ctx context.Context, days int) (*CleanupResult, error) {
	if days == 0 {
		days = DefaultRetentionDays
	}
	if days < 0 {
		return nil, fmt.Errorf("%w: days must be positive", models.ErrInvalidInput)
	}
	now := s.now()
	var res CleanupResult
	var err error
	res.NotificationsDeleted, err = s.notifications.DeleteReadBefore(ctx, now.AddDate(0, 0, -days))
	if err != nil {
		return nil, err
	}
	res.ResetTokensDeleted, err = s.resets.PurgeExpired(ctx, now)
	if err != nil {
		return nil, err
	}
	s.log.Info("[admin][cleanup] done",
		zap.Int("days", days),
		zap.Int64("notifications", res.NotificationsDeleted),
		zap.Int64("reset_tokens", res.ResetTokensDeleted))
	return &res, nil
}
