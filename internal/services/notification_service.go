package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/tenant"
)

const telegramLinkTTL = 15 * time.Minute

// Notifier is what other services use to reach a user.
type Notifier interface {
	Notify(ctx context.Context, n *models.Notification) error
}

// Pusher delivers a payload to a user's live sockets.
type Pusher interface {
	Push(tenantID, userID int64, v any)
}

type NotificationService interface {
	Notifier
	List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)

	RequestTelegramLink(ctx context.Context, userID int64) (*repositories.TelegramLink, error)
	// HandleTelegramUpdate processes one bot update; only "/link <code>"
	// and "/start <code>" do anything.
	HandleTelegramUpdate(ctx context.Context, upd tgbotapi.Update) error
}

type notificationService struct {
	repo  repositories.NotificationRepository
	users repositories.UserRepository
	links repositories.TelegramLinkRepository
	push  Pusher
	tg    TelegramSender
	log   *zap.Logger
}

func NewNotificationService(
	repo repositories.NotificationRepository,
	users repositories.UserRepository,
	links repositories.TelegramLinkRepository,
	push Pusher,
	tg TelegramSender,
	log *zap.Logger,
) NotificationService {
	return &notificationService{repo: repo, users: users, links: links, push: push, tg: tg, log: log}
}

// Notify stores n and then tries the live channels. Delivery failures on
// the socket or Telegram are logged, not returned.
func (s *notificationService) Notify(ctx context.Context, n *models.Notification) error {
	if n.UserID <= 0 {
		return fmt.Errorf("%w: notification without recipient", models.ErrInvalidInput)
	}
	if err := s.repo.Create(ctx, n); err != nil {
		return fmt.Errorf("notify: %w", err)
	}

	if s.push != nil {
		s.push.Push(n.TenantID, n.UserID, n)
	}

	if s.tg == nil {
		return nil
	}
	u, err := s.users.GetByID(ctx, n.UserID)
	if err != nil {
		s.log.Warn("[notify][tg] recipient lookup failed", zap.Int64("user_id", n.UserID), zap.Error(err))
		return nil
	}
	if u.TelegramChatID == nil {
		return nil
	}
	if err := s.tg.SendMessage(*u.TelegramChatID, telegramText(n)); err != nil {
		s.log.Warn("[notify][tg] send failed", zap.Int64("user_id", n.UserID), zap.Error(err))
	}
	return nil
}

func telegramText(n *models.Notification) string {
	var b strings.Builder
	b.WriteString("<b>")
	b.WriteString(html.EscapeString(n.Title))
	b.WriteString("</b>")
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(html.EscapeString(n.Body))
	}
	return b.String()
}

func (s *notificationService) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	return s.repo.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

func (s *notificationService) UnreadCount(ctx context.Context, userID int64) (int, error) {
	return s.repo.UnreadCount(ctx, userID)
}

func (s *notificationService) MarkRead(ctx context.Context, userID, id int64) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	return s.repo.MarkAllRead(ctx, userID)
}

func (s *notificationService) RequestTelegramLink(ctx context.Context, userID int64) (*repositories.TelegramLink, error) {
	if _, err := tenant.Require(ctx); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return s.links.Create(ctx, userID, code, telegramLinkTTL)
}

func (s *notificationService) HandleTelegramUpdate(ctx context.Context, upd tgbotapi.Update) error {
	msg := upd.Message
	if msg == nil || msg.Chat == nil || !msg.IsCommand() {
		return nil
	}
	switch msg.Command() {
	case "link", "start":
	default:
		return nil
	}
	code := strings.ToUpper(strings.TrimSpace(msg.CommandArguments()))
	if code == "" {
		return nil
	}
	chatID := msg.Chat.ID

	link, err := s.links.UseByCode(ctx, code)
	if errors.Is(err, models.ErrNotFound) {
		s.log.Info("[tg][link] unknown or expired code", zap.Int64("chat_id", chatID))
		s.reply(chatID, "This code is invalid or has expired.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("telegram link: %w", err)
	}
	if err := s.users.SetTelegramChat(ctx, link.UserID, &chatID); err != nil {
		return fmt.Errorf("telegram link: %w", err)
	}
	s.log.Info("[tg][link] chat linked", zap.Int64("user_id", link.UserID), zap.Int64("chat_id", chatID))
	s.reply(chatID, "Your account is linked. Notifications will arrive here.")
	return nil
}

func (s *notificationService) reply(chatID int64, text string) {
	if s.tg == nil {
		return
	}
	if err := s.tg.SendMessage(chatID, text); err != nil {
		s.log.Warn("[tg][reply] failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}
