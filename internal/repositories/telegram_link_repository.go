package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmhub/internal/models"
)

type TelegramLink struct {
	ID        int64
	UserID    int64
	Code      string
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}

type TelegramLinkRepository interface {
	Create(ctx context.Context, userID int64, code string, ttl time.Duration) (*TelegramLink, error)
	// UseByCode consumes a live code exactly once.
	UseByCode(ctx context.Context, code string) (*TelegramLink, error)
}

type telegramLinkRepository struct{ db *sql.DB }

func NewTelegramLinkRepository(db *sql.DB) TelegramLinkRepository {
	return &telegramLinkRepository{db: db}
}

func (r *telegramLinkRepository) Create(ctx context.Context, userID int64, code string, ttl time.Duration) (*TelegramLink, error) {
	var l TelegramLink
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO telegram_links (user_id, code, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, code, expires_at, used, created_at`,
		userID, code, time.Now().Add(ttl),
	).Scan(&l.ID, &l.UserID, &l.Code, &l.ExpiresAt, &l.Used, &l.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create telegram link: %w", err)
	}
	return &l, nil
}

func (r *telegramLinkRepository) UseByCode(ctx context.Context, code string) (*TelegramLink, error) {
	var l TelegramLink
	err := withTx(ctx, r.db, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			SELECT id, user_id, code, expires_at, used, created_at
			FROM telegram_links
			WHERE code = $1
			FOR UPDATE`, code,
		).Scan(&l.ID, &l.UserID, &l.Code, &l.ExpiresAt, &l.Used, &l.CreatedAt)
		if err != nil {
			return notFound(err, "telegram link")
		}
		if l.Used || time.Now().After(l.ExpiresAt) {
			return fmt.Errorf("telegram link: %w", models.ErrNotFound)
		}
		_, err = tx.ExecContext(ctx, `UPDATE telegram_links SET used = TRUE WHERE id = $1`, l.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}
