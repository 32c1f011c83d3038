package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmhub/internal/models"
)

type PasswordResetRepository interface {
	Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.PasswordReset, error)
	GetByToken(ctx context.Context, token string) (*models.PasswordReset, error)
	MarkUsed(ctx context.Context, id int64) error
	DeleteExpired(ctx context.Context, before time.Time) (int64, error)
}

type passwordResetRepository struct {
	db *sql.DB
}

func NewPasswordResetRepository(db *sql.DB) PasswordResetRepository {
	return &passwordResetRepository{db: db}
}

func (r *passwordResetRepository) Create(ctx context.Context, userID int64, token string, expiresAt time.Time) (*models.PasswordReset, error) {
	pr := &models.PasswordReset{UserID: userID, Token: token, ExpiresAt: expiresAt}
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO password_resets (user_id, token, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, userID, token, expiresAt,
	).Scan(&pr.ID, &pr.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("create password reset: %w", err)
	}
	return pr, nil
}

func (r *passwordResetRepository) GetByToken(ctx context.Context, token string) (*models.PasswordReset, error) {
	pr := &models.PasswordReset{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, token, expires_at, used_at, created_at
		FROM password_resets
		WHERE token = $1`, token,
	).Scan(&pr.ID, &pr.UserID, &pr.Token, &pr.ExpiresAt, &pr.UsedAt, &pr.CreatedAt)
	if err != nil {
		return nil, notFound(err, "get password reset")
	}
	return pr, nil
}

func (r *passwordResetRepository) MarkUsed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE password_resets SET used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("mark password reset used: %w", err)
	}
	return nil
}

func (r *passwordResetRepository) DeleteExpired(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM password_resets WHERE expires_at < $1 OR used_at IS NOT NULL`, before)
	if err != nil {
		return 0, fmt.Errorf("delete expired password resets: %w", err)
	}
	return res.RowsAffected()
}
