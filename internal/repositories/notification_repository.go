package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type NotificationRepository interface {
	Create(ctx context.Context, n *models.Notification) error
	ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*models.Notification, error)
	UnreadCount(ctx context.Context, userID int64) (int, error)
	MarkRead(ctx context.Context, userID, id int64) error
	MarkAllRead(ctx context.Context, userID int64) (int64, error)
	// DeleteReadBefore purges the tenant's read notifications.
	DeleteReadBefore(ctx context.Context, before time.Time) (int64, error)
}

type notificationRepository struct {
	db *sql.DB
}

func NewNotificationRepository(db *sql.DB) NotificationRepository {
	return &notificationRepository{db: db}
}

func (r *notificationRepository) Create(ctx context.Context, n *models.Notification) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	n.TenantID = tid
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (tenant_id, user_id, kind, title, body, entity_type, entity_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		tid, n.UserID, n.Kind, n.Title, n.Body, n.EntityType, n.EntityID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("create notification: %w", err)
	}
	return nil
}

func (r *notificationRepository) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*models.Notification, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT id, tenant_id, user_id, kind, title, body, entity_type, entity_id, read_at, created_at
		FROM notifications
		WHERE tenant_id = $1 AND user_id = $2`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, tid, userID, pageLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		var n models.Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.EntityType,
			&n.EntityID, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, &n)
	}
	return out, rows.Err()
}

func (r *notificationRepository) UnreadCount(ctx context.Context, userID int64) (int, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notifications WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`,
		tid, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("unread count: %w", err)
	}
	return n, nil
}

func (r *notificationRepository) MarkRead(ctx context.Context, userID, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = COALESCE(read_at, NOW())
		WHERE tenant_id = $1 AND user_id = $2 AND id = $3`, tid, userID, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return expectOne(res, "mark notification read")
}

func (r *notificationRepository) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE notifications SET read_at = NOW()
		WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`, tid, userID)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return res.RowsAffected()
}

func (r *notificationRepository) DeleteReadBefore(ctx context.Context, before time.Time) (int64, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM notifications WHERE tenant_id = $1 AND read_at IS NOT NULL AND read_at < $2`, tid, before)
	if err != nil {
		return 0, fmt.Errorf("purge notifications: %w", err)
	}
	return res.RowsAffected()
}
