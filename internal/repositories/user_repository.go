package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"crmhub/internal/models"
	"crmhub/internal/tenant"
)

type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id int64) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id int64) error
	List(ctx context.Context, limit, offset int) ([]*models.User, error)
	CountByRole(ctx context.Context, roleID int64) (int, error)

	// lookups that run before a tenant is known
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByRefreshToken(ctx context.Context, token string) (*models.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.User, error)

	UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error
	RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error)
	UpdatePassword(ctx context.Context, userID int64, hash string) error
	SetTelegramChat(ctx context.Context, userID int64, chatID *int64) error
}

type userRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) UserRepository {
	return &userRepository{db: db}
}

const userColumns = `id, tenant_id, email, full_name, password_hash, role_id, telegram_chat_id,
	refresh_token, refresh_expires_at, refresh_revoked, created_at`

func scanUser(row scanner) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.TenantID, &u.Email, &u.FullName, &u.PasswordHash, &u.RoleID,
		&u.TelegramChatID, &u.RefreshToken, &u.RefreshExpiresAt, &u.RefreshRevoked, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	user.TenantID = tid
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users (tenant_id, email, full_name, password_hash, role_id)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		user.TenantID, user.Email, user.FullName, user.PasswordHash, user.RoleID,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return conflictOr(err, "create user")
	}
	return nil
}

func (r *userRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 AND id = $2`, tid, id))
	if err != nil {
		return nil, notFound(err, "get user")
	}
	return u, nil
}

func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET email = $1, full_name = $2, role_id = $3
		WHERE tenant_id = $4 AND id = $5`,
		strings.ToLower(strings.TrimSpace(user.Email)), user.FullName, user.RoleID, tid, user.ID)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return expectOne(res, "update user")
}

func (r *userRepository) Delete(ctx context.Context, id int64) error {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE tenant_id = $1 AND id = $2`, tid, id)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return expectOne(res, "delete user")
}

func (r *userRepository) List(ctx context.Context, limit, offset int) ([]*models.User, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE tenant_id = $1 ORDER BY id LIMIT $2 OFFSET $3`,
		tid, pageLimit(limit), offset)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *userRepository) CountByRole(ctx context.Context, roleID int64) (int, error) {
	tid, err := tenant.Require(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND role_id = $2`, tid, roleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count users by role: %w", err)
	}
	return n, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1`, strings.ToLower(strings.TrimSpace(email))))
	if err != nil {
		return nil, notFound(err, "get user by email")
	}
	return u, nil
}

func (r *userRepository) GetByRefreshToken(ctx context.Context, token string) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE refresh_token = $1`, token))
	if err != nil {
		return nil, notFound(err, "get user by refresh token")
	}
	return u, nil
}

func (r *userRepository) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`, chatID))
	if err != nil {
		return nil, notFound(err, "get user by chat")
	}
	return u, nil
}

func (r *userRepository) UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE users SET refresh_token = $1, refresh_expires_at = $2, refresh_revoked = FALSE
		WHERE id = $3`, token, expiresAt, userID)
	if err != nil {
		return fmt.Errorf("update refresh: %w", err)
	}
	return nil
}

// RotateRefresh swaps the token only if the old one is still current, so a
// replayed refresh token loses the race.
func (r *userRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	u, err := scanUser(r.db.QueryRowContext(ctx, `
		UPDATE users SET refresh_token = $1, refresh_expires_at = $2
		WHERE refresh_token = $3 AND refresh_revoked = FALSE AND refresh_expires_at > NOW()
		RETURNING `+userColumns, newToken, newExpiresAt, oldToken))
	if err != nil {
		return nil, notFound(err, "rotate refresh")
	}
	return u, nil
}

func (r *userRepository) UpdatePassword(ctx context.Context, userID int64, hash string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $1, refresh_revoked = TRUE WHERE id = $2`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return expectOne(res, "update password")
}

func (r *userRepository) SetTelegramChat(ctx context.Context, userID int64, chatID *int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET telegram_chat_id = $1 WHERE id = $2`, chatID, userID)
	if err != nil {
		return fmt.Errorf("set telegram chat: %w", err)
	}
	return expectOne(res, "set telegram chat")
}
