package models

import "time"

type User struct {
	ID             int64  `json:"id"`
	TenantID       int64  `json:"tenant_id"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	PasswordHash   string `json:"-"`
	RoleID         int64  `json:"role_id"`
	TelegramChatID *int64 `json:"telegram_chat_id,omitempty"`

	// opaque refresh token, rotated on every /refresh
	RefreshToken     *string    `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
	RefreshRevoked   bool       `json:"-"`

	CreatedAt time.Time `json:"created_at"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type SignupRequest struct {
	CompanyName string `json:"company_name" binding:"required"`
	Email       string `json:"email" binding:"required"`
	FullName    string `json:"full_name"`
	Password    string `json:"password" binding:"required"`
}
