package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/config"
	"crmhub/internal/models"
	"crmhub/internal/utils"
)

var testJWT = config.JWTConfig{Secret: "test-secret", AccessTTL: 15 * time.Minute, RefreshTTL: time.Hour}

func TestHashAndCheckPassword(t *testing.T) {
	svc := NewAuthService(nil, nil, nil, testJWT, zap.NewNop())

	_, err := svc.HashPassword("short")
	assert.ErrorIs(t, err, models.ErrInvalidInput)

	hash, err := svc.HashPassword("correct horse")
	require.NoError(t, err)
	assert.NoError(t, svc.CheckPassword(hash, "correct horse"))
	assert.ErrorIs(t, svc.CheckPassword(hash, "battery staple"), models.ErrUnauthorized)
	assert.ErrorIs(t, svc.CheckPassword("", "correct horse"), models.ErrUnauthorized)
}

func TestSlugify(t *testing.T) {
	assert.Equal(t, "acme-corp", slugify("  Acme Corp! "))
	assert.Equal(t, "o-brien-sons", slugify("O'Brien & Sons"))
	assert.Equal(t, "", slugify("***"))
}

func TestLogin(t *testing.T) {
	users := new(MockUserRepository)
	svc := NewAuthService(nil, users, nil, testJWT, zap.NewNop())
	ctx := context.Background()

	hash, err := svc.HashPassword("secret-pass")
	require.NoError(t, err)
	user := &models.User{ID: 4, TenantID: 2, RoleID: 10, Email: "ann@example.com", PasswordHash: hash}

	users.On("GetByEmail", ctx, "ann@example.com").Return(user, nil)
	users.On("GetByEmail", ctx, "nobody@example.com").Return(nil, models.ErrNotFound)
	users.On("UpdateRefresh", ctx, int64(4), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	pair, err := svc.Login(ctx, " ann@example.com ", "secret-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := utils.ParseAccessToken([]byte(testJWT.Secret), pair.AccessToken, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(4), claims.UserID)
	assert.Equal(t, int64(2), claims.TenantID)
	assert.Equal(t, int64(10), claims.RoleID)

	_, err = svc.Login(ctx, "ann@example.com", "wrong-pass")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Login(ctx, "nobody@example.com", "secret-pass")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}

func TestSignupThenLogin_PasswordWhitespace(t *testing.T) {
	tenants := new(MockTenantRepository)
	users := new(MockUserRepository)
	svc := NewAuthService(tenants, users, nil, testJWT, zap.NewNop())
	ctx := context.Background()

	var stored *models.User
	tenants.On("Bootstrap", ctx, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(1).(*models.Tenant).ID = 2
			stored = args.Get(2).(*models.User)
			stored.ID = 4
			stored.TenantID = 2
		}).Return(nil)
	users.On("UpdateRefresh", ctx, int64(4), mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).Return(nil)

	_, err := svc.Signup(ctx, models.SignupRequest{CompanyName: "Acme", Email: "a@b.c", Password: "secret-pass "})
	require.NoError(t, err)
	require.NotNil(t, stored)
	users.On("GetByEmail", ctx, "a@b.c").Return(stored, nil)

	for _, pw := range []string{"secret-pass ", "secret-pass", "  secret-pass"} {
		_, err := svc.Login(ctx, "a@b.c", pw)
		assert.NoError(t, err, "password %q", pw)
	}
	tenants.AssertExpectations(t)
}

func TestRefresh(t *testing.T) {
	users := new(MockUserRepository)
	svc := NewAuthService(nil, users, nil, testJWT, zap.NewNop())
	ctx := context.Background()

	users.On("RotateRefresh", ctx, "old-token", mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(&models.User{ID: 4, TenantID: 2, RoleID: 50}, nil)
	users.On("RotateRefresh", ctx, "stale", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)

	pair, err := svc.Refresh(ctx, "old-token")
	require.NoError(t, err)
	assert.NotEqual(t, "old-token", pair.RefreshToken)

	_, err = svc.Refresh(ctx, "stale")
	assert.ErrorIs(t, err, models.ErrUnauthorized)

	_, err = svc.Refresh(ctx, " ")
	assert.ErrorIs(t, err, models.ErrUnauthorized)
}
