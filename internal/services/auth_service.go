package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"crmhub/internal/authz"
	"crmhub/internal/config"
	"crmhub/internal/models"
	"crmhub/internal/repositories"
	"crmhub/internal/utils"
)

const minPasswordLen = 6

type TokenPair struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         *models.User `json:"user"`
}

type AuthService interface {
	HashPassword(password string) (string, error)
	CheckPassword(hash, password string) error

	// Signup creates a tenant with its first (Admin) user and a default pipeline.
	Signup(ctx context.Context, req models.SignupRequest) (*TokenPair, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	// Refresh rotates the opaque refresh token and issues a new access token.
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
}

type authService struct {
	tenants repositories.TenantRepository
	users   repositories.UserRepository
	emails  EmailService
	cfg     config.JWTConfig
	now     func() time.Time
	log     *zap.Logger
}

func NewAuthService(
	tenants repositories.TenantRepository,
	users repositories.UserRepository,
	emails EmailService,
	cfg config.JWTConfig,
	log *zap.Logger,
) AuthService {
	return &authService{tenants: tenants, users: users, emails: emails, cfg: cfg, now: time.Now, log: log}
}

// normalizePassword is applied on every hash and compare so signup, reset
// and login agree on surrounding whitespace.
func normalizePassword(password string) string {
	return strings.TrimSpace(password)
}

func (s *authService) HashPassword(password string) (string, error) {
	password = normalizePassword(password)
	if len(password) < minPasswordLen {
		return "", fmt.Errorf("%w: password must be at least %d characters", models.ErrInvalidInput, minPasswordLen)
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(b), nil
}

func (s *authService) CheckPassword(hash, password string) error {
	if strings.TrimSpace(hash) == "" {
		return models.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(normalizePassword(password))); err != nil {
		return models.ErrUnauthorized
	}
	return nil
}

// DefaultPipeline is the board every new tenant starts with.
func DefaultPipeline() *models.Pipeline {
	return &models.Pipeline{
		Name:      "Sales",
		IsDefault: true,
		Stages: []models.Stage{
			{Name: "New", Probability: 10, Kind: models.StageKindOpen},
			{Name: "Qualified", Probability: 25, Kind: models.StageKindOpen},
			{Name: "Proposal", Probability: 50, Kind: models.StageKindOpen},
			{Name: "Negotiation", Probability: 75, Kind: models.StageKindOpen},
			{Name: "Won", Probability: 100, Kind: models.StageKindWon},
			{Name: "Lost", Probability: 0, Kind: models.StageKindLost},
		},
	}
}

var slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)

func slugify(name string) string {
	s := slugInvalid.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
	return strings.Trim(s, "-")
}

func (s *authService) Signup(ctx context.Context, req models.SignupRequest) (*TokenPair, error) {
	company := strings.TrimSpace(req.CompanyName)
	email := strings.ToLower(strings.TrimSpace(req.Email))
	slug := slugify(company)
	if slug == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: company name and a valid email are required", models.ErrInvalidInput)
	}
	hash, err := s.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	t := &models.Tenant{Name: company, Slug: slug}
	owner := &models.User{
		Email:        email,
		FullName:     strings.TrimSpace(req.FullName),
		PasswordHash: hash,
		RoleID:       authz.RoleAdmin,
	}
	if err := s.tenants.Bootstrap(ctx, t, owner, DefaultPipeline()); err != nil {
		if errors.Is(err, models.ErrConflict) {
			return nil, fmt.Errorf("%w: company or email already registered", models.ErrConflict)
		}
		return nil, err
	}
	s.log.Info("[auth][signup] tenant created",
		zap.Int64("tenant_id", t.ID), zap.String("slug", t.Slug), zap.Int64("user_id", owner.ID))

	if s.emails != nil {
		if err := s.emails.SendWelcomeEmail(owner.Email, company); err != nil {
			s.log.Warn("[auth][signup] welcome email failed", zap.String("email", owner.Email), zap.Error(err))
		}
	}
	return s.issue(ctx, owner)
}

func (s *authService) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = strings.TrimSpace(email)
	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.log.Info("[auth][login] unknown email", zap.String("email", email))
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	if err := s.CheckPassword(user.PasswordHash, password); err != nil {
		s.log.Info("[auth][login] password mismatch", zap.Int64("user_id", user.ID))
		return nil, err
	}
	return s.issue(ctx, user)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return nil, models.ErrUnauthorized
	}
	next, err := utils.RandomToken(32)
	if err != nil {
		return nil, err
	}
	user, err := s.users.RotateRefresh(ctx, refreshToken, next, s.now().Add(s.cfg.RefreshTTL))
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrUnauthorized
		}
		return nil, err
	}
	access, err := s.accessToken(user)
	if err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: next,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		User:         user,
	}, nil
}

func (s *authService) accessToken(u *models.User) (string, error) {
	return utils.NewAccessToken([]byte(s.cfg.Secret), utils.Claims{
		UserID:   u.ID,
		TenantID: u.TenantID,
		RoleID:   u.RoleID,
	}, s.cfg.AccessTTL, s.now())
}

func (s *authService) issue(ctx context.Context, u *models.User) (*TokenPair, error) {
	access, err := s.accessToken(u)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.RandomToken(32)
	if err != nil {
		return nil, err
	}
	if err := s.users.UpdateRefresh(ctx, u.ID, refresh, s.now().Add(s.cfg.RefreshTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresIn:    int64(s.cfg.AccessTTL.Seconds()),
		User:         u,
	}, nil
}
