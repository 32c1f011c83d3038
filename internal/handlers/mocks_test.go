package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/authz"
	"crmhub/internal/esign"
	"crmhub/internal/middleware"
	"crmhub/internal/models"
	"crmhub/internal/services"
)

const (
	testTenant int64 = 3
	salesUser  int64 = 7
	otherUser  int64 = 8
)

// actorAs binds an authenticated actor the way AuthMiddleware would.
func actorAs(userID, roleID int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := authz.WithActor(c.Request.Context(), authz.Actor{UserID: userID, TenantID: testTenant, RoleID: roleID})
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// builtin roles never reach the loader
var testPolicies = authz.NewPolicyCache(nil, 0)

func perm(e authz.Entity, a authz.Action) gin.HandlerFunc {
	return middleware.RequirePermission(testPolicies, zap.NewNop(), e, a)
}

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	return gin.New()
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type MockContactService struct {
	mock.Mock
	services.ContactService
}

func (m *MockContactService) GetByID(ctx context.Context, id int64) (*models.Contact, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Contact)
	return c, args.Error(1)
}

func (m *MockContactService) List(ctx context.Context, f models.ContactFilter) ([]*models.Contact, error) {
	args := m.Called(ctx, f)
	list, _ := args.Get(0).([]*models.Contact)
	return list, args.Error(1)
}

func (m *MockContactService) Update(ctx context.Context, c *models.Contact) error {
	return m.Called(ctx, c).Error(0)
}

func (m *MockContactService) Create(ctx context.Context, c *models.Contact) error {
	args := m.Called(ctx, c)
	c.ID = 100
	return args.Error(0)
}

type MockDealService struct {
	mock.Mock
	services.DealService
}

func (m *MockDealService) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*models.Deal)
	return d, args.Error(1)
}

func (m *MockDealService) Move(ctx context.Context, dealID, toStageID int64, position int) (*models.Deal, error) {
	args := m.Called(ctx, dealID, toStageID, position)
	d, _ := args.Get(0).(*models.Deal)
	return d, args.Error(1)
}

type MockSignatureWebhookService struct {
	mock.Mock
}

func (m *MockSignatureWebhookService) Handle(ctx context.Context, provider string, d esign.Delivery) (string, error) {
	args := m.Called(ctx, provider, d)
	return args.String(0), args.Error(1)
}

type MockReportService struct {
	mock.Mock
	services.ReportService
}

func (m *MockReportService) Run(ctx context.Context, def *models.ReportDefinition, p *authz.Policy, actorID int64) (*models.ReportResult, error) {
	args := m.Called(ctx, def, p, actorID)
	r, _ := args.Get(0).(*models.ReportResult)
	return r, args.Error(1)
}

type MockMaintenanceService struct {
	mock.Mock
}

func (m *MockMaintenanceService) Cleanup(ctx context.Context, days int) (*services.CleanupResult, error) {
	args := m.Called(ctx, days)
	r, _ := args.Get(0).(*services.CleanupResult)
	return r, args.Error(1)
}

type MockAuthService struct {
	mock.Mock
	services.AuthService
}

func (m *MockAuthService) Login(ctx context.Context, email, password string) (*services.TokenPair, error) {
	args := m.Called(ctx, email, password)
	p, _ := args.Get(0).(*services.TokenPair)
	return p, args.Error(1)
}

type MockPasswordResetService struct {
	mock.Mock
	services.PasswordResetService
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

type MockUserService struct {
	mock.Mock
	services.UserService
}

func (m *MockUserService) CreateUserWithPassword(ctx context.Context, user *models.User, plainPassword string) error {
	return m.Called(ctx, user, plainPassword).Error(0)
}

type stubPinger struct{ err error }

func (s stubPinger) PingContext(context.Context) error { return s.err }
