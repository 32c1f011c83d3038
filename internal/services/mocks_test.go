package services

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"crmhub/internal/esign"
	"crmhub/internal/models"
	"crmhub/internal/reportquery"
	"crmhub/internal/repositories"
)

// Mocks embed the interface they stand in for; methods a test does not
// stub panic when called.

type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, n *models.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}

type MockQuoteRepository struct {
	mock.Mock
	repositories.QuoteRepository
}

func (m *MockQuoteRepository) GetByID(ctx context.Context, id int64) (*models.Quote, error) {
	args := m.Called(ctx, id)
	q, _ := args.Get(0).(*models.Quote)
	return q, args.Error(1)
}

func (m *MockQuoteRepository) GetByEnvelope(ctx context.Context, provider, envelopeID string) (*models.Quote, error) {
	args := m.Called(ctx, provider, envelopeID)
	q, _ := args.Get(0).(*models.Quote)
	return q, args.Error(1)
}

func (m *MockQuoteRepository) TransitionStatus(ctx context.Context, id int64, from, to models.QuoteStatus, at time.Time) error {
	args := m.Called(ctx, id, from, to, at)
	return args.Error(0)
}

type MockQuoteService struct {
	mock.Mock
	QuoteService
}

func (m *MockQuoteService) ApplySignatureEvent(ctx context.Context, q *models.Quote, to models.QuoteStatus) error {
	args := m.Called(ctx, q, to)
	return args.Error(0)
}

type MockDealService struct {
	mock.Mock
	DealService
}

func (m *MockDealService) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*models.Deal)
	return d, args.Error(1)
}

func (m *MockDealService) MoveToFirstWon(ctx context.Context, dealID int64) (*models.Deal, error) {
	args := m.Called(ctx, dealID)
	d, _ := args.Get(0).(*models.Deal)
	return d, args.Error(1)
}

type MockRenderer struct {
	mock.Mock
}

func (m *MockRenderer) RenderQuote(w io.Writer, q *models.Quote, seller string) error {
	args := m.Called(w, q, seller)
	return args.Error(0)
}

func (m *MockRenderer) ArchiveQuote(q *models.Quote, seller string) (string, error) {
	args := m.Called(q, seller)
	return args.String(0), args.Error(1)
}

type MockTaskRepository struct {
	mock.Mock
	repositories.TaskRepository
}

func (m *MockTaskRepository) ListDueForReminder(ctx context.Context, limit int) ([]models.Task, error) {
	args := m.Called(ctx, limit)
	tasks, _ := args.Get(0).([]models.Task)
	return tasks, args.Error(1)
}

func (m *MockTaskRepository) SetReminderFired(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockCampaignRepository struct {
	mock.Mock
	repositories.CampaignRepository
}

func (m *MockCampaignRepository) GetByID(ctx context.Context, id int64) (*models.Campaign, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Campaign)
	return c, args.Error(1)
}

func (m *MockCampaignRepository) TransitionStatus(ctx context.Context, id int64, from, to models.CampaignStatus) error {
	args := m.Called(ctx, id, from, to)
	return args.Error(0)
}

func (m *MockCampaignRepository) RecordResult(ctx context.Context, id int64, recipients, sent, failed int, sentAt time.Time) error {
	args := m.Called(ctx, id, recipients, sent, failed, sentAt)
	return args.Error(0)
}

type MockTemplateRepository struct {
	mock.Mock
	repositories.EmailTemplateRepository
}

func (m *MockTemplateRepository) GetByID(ctx context.Context, id int64) (*models.EmailTemplate, error) {
	args := m.Called(ctx, id)
	t, _ := args.Get(0).(*models.EmailTemplate)
	return t, args.Error(1)
}

type MockContactRepository struct {
	mock.Mock
	repositories.ContactRepository
}

func (m *MockContactRepository) ListAudience(ctx context.Context, f models.AudienceFilter) ([]*models.Contact, error) {
	args := m.Called(ctx, f)
	cs, _ := args.Get(0).([]*models.Contact)
	return cs, args.Error(1)
}

func (m *MockContactRepository) CountByStage(ctx context.Context, ownerID *int64) (map[models.LifecycleStage]int, error) {
	args := m.Called(ctx, ownerID)
	counts, _ := args.Get(0).(map[models.LifecycleStage]int)
	return counts, args.Error(1)
}

type MockCompanyRepository struct {
	mock.Mock
	repositories.CompanyRepository
}

func (m *MockCompanyRepository) GetByID(ctx context.Context, id int64) (*models.Company, error) {
	args := m.Called(ctx, id)
	c, _ := args.Get(0).(*models.Company)
	return c, args.Error(1)
}

type MockEmailService struct {
	mock.Mock
	EmailService
}

func (m *MockEmailService) Send(to, subject, htmlBody string) error {
	args := m.Called(to, subject, htmlBody)
	return args.Error(0)
}

type MockReportRepository struct {
	mock.Mock
	repositories.ReportRepository
}

func (m *MockReportRepository) Run(ctx context.Context, q *reportquery.Query) ([]map[string]any, error) {
	args := m.Called(ctx, q)
	rows, _ := args.Get(0).([]map[string]any)
	return rows, args.Error(1)
}

type MockDealRepository struct {
	mock.Mock
	repositories.DealRepository
}

func (m *MockDealRepository) GetByID(ctx context.Context, id int64) (*models.Deal, error) {
	args := m.Called(ctx, id)
	d, _ := args.Get(0).(*models.Deal)
	return d, args.Error(1)
}

func (m *MockDealRepository) StageOrder(ctx context.Context, stageID int64) ([]int64, error) {
	args := m.Called(ctx, stageID)
	ids, _ := args.Get(0).([]int64)
	return ids, args.Error(1)
}

func (m *MockDealRepository) ApplyMove(ctx context.Context, mv *models.DealMove) error {
	args := m.Called(ctx, mv)
	return args.Error(0)
}

func (m *MockDealRepository) Summary(ctx context.Context, ownerID *int64) (*models.PipelineSummary, error) {
	args := m.Called(ctx, ownerID)
	s, _ := args.Get(0).(*models.PipelineSummary)
	return s, args.Error(1)
}

type MockIdempotencyStore struct {
	mock.Mock
}

func (m *MockIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, key, ttl)
	return args.Bool(0), args.Error(1)
}

func (m *MockIdempotencyStore) Forget(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockIdempotencyStore) Close() error {
	return nil
}

// stubProvider returns fixed events or a fixed error from Parse.
type stubProvider struct {
	name   string
	events []esign.Event
	err    error
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Parse(esign.Delivery) ([]esign.Event, error) {
	return p.events, p.err
}

type MockUserRepository struct {
	mock.Mock
	repositories.UserRepository
}

func (m *MockUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

func (m *MockUserRepository) UpdateRefresh(ctx context.Context, userID int64, token string, expiresAt time.Time) error {
	args := m.Called(ctx, userID, token, expiresAt)
	return args.Error(0)
}

func (m *MockUserRepository) RotateRefresh(ctx context.Context, oldToken, newToken string, newExpiresAt time.Time) (*models.User, error) {
	args := m.Called(ctx, oldToken, newToken, newExpiresAt)
	u, _ := args.Get(0).(*models.User)
	return u, args.Error(1)
}

type MockTenantRepository struct {
	mock.Mock
	repositories.TenantRepository
}

func (m *MockTenantRepository) Bootstrap(ctx context.Context, t *models.Tenant, owner *models.User, pipeline *models.Pipeline) error {
	args := m.Called(ctx, t, owner, pipeline)
	return args.Error(0)
}

type MockPipelineRepository struct {
	mock.Mock
	repositories.PipelineRepository
}

func (m *MockPipelineRepository) GetByID(ctx context.Context, id int64) (*models.Pipeline, error) {
	args := m.Called(ctx, id)
	p, _ := args.Get(0).(*models.Pipeline)
	return p, args.Error(1)
}
