package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"crmhub/internal/models"
)

type campaignFixture struct {
	repo      *MockCampaignRepository
	templates *MockTemplateRepository
	contacts  *MockContactRepository
	companies *MockCompanyRepository
	email     *MockEmailService
	notifier  *MockNotifier
	svc       *campaignService
}

func newCampaignFixture() *campaignFixture {
	f := &campaignFixture{
		repo:      new(MockCampaignRepository),
		templates: new(MockTemplateRepository),
		contacts:  new(MockContactRepository),
		companies: new(MockCompanyRepository),
		email:     new(MockEmailService),
		notifier:  new(MockNotifier),
	}
	f.svc = NewCampaignService(f.repo, f.templates, f.contacts, f.companies, f.email, f.notifier,
		"Acme", 2, zap.NewNop()).(*campaignService)
	return f
}

func TestCampaignSend(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	companyID := int64(50)
	stage := models.StageMQL
	campaign := &models.Campaign{ID: 9, OwnerID: 3, Name: "Spring", TemplateID: 4, AudienceStage: &stage, Status: models.CampaignDraft}

	f.repo.On("GetByID", ctx, int64(9)).Return(campaign, nil)
	f.repo.On("TransitionStatus", mock.Anything, int64(9), models.CampaignDraft, models.CampaignSending).Return(nil)
	f.templates.On("GetByID", mock.Anything, int64(4)).Return(&models.EmailTemplate{
		ID: 4, Subject: "Hello {{.FirstName}}", BodyHTML: "<p>{{.Company}}</p>",
	}, nil)
	f.contacts.On("ListAudience", mock.Anything, models.AudienceFilter{Stage: &stage}).Return([]*models.Contact{
		{ID: 1, FirstName: "Ann", Email: "ann@example.com", CompanyID: &companyID},
		{ID: 2, FirstName: "Bob", Email: "bob@example.com", CompanyID: &companyID},
		{ID: 3, FirstName: "Cy", Email: "cy@example.com"},
	}, nil)
	f.companies.On("GetByID", mock.Anything, companyID).Return(&models.Company{ID: companyID, Name: "Initech"}, nil).Once()
	f.email.On("Send", "ann@example.com", "Hello Ann", "<p>Initech</p>").Return(nil)
	f.email.On("Send", "bob@example.com", "Hello Bob", "<p>Initech</p>").Return(errors.New("mailbox full"))
	f.email.On("Send", "cy@example.com", "Hello Cy", "<p></p>").Return(nil)
	f.repo.On("RecordResult", mock.Anything, int64(9), 3, 2, 1, mock.AnythingOfType("time.Time")).Return(nil)
	f.notifier.On("Notify", mock.Anything, mock.MatchedBy(func(n *models.Notification) bool {
		return n.UserID == 3 && n.Kind == models.NotifyCampaignResult && n.EntityID == 9
	})).Return(nil)

	out, err := f.svc.Send(ctx, 9)
	require.NoError(t, err)

	assert.Equal(t, models.CampaignSent, out.Status)
	assert.Equal(t, 3, out.Recipients)
	assert.Equal(t, 2, out.SentCount)
	assert.Equal(t, 1, out.FailedCount)
	assert.NotNil(t, out.SentAt)
	f.repo.AssertExpectations(t)
	f.email.AssertExpectations(t)
	f.companies.AssertExpectations(t)
	f.notifier.AssertExpectations(t)
}

func TestCampaignSend_RejectsSent(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	f.repo.On("GetByID", ctx, int64(9)).Return(&models.Campaign{ID: 9, Status: models.CampaignSent}, nil)

	_, err := f.svc.Send(ctx, 9)
	assert.ErrorIs(t, err, models.ErrInvalidTransition)
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCampaignSend_RevertsOnBrokenTemplate(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	f.repo.On("GetByID", ctx, int64(9)).Return(&models.Campaign{ID: 9, TemplateID: 4, Status: models.CampaignScheduled}, nil)
	f.repo.On("TransitionStatus", mock.Anything, int64(9), models.CampaignScheduled, models.CampaignSending).Return(nil).Once()
	f.templates.On("GetByID", mock.Anything, int64(4)).Return(&models.EmailTemplate{Subject: "{{.Nope", BodyHTML: "x"}, nil)
	f.repo.On("TransitionStatus", mock.Anything, int64(9), models.CampaignSending, models.CampaignScheduled).Return(nil).Once()

	_, err := f.svc.Send(ctx, 9)
	assert.ErrorIs(t, err, models.ErrInvalidInput)
	f.repo.AssertExpectations(t)
	f.email.AssertNotCalled(t, "Send", mock.Anything, mock.Anything, mock.Anything)
}

func TestCampaignCancel(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	f.repo.On("GetByID", ctx, int64(1)).Return(&models.Campaign{ID: 1, Status: models.CampaignScheduled}, nil)
	f.repo.On("TransitionStatus", ctx, int64(1), models.CampaignScheduled, models.CampaignCancelled).Return(nil)
	require.NoError(t, f.svc.Cancel(ctx, 1))

	f2 := newCampaignFixture()
	f2.repo.On("GetByID", ctx, int64(2)).Return(&models.Campaign{ID: 2, Status: models.CampaignSent}, nil)
	assert.ErrorIs(t, f2.svc.Cancel(ctx, 2), models.ErrInvalidTransition)
}

func TestCampaignPrepare(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	f.svc.now = func() time.Time { return now }
	f.templates.On("GetByID", ctx, int64(4)).Return(&models.EmailTemplate{ID: 4}, nil)
	f.templates.On("GetByID", ctx, int64(5)).Return(nil, models.ErrNotFound)

	later := now.Add(time.Hour)
	scheduled := &models.Campaign{Name: "Later", TemplateID: 4, ScheduledAt: &later}
	require.NoError(t, f.svc.prepare(ctx, scheduled))
	assert.Equal(t, models.CampaignScheduled, scheduled.Status)

	draft := &models.Campaign{Name: "Now", TemplateID: 4, Status: models.CampaignSent}
	require.NoError(t, f.svc.prepare(ctx, draft))
	assert.Equal(t, models.CampaignDraft, draft.Status)

	past := now.Add(-time.Minute)
	assert.ErrorIs(t, f.svc.prepare(ctx, &models.Campaign{Name: "Past", TemplateID: 4, ScheduledAt: &past}), models.ErrInvalidInput)
	assert.ErrorIs(t, f.svc.prepare(ctx, &models.Campaign{Name: "Missing", TemplateID: 5}), models.ErrInvalidInput)

	bad := models.LifecycleStage("vip")
	assert.ErrorIs(t, f.svc.prepare(ctx, &models.Campaign{Name: "Bad", TemplateID: 4, AudienceStage: &bad}), models.ErrInvalidInput)
}

func stubSingleRecipient(ctx context.Context, f *campaignFixture) {
	f.repo.On("GetByID", ctx, int64(9)).Return(&models.Campaign{ID: 9, OwnerID: 3, TemplateID: 4, Status: models.CampaignDraft}, nil)
	f.repo.On("TransitionStatus", mock.Anything, int64(9), models.CampaignDraft, models.CampaignSending).Return(nil)
	f.templates.On("GetByID", mock.Anything, int64(4)).Return(&models.EmailTemplate{ID: 4, Subject: "Hi", BodyHTML: "<p>x</p>"}, nil)
	f.contacts.On("ListAudience", mock.Anything, models.AudienceFilter{}).Return([]*models.Contact{
		{ID: 1, FirstName: "Ann", Email: "ann@example.com"},
	}, nil)
	f.email.On("Send", "ann@example.com", "Hi", "<p>x</p>").Return(nil)
}

func TestCampaignSend_ResultWriteFailureStillFinishes(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	stubSingleRecipient(ctx, f)
	f.repo.On("RecordResult", mock.Anything, int64(9), 1, 1, 0, mock.AnythingOfType("time.Time")).
		Return(errors.New("connection reset")).Times(recordAttempts)
	f.repo.On("TransitionStatus", mock.Anything, int64(9), models.CampaignSending, models.CampaignSent).Return(nil).Once()

	_, err := f.svc.Send(ctx, 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record campaign result")
	f.repo.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "Notify", mock.Anything, mock.Anything)
}

func TestCampaignSend_ResultWriteRetried(t *testing.T) {
	f := newCampaignFixture()
	ctx := context.Background()
	stubSingleRecipient(ctx, f)
	f.repo.On("RecordResult", mock.Anything, int64(9), 1, 1, 0, mock.AnythingOfType("time.Time")).
		Return(errors.New("connection reset")).Once()
	f.repo.On("RecordResult", mock.Anything, int64(9), 1, 1, 0, mock.AnythingOfType("time.Time")).Return(nil).Once()
	f.notifier.On("Notify", mock.Anything, mock.Anything).Return(nil)

	out, err := f.svc.Send(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, models.CampaignSent, out.Status)
	f.repo.AssertNotCalled(t, "TransitionStatus", mock.Anything, int64(9), models.CampaignSending, models.CampaignSent)
}

func TestCampaignSend_WithoutNotifier(t *testing.T) {
	f := newCampaignFixture()
	f.svc.notifier = nil
	ctx := context.Background()
	stubSingleRecipient(ctx, f)
	f.repo.On("RecordResult", mock.Anything, int64(9), 1, 1, 0, mock.AnythingOfType("time.Time")).Return(nil)

	out, err := f.svc.Send(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, 1, out.SentCount)
}
