package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"crmhub/internal/models"
)

func testScoringModel() *models.ScoringModel {
	return &models.ScoringModel{
		Name:   "Default",
		Active: true,
		Rules: []models.ScoringRule{
			{EventType: "email_open", Points: 5},
			{EventType: "demo_request", Points: 40},
			{EventType: "unsubscribe", Points: -50},
		},
		Thresholds: []models.ScoreThreshold{
			{MinScore: 0, Stage: models.StageSubscriber},
			{MinScore: 20, Stage: models.StageLead},
			{MinScore: 50, Stage: models.StageMQL},
			{MinScore: 80, Stage: models.StageSQL},
		},
	}
}

func TestApplyScore(t *testing.T) {
	m := testScoringModel()
	tests := []struct {
		name       string
		model      *models.ScoringModel
		contact    models.Contact
		event      string
		wantPoints int
		wantScore  int
		wantStage  models.LifecycleStage
	}{
		{
			name:       "promotes to the highest reached threshold",
			model:      m,
			contact:    models.Contact{Score: 15, LifecycleStage: models.StageLead},
			event:      "demo_request",
			wantPoints: 40,
			wantScore:  55,
			wantStage:  models.StageMQL,
		},
		{
			name:       "exact threshold counts",
			model:      m,
			contact:    models.Contact{Score: 75, LifecycleStage: models.StageMQL},
			event:      "email_open",
			wantPoints: 5,
			wantScore:  80,
			wantStage:  models.StageSQL,
		},
		{
			name:       "unknown event scores zero",
			model:      m,
			contact:    models.Contact{Score: 30, LifecycleStage: models.StageLead},
			event:      "page_view",
			wantPoints: 0,
			wantScore:  30,
			wantStage:  models.StageLead,
		},
		{
			name:       "score is clamped at zero and stage can drop",
			model:      m,
			contact:    models.Contact{Score: 30, LifecycleStage: models.StageLead},
			event:      "unsubscribe",
			wantPoints: -50,
			wantScore:  0,
			wantStage:  models.StageSubscriber,
		},
		{
			name:       "opportunity is never reclassified",
			model:      m,
			contact:    models.Contact{Score: 10, LifecycleStage: models.StageOpportunity},
			event:      "demo_request",
			wantPoints: 40,
			wantScore:  50,
			wantStage:  models.StageOpportunity,
		},
		{
			name:       "customer is never reclassified",
			model:      m,
			contact:    models.Contact{Score: 100, LifecycleStage: models.StageCustomer},
			event:      "unsubscribe",
			wantPoints: -50,
			wantScore:  50,
			wantStage:  models.StageCustomer,
		},
		{
			name:       "no model scores nothing",
			model:      nil,
			contact:    models.Contact{Score: 12, LifecycleStage: models.StageLead},
			event:      "demo_request",
			wantPoints: 0,
			wantScore:  12,
			wantStage:  models.StageLead,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			points, score, stage := applyScore(tt.model, &tt.contact, tt.event)
			assert.Equal(t, tt.wantPoints, points)
			assert.Equal(t, tt.wantScore, score)
			assert.Equal(t, tt.wantStage, stage)
		})
	}
}

func TestApplyScore_NoThresholdReachedKeepsStage(t *testing.T) {
	m := &models.ScoringModel{
		Rules:      []models.ScoringRule{{EventType: "email_open", Points: 1}},
		Thresholds: []models.ScoreThreshold{{MinScore: 50, Stage: models.StageMQL}},
	}
	c := &models.Contact{Score: 3, LifecycleStage: models.StageLead}
	_, score, stage := applyScore(m, c, "email_open")
	assert.Equal(t, 4, score)
	assert.Equal(t, models.StageLead, stage)
}

func TestValidateScoringModel(t *testing.T) {
	m := testScoringModel()
	m.Rules[0].EventType = "  Email_Open "
	assert.NoError(t, validateScoringModel(m))
	assert.Equal(t, "email_open", m.Rules[0].EventType)

	dup := testScoringModel()
	dup.Rules = append(dup.Rules, models.ScoringRule{EventType: "EMAIL_OPEN", Points: 1})
	assert.ErrorIs(t, validateScoringModel(dup), models.ErrInvalidInput)

	badStage := testScoringModel()
	badStage.Thresholds[0].Stage = "vip"
	assert.ErrorIs(t, validateScoringModel(badStage), models.ErrInvalidInput)

	negative := testScoringModel()
	negative.Thresholds[0].MinScore = -1
	assert.ErrorIs(t, validateScoringModel(negative), models.ErrInvalidInput)

	sameMin := testScoringModel()
	sameMin.Thresholds[1].MinScore = 50
	assert.ErrorIs(t, validateScoringModel(sameMin), models.ErrInvalidInput)

	unnamed := testScoringModel()
	unnamed.Name = " "
	assert.ErrorIs(t, validateScoringModel(unnamed), models.ErrInvalidInput)
}
