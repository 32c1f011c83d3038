package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crmhub/internal/models"
)

func TestNormalizeStages(t *testing.T) {
	stages := []models.Stage{
		{Name: " New ", Probability: 10, Position: 7},
		{Name: "Won", Kind: models.StageKindWon},
		{Name: "Lost", Kind: models.StageKindLost, Probability: 30},
	}
	require.NoError(t, normalizeStages(stages))

	assert.Equal(t, "New", stages[0].Name)
	assert.Equal(t, models.StageKindOpen, stages[0].Kind)
	assert.Equal(t, 0, stages[0].Position)
	assert.Equal(t, 100, stages[1].Probability)
	assert.Equal(t, 1, stages[1].Position)
	assert.Equal(t, 0, stages[2].Probability)
	assert.Equal(t, 2, stages[2].Position)
}

func TestNormalizeStages_Invalid(t *testing.T) {
	tests := map[string][]models.Stage{
		"no stages":        nil,
		"unnamed":          {{Name: ""}},
		"probability high": {{Name: "A", Probability: 101}},
		"probability low":  {{Name: "A", Probability: -1}},
		"unknown kind":     {{Name: "A", Kind: "paused"}},
	}
	for name, stages := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, normalizeStages(stages), models.ErrInvalidInput)
		})
	}
}

func TestDefaultPipelineIsValid(t *testing.T) {
	p := DefaultPipeline()
	require.NoError(t, normalizeStages(p.Stages))
	won, ok := p.FirstStageOfKind(models.StageKindWon)
	require.True(t, ok)
	assert.Equal(t, 100, won.Probability)
	first, ok := p.FirstStageOfKind(models.StageKindOpen)
	require.True(t, ok)
	assert.Equal(t, 0, first.Position)
}
