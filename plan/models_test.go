package plan_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle/plan"
)

func TestFreePlan(t *testing.T) {
	p := plan.Free()
	require.NoError(t, p.Validate())

	assert.Equal(t, int64(10), p.Limits.DailyMessages)
	assert.Equal(t, int64(1), p.Limits.DailyActions)

	assert.ElementsMatch(t, []string{
		plan.FeatureAdditionalPetProfile,
		plan.FeatureVetFinder,
		plan.FeatureShopFinder,
		plan.FeatureFoodScan,
		plan.FeatureVaccineCardScan,
		plan.FeatureAIVaccineSchedule,
		plan.FeatureExpenseAnalytics,
		plan.FeatureHealthReportExport,
		plan.FeatureAIImageAttachment,
	}, p.KeysOfType(plan.FeatureLocked))
	assert.Equal(t, []string{plan.FeatureAIChat}, p.KeysOfType(plan.FeatureMetered))

	f := p.FindFeature(plan.FeatureFoodScan)
	require.NotNil(t, f)
	assert.Equal(t, plan.FeatureLocked, f.Type)
	assert.Nil(t, p.FindFeature("teleport"))
	assert.Len(t, p.Keys(), len(p.Features))
}

func TestFreeReturnsIndependentCopies(t *testing.T) {
	a := plan.Free()
	a.Limits.DailyMessages = 99
	a.Features[0].Type = plan.FeatureOpen

	b := plan.Free()
	assert.Equal(t, int64(10), b.Limits.DailyMessages)
	assert.Equal(t, plan.FeatureLocked, b.Features[0].Type)
}

func TestValidate(t *testing.T) {
	tests := map[string]*plan.Plan{
		"negative limit": {Limits: plan.Limits{DailyMessages: -1}},
		"empty key":      {Features: []plan.Feature{{Type: plan.FeatureOpen}}},
		"duplicate key": {Features: []plan.Feature{
			{Key: "a", Type: plan.FeatureOpen},
			{Key: "a", Type: plan.FeatureLocked},
		}},
		"unknown type": {Features: []plan.Feature{{Key: "a", Type: "sometimes"}}},
	}
	for name, p := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, p.Validate(), plan.ErrInvalidPlan)
		})
	}
}
