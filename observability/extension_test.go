package observability_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/observability"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/store/memory"
)

func counterValue(t *testing.T, c observability.Counter) float64 {
	t.Helper()
	pc, ok := c.(prometheus.Counter)
	require.True(t, ok)
	return testutil.ToFloat64(pc)
}

func TestMetricsThroughEngine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := observability.NewMetricsExtension(observability.NewPrometheusFactory(reg, ""))

	ctx := context.Background()
	e := entitle.New(memory.New(), entitle.WithPlugin(m))

	for range 11 {
		_, err := e.Consume(ctx, plan.FeatureAIChat, meter.KindMessage)
		require.NoError(t, err)
	}
	e.Evaluate(ctx, plan.FeatureFoodScan)
	e.Evaluate(ctx, "no_such_feature")
	e.Upgrade(ctx)
	e.Downgrade(ctx)

	assert.Equal(t, 1.0, counterValue(t, m.StateLoaded))
	assert.Equal(t, 13.0, counterValue(t, m.EntitlementChecks))
	assert.Equal(t, 2.0, counterValue(t, m.EntitlementDenied))
	assert.Equal(t, 1.0, counterValue(t, m.DeniedMessageCap))
	assert.Equal(t, 1.0, counterValue(t, m.DeniedPremium))
	assert.Equal(t, 0.0, counterValue(t, m.DeniedActionCap))
	assert.Equal(t, 1.0, counterValue(t, m.UnknownFeatureKeys))
	assert.Equal(t, 10.0, counterValue(t, m.MessagesRecorded))
	assert.Equal(t, 1.0, counterValue(t, m.TierUpgraded))
	assert.Equal(t, 1.0, counterValue(t, m.TierDowngraded))

	n, err := testutil.GatherAndCount(reg, "entitle_usage_daily_messages")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPrometheusFactoryReuse(t *testing.T) {
	reg := prometheus.NewRegistry()
	f := observability.NewPrometheusFactory(reg, "petcare")

	a := f.Counter("entitle.store.errors")
	b := f.Counter("entitle.store.errors")
	a.Inc()
	b.Inc()

	assert.Equal(t, 2.0, counterValue(t, a))

	n, err := testutil.GatherAndCount(reg, "petcare_entitle_store_errors_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
