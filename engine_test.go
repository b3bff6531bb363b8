package entitle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/meter"
	"github.com/xraph/entitle/plan"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/memory"
	"github.com/xraph/entitle/subscription"
)

// testClock is a settable clock.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// plainStore hides the optional interfaces of the wrapped store.
type plainStore struct {
	store.Store
}

// failingStore reads fine and rejects every write.
type failingStore struct {
	*memory.Store
}

var errDiskFull = errors.New("disk full")

func (failingStore) Set(context.Context, string, string) error { return errDiskFull }

// readOnlyStore reads fine and rejects every write, compare-and-swap included.
type readOnlyStore struct {
	*memory.Store
	mu       sync.Mutex
	readOnly bool
}

func (s *readOnlyStore) setReadOnly(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = v
}

func (s *readOnlyStore) rejecting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readOnly
}

func (s *readOnlyStore) Set(ctx context.Context, key, value string) error {
	if s.rejecting() {
		return errDiskFull
	}
	return s.Store.Set(ctx, key, value)
}

func (s *readOnlyStore) CompareAndSwap(ctx context.Context, key, old, value string) (bool, error) {
	if s.rejecting() {
		return false, errDiskFull
	}
	return s.Store.CompareAndSwap(ctx, key, old, value)
}

// spy records the hooks the engine fires.
type spy struct {
	mu          sync.Mutex
	persistKeys []string
	changes     []subscription.Change
	rollovers   [][2]meter.Ledger
	denied      []entitlement.Verdict
	unknown     []string
	usage       []meter.UsageEvent
}

func (s *spy) Name() string { return "spy" }

func (s *spy) OnPersistFailed(_ context.Context, key string, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persistKeys = append(s.persistKeys, key)
	return nil
}

func (s *spy) OnTierChanged(_ context.Context, c subscription.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.changes = append(s.changes, c)
	return nil
}

func (s *spy) OnLedgerRolledOver(_ context.Context, prev, next meter.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rollovers = append(s.rollovers, [2]meter.Ledger{prev, next})
	return nil
}

func (s *spy) OnFeatureDenied(_ context.Context, v entitlement.Verdict, _ meter.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.denied = append(s.denied, v)
	return nil
}

func (s *spy) OnUnknownFeature(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown = append(s.unknown, key)
	return nil
}

func (s *spy) OnUsageRecorded(_ context.Context, evt meter.UsageEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, evt)
	return nil
}

var march1 = time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)

func TestFreshInstallDefaults(t *testing.T) {
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)))

	st := e.Load(context.Background())
	assert.Equal(t, subscription.TierFree, st.Tier)
	assert.Equal(t, meter.Ledger{Date: "2024-03-01"}, st.Ledger)
	assert.False(t, e.IsPremium())
}

func TestLockedFeaturesRequirePremium(t *testing.T) {
	ctx := context.Background()
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)))

	for _, key := range plan.Free().KeysOfType(plan.FeatureLocked) {
		v := e.Evaluate(ctx, key)
		assert.False(t, v.Allowed, key)
		assert.Equal(t, entitlement.ReasonPremiumRequired, v.Reason, key)
	}

	e.Upgrade(ctx)
	require.True(t, e.IsPremium())

	for _, key := range plan.Free().Keys() {
		assert.True(t, e.Evaluate(ctx, key).Allowed, key)
	}
}

func TestChatCaps(t *testing.T) {
	ctx := context.Background()
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)))

	for i := range 9 {
		e.RecordMessage(ctx)
		require.True(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed, "after %d messages", i+1)
	}

	e.RecordMessage(ctx)
	v := e.Evaluate(ctx, plan.FeatureAIChat)
	assert.False(t, v.Allowed)
	assert.Equal(t, entitlement.ReasonDailyMessageCapReached, v.Reason)

	e.RecordAction(ctx)
	v = e.Evaluate(ctx, plan.FeatureAIChat)
	assert.Equal(t, entitlement.ReasonDailyActionCapReached, v.Reason)

	assert.Equal(t, meter.Ledger{Date: "2024-03-01", MessageCount: 10, ActionCount: 1}, e.PeekLedger(ctx))

	e.Upgrade(ctx)
	assert.True(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed)
}

func TestRestartPersistence(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := newTestClock(march1)

	first := entitle.New(s, entitle.WithClock(clock))
	first.Upgrade(ctx)
	first.RecordMessage(ctx)
	first.RecordMessage(ctx)
	first.RecordAction(ctx)

	second := entitle.New(s, entitle.WithClock(clock))
	st := second.Load(ctx)
	assert.Equal(t, subscription.TierPremium, st.Tier)
	assert.Equal(t, meter.Ledger{Date: "2024-03-01", MessageCount: 2, ActionCount: 1}, st.Ledger)

	second.Downgrade(ctx)
	third := entitle.New(s, entitle.WithClock(clock))
	assert.False(t, third.IsPremium())
}

func TestRolloverWhileOffline(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Set(ctx, store.DefaultUsageKey, `{"v":1,"date":"2024-02-28","messages":10,"actions":1}`))

	sp := &spy{}
	e := entitle.New(s, entitle.WithClock(newTestClock(march1)), entitle.WithPlugin(sp))

	st := e.Load(ctx)
	assert.Equal(t, meter.Ledger{Date: "2024-03-01"}, st.Ledger)
	assert.True(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed)

	raw, ok, err := s.Get(ctx, store.DefaultUsageKey)
	require.NoError(t, err)
	require.True(t, ok)
	persisted, valid := meter.Decode(raw, nil)
	require.True(t, valid)
	assert.Equal(t, meter.Ledger{Date: "2024-03-01"}, persisted)

	require.Len(t, sp.rollovers, 1)
	assert.Equal(t, "2024-02-28", sp.rollovers[0][0].Date)
}

func TestMidnightRollover(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock(time.Date(2024, 3, 1, 23, 59, 0, 0, time.UTC))
	e := entitle.New(memory.New(), entitle.WithClock(clock))

	for range 10 {
		e.RecordMessage(ctx)
	}
	require.False(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed)

	clock.Advance(2 * time.Minute)

	assert.Equal(t, meter.Ledger{Date: "2024-03-02"}, e.PeekLedger(ctx))
	assert.True(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed)

	e.RecordMessage(ctx)
	assert.Equal(t, int64(1), e.State().Ledger.MessageCount)
}

func TestMalformedStateFallsBack(t *testing.T) {
	tests := []struct {
		name  string
		tier  string
		usage string
	}{
		{"garbage", "%%%", "not json"},
		{"wrong shapes", `{"v":1,"tier":"gold"}`, `{"v":1,"date":"2024-03-01","messages":"ten","actions":0}`},
		{"negative counters", `{"v":9,"tier":"premium"}`, `{"v":1,"date":"2024-03-01","messages":-1,"actions":0}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			s := memory.New()
			require.NoError(t, s.Set(ctx, store.DefaultTierKey, tt.tier))
			require.NoError(t, s.Set(ctx, store.DefaultUsageKey, tt.usage))

			st := entitle.New(s, entitle.WithClock(newTestClock(march1))).Load(ctx)
			assert.Equal(t, subscription.TierFree, st.Tier)
			assert.Equal(t, meter.Ledger{Date: "2024-03-01"}, st.Ledger)
		})
	}
}

func TestLegacyTierValue(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	require.NoError(t, s.Set(ctx, store.DefaultTierKey, "true"))

	e := entitle.New(s, entitle.WithClock(newTestClock(march1)))
	assert.True(t, e.IsPremium())
}

func TestPersistFailureIsSwallowed(t *testing.T) {
	ctx := context.Background()
	sp := &spy{}
	e := entitle.New(plainStore{failingStore{memory.New()}},
		entitle.WithClock(newTestClock(march1)),
		entitle.WithPlugin(sp),
	)

	e.Upgrade(ctx)
	e.RecordMessage(ctx)
	e.RecordAction(ctx)

	assert.True(t, e.IsPremium())
	assert.Equal(t, meter.Ledger{Date: "2024-03-01", MessageCount: 1, ActionCount: 1}, e.PeekLedger(ctx))
	assert.Equal(t, []string{store.DefaultTierKey, store.DefaultUsageKey, store.DefaultUsageKey}, sp.persistKeys)
}

func TestCacheStaysAuthoritativeWhenWritesFail(t *testing.T) {
	ctx := context.Background()
	s := &readOnlyStore{Store: memory.New(), readOnly: true}
	e := entitle.New(s, entitle.WithClock(newTestClock(march1)))

	allowed := 0
	for range 30 {
		if e.Evaluate(ctx, plan.FeatureAIChat).Allowed {
			allowed++
			e.RecordMessage(ctx)
		}
	}
	assert.Equal(t, 10, allowed)
	assert.Equal(t, int64(10), e.PeekLedger(ctx).MessageCount)

	e.Upgrade(ctx)
	st := e.Load(ctx)
	assert.Equal(t, subscription.TierPremium, st.Tier)
	assert.Equal(t, int64(10), st.Ledger.MessageCount)

	v, err := e.Consume(ctx, plan.FeatureAIImageAttachment, meter.KindAction)
	require.NoError(t, err)
	assert.True(t, v.Allowed)
	assert.Equal(t, int64(1), e.PeekLedger(ctx).ActionCount)
}

func TestStoreCatchesUpAfterWritesRecover(t *testing.T) {
	ctx := context.Background()
	s := &readOnlyStore{Store: memory.New(), readOnly: true}
	e := entitle.New(s, entitle.WithClock(newTestClock(march1)))

	for range 3 {
		e.RecordMessage(ctx)
	}
	s.setReadOnly(false)
	e.RecordMessage(ctx)

	raw, ok, err := s.Get(ctx, store.DefaultUsageKey)
	require.NoError(t, err)
	require.True(t, ok)
	l, valid := meter.Decode(raw, newTestClock(march1))
	require.True(t, valid)
	assert.Equal(t, int64(4), l.MessageCount)

	// Back on compare-and-swap: another engine's writes are seen.
	other := entitle.New(s, entitle.WithClock(newTestClock(march1)))
	other.RecordMessage(ctx)
	e.RecordMessage(ctx)
	assert.Equal(t, int64(6), e.PeekLedger(ctx).MessageCount)
}

func TestCustomKeysAndPlan(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	p := plan.Free()
	p.Limits = plan.Limits{DailyMessages: 2, DailyActions: 5}

	e := entitle.New(s,
		entitle.WithClock(newTestClock(march1)),
		entitle.WithKeys("user:7:tier", "user:7:usage"),
		entitle.WithPlan(p),
	)
	require.NoError(t, e.Start(ctx))

	e.RecordMessage(ctx)
	e.RecordMessage(ctx)
	assert.Equal(t, entitlement.ReasonDailyMessageCapReached, e.Evaluate(ctx, plan.FeatureAIChat).Reason)

	_, ok, err := s.Get(ctx, "user:7:usage")
	require.NoError(t, err)
	assert.True(t, ok)
	_, ok, err = s.Get(ctx, store.DefaultUsageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUnknownFeatureFailsOpen(t *testing.T) {
	ctx := context.Background()
	sp := &spy{}
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)), entitle.WithPlugin(sp))

	for range 10 {
		e.RecordMessage(ctx)
	}
	v := e.Evaluate(ctx, "vet_findr")
	assert.True(t, v.Allowed)
	assert.Equal(t, []string{"vet_findr"}, sp.unknown)

	err := e.ValidateKeys(plan.FeatureVetFinder, "vet_findr")
	require.ErrorIs(t, err, entitle.ErrUnknownFeature)
	var ufe *entitlement.UnknownFeatureError
	require.ErrorAs(t, err, &ufe)
	assert.Equal(t, []string{"vet_findr"}, ufe.Keys)
}

func TestDebugAssertions(t *testing.T) {
	ctx := context.Background()
	e := entitle.New(memory.New(), entitle.WithDebugAssertions(true))

	assert.Panics(t, func() { e.Evaluate(ctx, "vet_findr") })
	assert.NotPanics(t, func() { e.Evaluate(ctx, plan.FeatureVetFinder) })

	// The engine stays usable after an assertion fired.
	assert.NotPanics(t, func() { e.RecordMessage(ctx) })
}

func TestConsume(t *testing.T) {
	stores := map[string]func() store.Store{
		"compare-and-swap": func() store.Store { return memory.New() },
		"plain":            func() store.Store { return plainStore{memory.New()} },
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			sp := &spy{}
			e := entitle.New(mk(), entitle.WithClock(newTestClock(march1)), entitle.WithPlugin(sp))

			allowed := 0
			for range 15 {
				v, err := e.Consume(ctx, plan.FeatureAIChat, meter.KindMessage)
				require.NoError(t, err)
				if v.Allowed {
					allowed++
				}
			}
			assert.Equal(t, 10, allowed)
			assert.Equal(t, int64(10), e.PeekLedger(ctx).MessageCount)
			assert.Len(t, sp.usage, 10)
			assert.Len(t, sp.denied, 5)

			v, err := e.Consume(ctx, plan.FeatureVetFinder, meter.KindAction)
			require.NoError(t, err)
			assert.Equal(t, entitlement.ReasonPremiumRequired, v.Reason)
			assert.Equal(t, int64(0), e.PeekLedger(ctx).ActionCount)
		})
	}
}

func TestConsumeInvalidKind(t *testing.T) {
	e := entitle.New(memory.New())
	_, err := e.Consume(context.Background(), plan.FeatureAIChat, meter.Kind("tokens"))
	require.ErrorIs(t, err, entitle.ErrInvalidKind)
}

func TestConsumeAcrossEngines(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	clock := newTestClock(march1)

	engines := []*entitle.Engine{
		entitle.New(s, entitle.WithClock(clock), entitle.WithCASRetries(1000)),
		entitle.New(s, entitle.WithClock(clock), entitle.WithCASRetries(1000)),
		entitle.New(s, entitle.WithClock(clock), entitle.WithCASRetries(1000)),
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := range 60 {
		wg.Add(1)
		go func(e *entitle.Engine) {
			defer wg.Done()
			v, err := e.Consume(ctx, plan.FeatureAIChat, meter.KindMessage)
			if err != nil {
				t.Errorf("consume: %v", err)
				return
			}
			if v.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}(engines[i%len(engines)])
	}
	wg.Wait()

	assert.Equal(t, 10, allowed)

	raw, ok, err := s.Get(ctx, store.DefaultUsageKey)
	require.NoError(t, err)
	require.True(t, ok)
	l, valid := meter.Decode(raw, clock)
	require.True(t, valid)
	assert.Equal(t, int64(10), l.MessageCount)
}

func TestTierChangeHook(t *testing.T) {
	ctx := context.Background()
	sp := &spy{}
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)), entitle.WithPlugin(sp))

	e.Upgrade(ctx)
	e.Upgrade(ctx)
	e.Downgrade(ctx)

	require.Len(t, sp.changes, 2)
	assert.True(t, sp.changes[0].IsUpgrade())
	assert.False(t, sp.changes[1].IsUpgrade())
	assert.Equal(t, "tchg", string(sp.changes[0].ID.Prefix()))
}

func TestResetUsage(t *testing.T) {
	ctx := context.Background()
	e := entitle.New(memory.New(), entitle.WithClock(newTestClock(march1)))
	e.RecordMessage(ctx)
	e.RecordAction(ctx)

	assert.Equal(t, meter.Ledger{Date: "2024-03-01"}, e.ResetUsage(ctx))
	assert.True(t, e.Evaluate(ctx, plan.FeatureAIChat).Allowed)
}

func TestStartStop(t *testing.T) {
	ctx := context.Background()

	s := memory.New()
	e := entitle.New(s)
	require.NoError(t, e.Start(ctx))
	require.NoError(t, e.Stop())

	err := entitle.New(s).Start(ctx)
	require.ErrorIs(t, err, entitle.ErrStoreNotReady)
	assert.True(t, entitle.IsStoreError(err))
	assert.True(t, entitle.IsRetryable(err))

	bad := plan.Free()
	bad.Limits.DailyMessages = -1
	err = entitle.New(memory.New(), entitle.WithPlan(bad)).Start(ctx)
	require.ErrorIs(t, err, entitle.ErrInvalidInput)
}
