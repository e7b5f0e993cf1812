package pipeline_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
	"github.com/couchcryptid/covid-metrics-service/internal/pipeline"
)

// --- mocks ---

// mockExtractor fails the first `failures` calls, then returns sources.
type mockExtractor struct {
	sources  domain.Sources
	failures int64
	calls    atomic.Int64
}

func (m *mockExtractor) Extract(ctx context.Context) (domain.Sources, error) {
	n := m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return domain.Sources{}, err
	}
	if n <= m.failures {
		return domain.Sources{}, errors.New("feed unavailable")
	}
	return m.sources, nil
}

type mockLoader struct {
	mu       sync.Mutex
	loaded   []*domain.Snapshot
	attempts int
	err      error
}

func (m *mockLoader) Load(_ context.Context, snap *domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if m.err != nil {
		return m.err
	}
	m.loaded = append(m.loaded, snap)
	return nil
}

func (m *mockLoader) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}

func (m *mockLoader) attempted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSources() domain.Sources {
	var us []domain.SourceRecord
	for d, positive := range []float64{10, 20, 30} {
		rec := domain.NewSourceRecord("", domain.AreaUS, time.Date(2020, 4, d+1, 0, 0, 0, 0, time.UTC))
		rec.Positive = positive
		us = append(us, rec)
	}
	return domain.Sources{
		US:         us,
		Population: []domain.PopulationRecord{{Region: domain.USRegion, Population: 100}},
	}
}

func useFakeClock(t *testing.T) *clockwork.FakeClock {
	t.Helper()
	fc := clockwork.NewFakeClock()
	pipeline.SetClock(fc)
	t.Cleanup(func() { pipeline.SetClock(nil) })
	return fc
}

// runPipeline starts p.Run and returns a function that cancels it and waits.
func runPipeline(t *testing.T, p *pipeline.Pipeline) (context.Context, func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()
	stop := func() {
		cancel()
		select {
		case err := <-done:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("pipeline did not stop")
		}
	}
	t.Cleanup(cancel)
	return ctx, stop
}

// --- tests ---

func TestPipeline_Refresh_HappyPath(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	p := pipeline.New(&mockExtractor{sources: testSources()}, pipeline.NewTransformer(discardLogger()), store, discardLogger(), metrics, 0)

	require.ErrorIs(t, store.CheckReadiness(context.Background()), domain.ErrNotReady)
	require.NoError(t, p.Refresh(context.Background()))

	require.NoError(t, store.CheckReadiness(context.Background()))

	snap := store.Current()
	require.NotNil(t, snap)
	assert.NotEmpty(t, snap.ID)
	assert.Equal(t, 3, snap.Table.Len())

	region, ok := snap.Table.Region(domain.USRegion)
	require.True(t, ok)
	assert.Equal(t, 100.0, region.Population)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("success")))
	assert.Equal(t, 3.0, testutil.ToFloat64(metrics.SnapshotObservations))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.SnapshotRegions))
}

func TestPipeline_Refresh_ExtractError(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{failures: 1}, pipeline.NewTransformer(discardLogger()),
		pipeline.Loaders{store, ldr}, discardLogger(), metrics, 0)

	err := p.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, store.CheckReadiness(context.Background()), domain.ErrNotReady)
	assert.Zero(t, ldr.count())
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("error")))
}

func TestPipeline_Refresh_EmptyFeedsKeepPreviousSnapshot(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	ext := &mockExtractor{sources: testSources()}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), store, discardLogger(), metrics, 0)

	require.NoError(t, p.Refresh(context.Background()))
	first := store.Current()

	ext.sources = domain.Sources{}
	err := p.Refresh(context.Background())
	require.ErrorIs(t, err, pipeline.ErrEmptySnapshot)
	assert.Same(t, first, store.Current())
}

func TestPipeline_Refresh_LoadError(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	failing := &mockLoader{err: errors.New("broker down")}
	p := pipeline.New(&mockExtractor{sources: testSources()}, pipeline.NewTransformer(discardLogger()),
		pipeline.Loaders{store, failing}, discardLogger(), metrics, 0)

	err := p.Refresh(context.Background())
	require.EqualError(t, err, "broker down")
	assert.NotNil(t, store.Current(), "earlier loaders still ran")
	assert.NoError(t, store.CheckReadiness(context.Background()), "served snapshot keeps the service ready")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("error")))
}

func TestPipeline_Run_FailingPublisherKeepsServing(t *testing.T) {
	fc := useFakeClock(t)
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	failing := &mockLoader{err: errors.New("broker down")}
	p := pipeline.New(&mockExtractor{sources: testSources()}, pipeline.NewTransformer(discardLogger()),
		pipeline.Loaders{store, failing}, discardLogger(), metrics, 0)

	ctx, stop := runPipeline(t, p)

	// The first refresh fails on the publisher and the loop parks in backoff.
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	require.NoError(t, store.CheckReadiness(context.Background()))
	first := store.Current()

	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.NotSame(t, first, store.Current(), "retry swaps in a fresh snapshot")
	assert.Equal(t, 2, failing.attempted())

	stop()
}

func TestLoaders_FanOutInOrder(t *testing.T) {
	a, b := &mockLoader{}, &mockLoader{}
	snap := &domain.Snapshot{ID: "s1"}

	require.NoError(t, pipeline.Loaders{a, b}.Load(context.Background(), snap))
	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, b.count())
}

func TestPipeline_Run_RetriesWithBackoff(t *testing.T) {
	fc := useFakeClock(t)
	metrics := observability.NewMetricsForTesting()
	ext := &mockExtractor{sources: testSources(), failures: 2}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 0)

	ctx, stop := runPipeline(t, p)

	// First failure sleeps 1s, second sleeps 2s.
	for _, d := range []time.Duration{time.Second, 2 * time.Second} {
		require.NoError(t, fc.BlockUntilContext(ctx, 1))
		fc.Advance(d)
	}

	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	stop()

	assert.Equal(t, int64(3), ext.calls.Load())
	assert.Equal(t, 1, ldr.count())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Refreshes.WithLabelValues("error")))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.PipelineRunning))
}

func TestPipeline_Run_RefreshInterval(t *testing.T) {
	fc := useFakeClock(t)
	metrics := observability.NewMetricsForTesting()
	ext := &mockExtractor{sources: testSources()}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, time.Hour)

	ctx, stop := runPipeline(t, p)

	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, ldr.count())

	fc.Advance(time.Hour)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, ldr.count())

	stop()

	ids := []string{ldr.loaded[0].ID, ldr.loaded[1].ID}
	assert.NotEqual(t, ids[0], ids[1], "each refresh builds a new snapshot")
}

func TestPipeline_Run_LoadOnce(t *testing.T) {
	useFakeClock(t)
	metrics := observability.NewMetricsForTesting()
	ext := &mockExtractor{sources: testSources()}
	ldr := &mockLoader{}
	p := pipeline.New(ext, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 0)

	_, stop := runPipeline(t, p)
	require.Eventually(t, func() bool { return ldr.count() == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.PipelineRunning))
	stop()

	assert.Equal(t, int64(1), ext.calls.Load())
}

func TestPipeline_Run_ContextCancellation(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	ldr := &mockLoader{}
	p := pipeline.New(&mockExtractor{sources: testSources()}, pipeline.NewTransformer(discardLogger()), ldr, discardLogger(), metrics, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, p.Run(ctx))
	assert.Zero(t, ldr.count())
}

func TestSnapshotTransformer_Transform(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2020, time.April, 4, 6, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	t.Cleanup(func() { domain.SetClock(nil) })

	src := testSources()
	dup := src.US[0]
	dup.Positive = 999
	src.US = append(src.US, dup)

	snap, err := pipeline.NewTransformer(discardLogger()).Transform(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, fakeClock.Now(), snap.LoadedAt)
	want := domain.NormalizeStats{Rows: 3, Regions: 1, Duplicates: 1}
	if diff := cmp.Diff(want, snap.Stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 10.0, snap.Table.Observations(domain.USRegion)[0].CumulativePositive, "first row wins")
}
