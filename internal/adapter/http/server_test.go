package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/covid-metrics-service/internal/adapter/http"
	"github.com/couchcryptid/covid-metrics-service/internal/adapter/viewcache"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
	"github.com/couchcryptid/covid-metrics-service/internal/pipeline"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSnapshot(t *testing.T) *domain.Snapshot {
	t.Helper()
	var states []domain.SourceRecord
	add := func(region string, positive, tests []float64) {
		for i := range positive {
			rec := domain.NewSourceRecord(region, domain.AreaState, time.Date(2020, 4, i+1, 0, 0, 0, 0, time.UTC))
			rec.Positive = positive[i]
			rec.Tests = tests[i]
			states = append(states, rec)
		}
	}
	add("NY", []float64{5, 8, 12}, []float64{50, 80, 100})
	add("CT", []float64{0, 1, 2}, []float64{0, 10, 20})

	table, stats := domain.Build(domain.Sources{
		States:     states,
		Population: []domain.PopulationRecord{{Region: "NY", Population: 1000}},
	})
	return domain.NewSnapshot(table, stats)
}

// newTestServer wires a store and view cache; loaded controls whether a
// snapshot is present.
func newTestServer(t *testing.T, readyErr error, loaded bool) (*httpadapter.Server, *domain.Snapshot) {
	t.Helper()
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	var snap *domain.Snapshot
	if loaded {
		snap = testSnapshot(t)
		require.NoError(t, store.Load(context.Background(), snap))
	}
	views := viewcache.New(store, 16, metrics)
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, store, views, discardLogger()), snap
}

func get(srv http.Handler, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	assert.Equal(t, http.StatusOK, get(srv, "/healthz").Code)
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	srv, _ := newTestServer(t, fmt.Errorf("not ready yet"), false)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)
}

func TestReadyzFollowsStore(t *testing.T) {
	metrics := observability.NewMetricsForTesting()
	store := pipeline.NewStore(metrics)
	srv := httpadapter.NewServer(":0", store, store, viewcache.New(store, 16, metrics), discardLogger())

	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/readyz").Code)

	require.NoError(t, store.Load(context.Background(), testSnapshot(t)))
	assert.Equal(t, http.StatusOK, get(srv, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(srv, "/api/view?regions=NY").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	rec := get(srv, "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestRegions_NotReady(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	rec := get(srv, "/api/regions")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ErrNotReady.Error())
}

func TestRegions(t *testing.T) {
	srv, snap := newTestServer(t, nil, true)
	rec := get(srv, "/api/regions")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		SnapshotID string `json:"snapshot_id"`
		Regions    []struct {
			Name          string  `json:"name"`
			Area          string  `json:"area"`
			HasPopulation bool    `json:"has_population"`
			Population    float64 `json:"population"`
		} `json:"regions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, snap.ID, body.SnapshotID)
	require.Len(t, body.Regions, 2)
	assert.Equal(t, "CT", body.Regions[0].Name)
	assert.False(t, body.Regions[0].HasPopulation)
	assert.Equal(t, "NY", body.Regions[1].Name)
	assert.Equal(t, "state", body.Regions[1].Area)
	assert.Equal(t, 1000.0, body.Regions[1].Population)
}

type viewBody struct {
	SnapshotID string `json:"snapshot_id"`
	Selection  struct {
		Regions []string `json:"regions"`
		Metric  string   `json:"metric"`
		Mode    string   `json:"mode"`
		Start   string   `json:"start"`
		End     string   `json:"end"`
	} `json:"selection"`
	Series []struct {
		Region string `json:"region"`
		Hints  struct {
			Unit   string `json:"unit"`
			Dashed bool   `json:"dashed"`
		} `json:"hints"`
		Points []struct {
			Date   string   `json:"date"`
			Value  *float64 `json:"value"`
			Reason string   `json:"reason"`
		} `json:"points"`
		Error *struct {
			Kind    string `json:"kind"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"series"`
}

func TestView_RatePerMillion(t *testing.T) {
	srv, snap := newTestServer(t, nil, true)
	rec := get(srv, "/api/view?regions=NY&mode=rate_per_million&start=2020-04-02&end=2020-04-03")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, snap.ID, body.SnapshotID)
	assert.Equal(t, "positive", body.Selection.Metric, "defaults echoed")
	assert.Equal(t, "2020-04-02", body.Selection.Start)

	require.Len(t, body.Series, 1)
	s := body.Series[0]
	assert.Equal(t, "per_million", s.Hints.Unit)
	require.Len(t, s.Points, 2)
	assert.Equal(t, "2020-04-02", s.Points[0].Date)
	require.NotNil(t, s.Points[0].Value)
	assert.Equal(t, 8000.0, *s.Points[0].Value)
}

func TestView_RegionErrorsAreTyped(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	rec := get(srv, "/api/view?regions=NY,CT,ZZ&mode=rate_per_million")
	require.Equal(t, http.StatusOK, rec.Code)

	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Series, 3)

	assert.Nil(t, body.Series[0].Error)
	require.NotNil(t, body.Series[1].Error)
	assert.Equal(t, "missing_reference", body.Series[1].Error.Kind)
	assert.NotNil(t, body.Series[1].Points, "empty list, not null")
	require.NotNil(t, body.Series[2].Error)
	assert.Equal(t, "unknown_region", body.Series[2].Error.Kind)
}

func TestView_LogScaleGaps(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	rec := get(srv, "/api/view?regions=CT&scale=log10")
	require.Equal(t, http.StatusOK, rec.Code)

	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	p := body.Series[0].Points[0]
	assert.Nil(t, p.Value, "log of zero is a gap")
	assert.Equal(t, "log_domain", p.Reason)
}

func TestView_BadRequests(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	for _, target := range []string{
		"/api/view",
		"/api/view?regions=NY&mode=bogus",
		"/api/view?regions=NY&window=seven",
		"/api/view?regions=NY&window=-1",
		"/api/view?regions=NY&start=04/01/2020",
		"/api/view?regions=NY&start=2020-04-03&end=2020-04-01",
		"/api/view?regions=NY,,CT",
		"/api/view?regions=NY&metric=total&mode=incremental",
	} {
		t.Run(target, func(t *testing.T) {
			rec := get(srv, target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), domain.ErrInvalidSelection.Error())
		})
	}
}

func TestView_NotReady(t *testing.T) {
	srv, _ := newTestServer(t, nil, false)
	assert.Equal(t, http.StatusServiceUnavailable, get(srv, "/api/view?regions=NY").Code)
}

func TestView_Composite(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	rec := get(srv, "/api/view?regions=NY&without=CT")
	require.Equal(t, http.StatusOK, rec.Code)

	var body viewBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Series, 2)
	assert.Equal(t, "US without CT", body.Series[1].Region)
	assert.True(t, body.Series[1].Hints.Dashed)
}

func TestChartHTML(t *testing.T) {
	srv, snap := newTestServer(t, nil, true)
	rec := get(srv, "/chart?regions=NY,CT&window=2")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), snap.ID)
}

func TestChartPNG(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	rec := get(srv, "/chart.png?regions=NY")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.NotZero(t, rec.Body.Len())
}

func TestChart_InvalidSelection(t *testing.T) {
	srv, _ := newTestServer(t, nil, true)
	assert.Equal(t, http.StatusBadRequest, get(srv, "/chart.png?regions=NY&scale=ln").Code)
}
