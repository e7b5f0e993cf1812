package http

import (
	"errors"
	"time"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

type errorResponse struct {
	Error string `json:"error"`
}

type regionsResponse struct {
	SnapshotID string          `json:"snapshot_id"`
	LoadedAt   time.Time       `json:"loaded_at"`
	Regions    []domain.Region `json:"regions"`
}

type viewResponse struct {
	SnapshotID string            `json:"snapshot_id"`
	LoadedAt   time.Time         `json:"loaded_at"`
	Selection  selectionResponse `json:"selection"`
	Series     []seriesResponse  `json:"series"`
}

type selectionResponse struct {
	Regions  []string        `json:"regions"`
	Metric   domain.Metric   `json:"metric"`
	Mode     domain.Mode     `json:"mode"`
	RateBase domain.RateBase `json:"rate_base"`
	Scale    domain.Scale    `json:"scale"`
	Window   int             `json:"window"`
	Start    string          `json:"start,omitempty"`
	End      string          `json:"end,omitempty"`
	Without  []string        `json:"without,omitempty"`
}

type seriesResponse struct {
	Region string             `json:"region"`
	Hints  domain.RenderHints `json:"hints"`
	Points []domain.Point     `json:"points"`
	Error  *seriesError       `json:"error,omitempty"`
}

// seriesError reports a region that could not be computed. Kind is stable for
// clients to switch on.
type seriesError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func newViewResponse(view domain.View, snap *domain.Snapshot) viewResponse {
	sel := view.Selection
	resp := viewResponse{
		SnapshotID: snap.ID,
		LoadedAt:   snap.LoadedAt,
		Selection: selectionResponse{
			Regions:  sel.Regions,
			Metric:   sel.Metric,
			Mode:     sel.Mode,
			RateBase: sel.RateBase,
			Scale:    sel.Scale,
			Window:   sel.Window,
			Start:    formatDate(sel.Start),
			End:      formatDate(sel.End),
			Without:  sel.Without,
		},
		Series: make([]seriesResponse, 0, len(view.Series)),
	}
	for _, s := range view.Series {
		sr := seriesResponse{Region: s.Region, Hints: s.Hints, Points: s.Points}
		if sr.Points == nil {
			sr.Points = []domain.Point{}
		}
		if s.Err != nil {
			sr.Error = &seriesError{Kind: errorKind(s.Err), Message: s.Err.Error()}
		}
		resp.Series = append(resp.Series, sr)
	}
	return resp
}

func errorKind(err error) string {
	switch {
	case errors.Is(err, domain.ErrMissingReference):
		return "missing_reference"
	case errors.Is(err, domain.ErrNonPositiveDenominator):
		return "non_positive_denominator"
	case errors.Is(err, domain.ErrUnknownRegion):
		return "unknown_region"
	default:
		return "internal"
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(domain.DateLayout)
}
