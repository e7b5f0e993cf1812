package http

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// parseSelection reads a selection from query parameters. Enum values are
// validated later by domain.Selection.Validate; only syntax is checked here.
func parseSelection(q url.Values) (domain.Selection, error) {
	sel := domain.Selection{
		Regions:  domain.SplitList(q.Get("regions")),
		Metric:   domain.Metric(strings.TrimSpace(q.Get("metric"))),
		Mode:     domain.Mode(strings.TrimSpace(q.Get("mode"))),
		RateBase: domain.RateBase(strings.TrimSpace(q.Get("rate_base"))),
		Scale:    domain.Scale(strings.TrimSpace(q.Get("scale"))),
		Without:  domain.SplitList(q.Get("without")),
	}

	if s := strings.TrimSpace(q.Get("window")); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil {
			return domain.Selection{}, fmt.Errorf("%w: window %q is not an integer", domain.ErrInvalidSelection, s)
		}
		sel.Window = n
	}

	var err error
	if sel.Start, err = domain.ParseDay("start", q.Get("start")); err != nil {
		return domain.Selection{}, err
	}
	if sel.End, err = domain.ParseDay("end", q.Get("end")); err != nil {
		return domain.Selection{}, err
	}
	return sel, nil
}
