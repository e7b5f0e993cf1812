package pipeline

import (
	"context"
	"errors"
	"log/slog"

	"github.com/couchcryptid/covid-metrics-service/internal/domain"
)

// ErrEmptySnapshot means the feeds produced no usable observations.
var ErrEmptySnapshot = errors.New("feeds produced no observations")

// SnapshotTransformer implements Transformer using domain.Build.
type SnapshotTransformer struct {
	logger *slog.Logger
}

// NewTransformer creates a SnapshotTransformer.
func NewTransformer(logger *slog.Logger) *SnapshotTransformer {
	return &SnapshotTransformer{logger: logger}
}

// Transform normalizes the feeds and joins population. An empty result is an
// error so a broken feed never replaces a good snapshot.
func (t *SnapshotTransformer) Transform(_ context.Context, src domain.Sources) (*domain.Snapshot, error) {
	table, stats := domain.Build(src)
	if table.Len() == 0 {
		return nil, ErrEmptySnapshot
	}
	if stats.Duplicates > 0 || stats.Skipped > 0 {
		t.logger.Warn("feed rows dropped during normalization",
			"duplicates", stats.Duplicates,
			"skipped", stats.Skipped,
		)
	}
	return domain.NewSnapshot(table, stats), nil
}
