package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/covid-metrics-service/internal/config"
	"github.com/couchcryptid/covid-metrics-service/internal/domain"
	"github.com/couchcryptid/covid-metrics-service/internal/observability"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes every observation of a loaded snapshot to a Kafka topic.
// It implements pipeline.Loader.
type Writer struct {
	writer    messageWriter
	batchSize int
	metrics   *observability.Metrics
	logger    *slog.Logger
}

// NewWriter creates a Kafka producer for the configured sink topic.
func NewWriter(cfg *config.Config, metrics *observability.Metrics, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaSinkTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchSize:    cfg.BatchSize,
	}
	return &Writer{writer: w, batchSize: cfg.BatchSize, metrics: metrics, logger: logger}
}

// Load serializes the snapshot's observations and writes them in chunks of the
// configured batch size. Messages are keyed by region, so the hash balancer
// keeps one region's history on one partition in date order.
func (w *Writer) Load(ctx context.Context, snap *domain.Snapshot) error {
	batch := make([]kafkago.Message, 0, w.batchSize)
	published := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := w.writer.WriteMessages(ctx, batch...); err != nil {
			return fmt.Errorf("write observations: %w", err)
		}
		published += len(batch)
		w.metrics.ObservationsPublished.Add(float64(len(batch)))
		batch = batch[:0]
		return nil
	}

	for _, region := range snap.Table.Regions() {
		for _, obs := range snap.Table.Observations(region.Name) {
			msg, err := serializeToMessage(snap, region, obs)
			if err != nil {
				return err
			}
			batch = append(batch, msg)
			if len(batch) >= w.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	w.logger.Info("snapshot published", "snapshot_id", snap.ID, "observations", published)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// observationMessage is the JSON value of a published observation.
type observationMessage struct {
	domain.Observation
	Area       domain.Area `json:"area"`
	FIPS       string      `json:"fips"`
	SnapshotID string      `json:"snapshot_id"`
}

// serializeToMessage marshals one observation into a Kafka message.
func serializeToMessage(snap *domain.Snapshot, region domain.Region, obs domain.Observation) (kafkago.Message, error) {
	data, err := json.Marshal(observationMessage{
		Observation: obs,
		Area:        region.Area,
		FIPS:        region.FIPS,
		SnapshotID:  snap.ID,
	})
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize observation: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(obs.Region),
		Value: data,
		Headers: []kafkago.Header{
			{Key: "region", Value: []byte(obs.Region)},
			{Key: "date", Value: []byte(obs.Date.Format(domain.DateLayout))},
			{Key: "snapshot_id", Value: []byte(snap.ID)},
			{Key: "loaded_at", Value: []byte(snap.LoadedAt.Format(time.RFC3339))},
		},
	}, nil
}
