// Package kafka publishes alert lifecycle events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/taluka-alert-service/internal/config"
	"github.com/couchcryptid/taluka-alert-service/internal/domain"
)

// Writer produces one message per finished alert.
// It implements delivery.EventPublisher.
type Writer struct {
	writer *kafkago.Writer
	logger *slog.Logger
}

// NewWriter creates a producer for the configured alert topic.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Topic:        cfg.KafkaAlertTopic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return &Writer{writer: w, logger: logger}
}

// Publish writes ev keyed by alert id so every event for one alert lands on
// the same partition.
func (w *Writer) Publish(ctx context.Context, ev domain.AlertEvent) error {
	msg, err := serializeToMessage(ev)
	if err == nil {
		err = w.writer.WriteMessages(ctx, msg)
	}
	if err != nil {
		return fmt.Errorf("publish alert event %s: %w", ev.Alert.ID, err)
	}
	w.logger.Debug("alert event published", "alert_id", ev.Alert.ID, "outcome", ev.Alert.Outcome)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// serializeToMessage marshals an AlertEvent into a Kafka message.
func serializeToMessage(ev domain.AlertEvent) (kafkago.Message, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return kafkago.Message{}, fmt.Errorf("serialize alert event: %w", err)
	}
	return kafkago.Message{
		Key:   []byte(ev.Alert.ID),
		Value: data,
		Time:  ev.FinishedAt,
		Headers: []kafkago.Header{
			{Key: "category", Value: []byte(ev.Alert.Category)},
			{Key: "outcome", Value: []byte(ev.Alert.Outcome)},
			{Key: "finished_at", Value: []byte(ev.FinishedAt.Format(time.RFC3339))},
		},
	}, nil
}
