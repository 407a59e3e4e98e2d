package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"keyvault-glow/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON to a single topic keyed by aggregate id.
type KafkaPublisher struct {
	w      messageWriter
	logger zerolog.Logger
}

// NewKafkaPublisher creates a synchronous writer that waits for all in-sync
// replicas before acknowledging.
func NewKafkaPublisher(cfg config.KafkaConfig, logger zerolog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		w: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			MaxAttempts:  5,
			WriteTimeout: 5 * time.Second,
			ReadTimeout:  5 * time.Second,
			BatchTimeout: 50 * time.Millisecond,
		},
		logger: logger.With().Str("component", "kafka_publisher").Str("topic", cfg.Topic).Logger(),
	}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event %s: %w", event.Type, err)
	}

	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", string(event.Type)).Str("key", event.Key).Msg("failed to publish event")
		return fmt.Errorf("publish event %s: %w", event.Type, err)
	}

	p.logger.Debug().Str("event_type", string(event.Type)).Str("key", event.Key).Msg("event published")
	return nil
}

// Close flushes and releases the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}
