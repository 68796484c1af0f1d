// Package events publishes domain events to Kafka once the originating write has committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/core-coin/coinstore/internal/models"
	"github.com/core-coin/coinstore/pkg/logger"
)

const writeTimeout = 5 * time.Second

// KafkaPublisher writes each event to the topic "<prefix>.<event type>".
type KafkaPublisher struct {
	logger      *logger.Logger
	writer      *kafka.Writer
	topicPrefix string
}

func NewKafkaPublisher(brokers []string, topicPrefix string, logger *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		logger:      logger,
		topicPrefix: topicPrefix,
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           writeTimeout,
		},
	}
}

// Topic returns the topic an event type is written to.
func (p *KafkaPublisher) Topic(eventType string) string {
	return p.topicPrefix + "." + eventType
}

func (p *KafkaPublisher) Publish(ctx context.Context, event *models.Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event %s: %w", event.Type, err)
	}
	msg := kafka.Message{
		Topic: p.Topic(event.Type),
		Key:   []byte(event.Key),
		Value: body,
		Time:  event.OccurredAt,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Type, err)
	}
	p.logger.Debug("Event published", "type", event.Type, "key", event.Key)
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, *models.Event) error { return nil }
func (Nop) Close() error                                 { return nil }

// New builds an event with the current time.
func New(eventType, key string, payload interface{}) *models.Event {
	return &models.Event{
		Type:       eventType,
		Key:        key,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Emit publishes an event and logs instead of failing; the business write has already committed.
func Emit(ctx context.Context, publisher models.EventPublisher, log *logger.Logger, eventType, key string, payload interface{}) {
	if publisher == nil {
		return
	}
	if err := publisher.Publish(ctx, New(eventType, key, payload)); err != nil {
		log.Error("Failed to publish event", "type", eventType, "key", key, "error", err)
	}
}
