// Package kafka provides a Kafka-based implementation of the event bus used to
// fan out task change notifications.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/diffbridge/diffbridge/internal/domain/events"
	"github.com/diffbridge/diffbridge/internal/infra/eventbus/kafka/tracing"
	"github.com/diffbridge/diffbridge/pkg/common/logger"
)

// Config contains settings for connecting to and interacting with Kafka
// brokers.
type Config struct {
	// Brokers is a list of Kafka broker addresses to connect to.
	Brokers []string

	// TaskChangesTopic carries every task change notification, keyed by task
	// id so changes to one task stay ordered within a partition.
	TaskChangesTopic string

	// GroupID identifies the consumer group for this bus instance.
	GroupID string
	// ClientID uniquely identifies this client to the Kafka cluster.
	ClientID string
}

// envelope is the wire form of a domain event. Payloads are JSON so
// non-Go consumers (dashboards, notification bots) can read the stream
// without our types.
type envelope struct {
	Type      events.EventType  `json:"type"`
	Key       string            `json:"key,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
}

var _ events.EventBus = (*EventBus)(nil)

// EventBus implements events.EventBus on top of a Kafka producer and consumer
// group. All event types share the single task changes topic.
type EventBus struct {
	producer      sarama.SyncProducer
	consumerGroup sarama.ConsumerGroup
	topic         string

	logger *logger.Logger
	tracer trace.Tracer

	closeOnce sync.Once
	closeErr  error
}

// NewEventBusFromConfig creates a Kafka-backed event bus from the provided
// configuration, establishing both the producer and consumer group
// connections.
func NewEventBusFromConfig(cfg *Config, log *logger.Logger, tracer trace.Tracer) (*EventBus, error) {
	producerConfig := sarama.NewConfig()
	producerConfig.Producer.RequiredAcks = sarama.WaitForAll
	producerConfig.Producer.Return.Successes = true
	producerConfig.Producer.Partitioner = sarama.NewHashPartitioner
	producerConfig.ClientID = cfg.ClientID
	producerConfig.Version = sarama.V3_6_0_0

	producer, err := sarama.NewSyncProducer(cfg.Brokers, producerConfig)
	if err != nil {
		return nil, fmt.Errorf("creating kafka producer: %w", err)
	}

	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = cfg.ClientID
	consumerConfig.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	consumerConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	consumerConfig.Consumer.Group.Session.Timeout = 20 * time.Second
	consumerConfig.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	consumerConfig.Consumer.Offsets.AutoCommit.Enable = true
	consumerConfig.Consumer.Offsets.AutoCommit.Interval = 1 * time.Second
	consumerConfig.Version = sarama.V3_6_0_0

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, consumerConfig)
	if err != nil {
		producer.Close()
		return nil, fmt.Errorf("creating consumer group: %w", err)
	}

	return &EventBus{
		producer:      producer,
		consumerGroup: consumerGroup,
		topic:         cfg.TaskChangesTopic,
		logger:        log.With("component", "kafka_event_bus"),
		tracer:        tracer,
	}, nil
}

// PublishDomainEvent sends a domain event to the task changes topic. Events
// sharing a key land on the same partition, preserving per-task ordering.
func (b *EventBus) PublishDomainEvent(ctx context.Context, event events.DomainEvent, opts ...events.PublishOption) error {
	ctx, span := tracing.StartProducerSpan(ctx, b.topic, b.tracer)
	defer span.End()

	var params events.PublishParams
	for _, opt := range opts {
		opt(&params)
	}
	if params.Key != "" {
		event.Key = params.Key
	}
	if len(params.Headers) > 0 {
		event.Headers = params.Headers
	}
	span.SetAttributes(
		attribute.String("event.type", string(event.Type)),
		attribute.String("event.key", event.Key),
	)

	payload, err := json.Marshal(event.Payload)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("serializing payload for event %s: %w", event.Type, err)
	}

	env := envelope{
		Type:      event.Type,
		Key:       event.Key,
		Headers:   event.Headers,
		Timestamp: event.Timestamp,
		Payload:   payload,
	}
	msgBytes, err := json.Marshal(env)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("serializing envelope for event %s: %w", event.Type, err)
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Value: sarama.ByteEncoder(msgBytes),
	}
	if event.Key != "" {
		msg.Key = sarama.StringEncoder(event.Key)
	}

	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return fmt.Errorf("publishing event %s: %w", event.Type, err)
	}
	span.SetAttributes(
		attribute.Int64("messaging.kafka.partition", int64(partition)),
		attribute.Int64("messaging.kafka.offset", offset),
	)
	return nil
}

// Subscribe registers a handler for the given event types and starts consuming
// in the background until ctx is cancelled. Handler errors are logged and the
// message is still committed; the change stream is a notification channel, not
// a durable work queue.
func (b *EventBus) Subscribe(ctx context.Context, eventTypes []events.EventType, handler events.HandlerFunc) error {
	wanted := make(map[events.EventType]struct{}, len(eventTypes))
	for _, et := range eventTypes {
		wanted[et] = struct{}{}
	}

	cgh := &consumerGroupHandler{
		bus:     b,
		wanted:  wanted,
		handler: handler,
	}

	go func() {
		for {
			if err := b.consumerGroup.Consume(ctx, []string{b.topic}, cgh); err != nil {
				b.logger.Error(ctx, "consumer group session ended", "err", err)
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	return nil
}

// Close shuts down the producer and consumer group.
func (b *EventBus) Close() error {
	b.closeOnce.Do(func() {
		perr := b.producer.Close()
		cerr := b.consumerGroup.Close()
		if perr != nil {
			b.closeErr = perr
			return
		}
		b.closeErr = cerr
	})
	return b.closeErr
}

type consumerGroupHandler struct {
	bus     *EventBus
	wanted  map[events.EventType]struct{}
	handler events.HandlerFunc
}

func (h *consumerGroupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.handleMessage(session.Context(), msg)
		session.MarkMessage(msg, "")
	}
	return nil
}

func (h *consumerGroupHandler) handleMessage(ctx context.Context, msg *sarama.ConsumerMessage) {
	ctx, span := tracing.StartConsumerSpan(ctx, msg, h.bus.tracer)
	defer span.End()

	var env envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil {
		span.RecordError(err)
		h.bus.logger.Error(ctx, "dropping undecodable message",
			"topic", msg.Topic, "offset", msg.Offset, "err", err)
		return
	}

	if _, ok := h.wanted[env.Type]; !ok {
		return
	}

	event := events.DomainEvent{
		Type:      env.Type,
		Key:       env.Key,
		Headers:   env.Headers,
		Timestamp: env.Timestamp,
		Payload:   env.Payload,
	}
	if err := h.handler(ctx, event); err != nil {
		span.RecordError(err)
		h.bus.logger.Error(ctx, "event handler failed",
			"event_type", env.Type, "key", env.Key, "err", err)
	}
}
