package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream field names. The consumer resolves handlers from the eventType
// field, so producers must always set it.
const (
	fieldPayload   = "payload"
	fieldEventType = "eventType"
	fieldTraceID   = "traceId"

	fieldDLQReason    = "Dead-Letter-Reason"
	fieldDLQTimestamp = "Dead-Letter-Timestamp"
	fieldDLQTraceID   = "Trace-Id"
)

// DeadLetterTopic returns the operational mirror stream for an event type.
func DeadLetterTopic(eventType string) string {
	return eventType + "-dlq"
}

// Producer publishes pipeline messages onto Redis Streams, one stream per
// topic.
type Producer struct {
	client *redis.Client
}

func NewProducer(client *redis.Client) *Producer {
	return &Producer{client: client}
}

// Publish appends the payload to the topic stream with the eventType header.
func (p *Producer) Publish(ctx context.Context, topic string, payload []byte, eventType, traceID string) error {
	values := map[string]any{
		fieldPayload:   string(payload),
		fieldEventType: eventType,
	}
	if traceID != "" {
		values[fieldTraceID] = traceID
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: topic,
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// PublishDeadLetter mirrors a terminally failed payload onto the
// {eventType}-dlq stream for operations tooling. The database record is the
// authoritative copy; this stream is visibility only.
func (p *Producer) PublishDeadLetter(ctx context.Context, eventType string, payload []byte, reason, traceID string) error {
	values := map[string]any{
		fieldPayload:      string(payload),
		fieldEventType:    eventType,
		fieldDLQReason:    reason,
		fieldDLQTimestamp: time.Now().UTC().Format(time.RFC3339),
	}
	if traceID != "" {
		values[fieldDLQTraceID] = traceID
	}

	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: DeadLetterTopic(eventType),
		Values: values,
	}).Err()
	if err != nil {
		return fmt.Errorf("publish to dlq %s: %w", DeadLetterTopic(eventType), err)
	}
	return nil
}

// Message is one bus message normalized from a stream entry.
type Message struct {
	ID        string
	EventType string
	TraceID   string
	Payload   []byte
}

// StreamConsumer reads one stream through a consumer group. Within a group
// each entry is delivered to exactly one consumer, and acknowledging an
// entry is the stream equivalent of committing its offset.
type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string {
	return c.stream
}

func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	// Create stream if it doesn't exist
	const busyGroupMsg = "BUSYGROUP"
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), busyGroupMsg) {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

// Read blocks up to the configured poll timeout and returns the next batch
// of undelivered entries, normalized into Messages.
func (c *StreamConsumer) Read(ctx context.Context) ([]Message, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if err == redis.Nil {
			// No new messages
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []Message
	for _, stream := range streams {
		for _, xm := range stream.Messages {
			msgs = append(msgs, toMessage(xm))
		}
	}
	return msgs, nil
}

// Ack acknowledges an entry for the group; unacked entries are redelivered.
func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	err := c.client.XAck(ctx, c.stream, c.group, messageID).Err()
	if err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over entries another consumer in the group read but never
// acked, typically after a crash or a shutdown mid-retry. It scans the
// pending entries list from the start; an entry becomes claimable once it
// has sat unacked longer than minIdle.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]Message, error) {
	claimed, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to claim stale messages: %w", err)
	}

	msgs := make([]Message, 0, len(claimed))
	for _, xm := range claimed {
		msgs = append(msgs, toMessage(xm))
	}
	return msgs, nil
}

func toMessage(xm redis.XMessage) Message {
	m := Message{ID: xm.ID}
	if v, ok := xm.Values[fieldPayload].(string); ok {
		m.Payload = []byte(v)
	}
	if v, ok := xm.Values[fieldEventType].(string); ok {
		m.EventType = v
	}
	if v, ok := xm.Values[fieldTraceID].(string); ok {
		m.TraceID = v
	}
	return m
}
