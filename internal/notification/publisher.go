package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Publisher defines the interface for event publishers
type Publisher interface {
	PublishEvent(ctx context.Context, topic string, event interface{}) error
}

// KafkaPublisher implements Publisher for Apache Kafka
type KafkaPublisher struct {
	writer *kafka.Writer
	log    *zap.Logger
}

// NewKafkaPublisher creates a Kafka publisher; the topic is set per message
func NewKafkaPublisher(brokers []string, log *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Balancer:     &kafka.CRC32Balancer{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
		log: log,
	}
}

// PublishEvent publishes an event to Kafka
func (k *KafkaPublisher) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	k.log.Debug("publishing event to kafka",
		zap.String("topic", topic),
		zap.Int("event_size", len(eventData)),
	)

	key := topic
	if e, ok := event.(*Event); ok {
		// one partition per record keeps its events ordered
		key = fmt.Sprintf("%s-%d", e.SourceKind, e.RecordID)
	}

	now := time.Now()
	msg := kafka.Message{
		Topic: topic,
		Key:   []byte(key),
		Value: eventData,
		Time:  now,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(topic)},
			{Key: "timestamp", Value: []byte(now.Format(time.RFC3339))},
		},
	}

	return k.writer.WriteMessages(ctx, msg)
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// RedisPublisher implements Publisher for Redis Streams
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

// NewRedisPublisher creates a Redis stream publisher on a shared client
func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{
		client: client,
		log:    log,
	}
}

// PublishEvent publishes an event to Redis Streams
func (r *RedisPublisher) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	eventData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	streamKey := "txconsole.notifications." + topic
	result := r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey,
		MaxLen: 10000,
		Approx: true,
		Values: map[string]interface{}{
			"event_type": topic,
			"data":       string(eventData),
			"timestamp":  time.Now().Format(time.RFC3339),
			"source":     "txconsole",
		},
	})
	if err := result.Err(); err != nil {
		return fmt.Errorf("failed to publish to redis stream: %w", err)
	}

	r.log.Debug("published event to redis stream",
		zap.String("stream", streamKey),
		zap.String("message_id", result.Val()))
	return nil
}

// WebhookPublisher implements Publisher for HTTP webhooks
type WebhookPublisher struct {
	webhookURL string
	client     *http.Client
	log        *zap.Logger
}

// NewWebhookPublisher creates a webhook publisher
func NewWebhookPublisher(webhookURL string, timeout time.Duration, log *zap.Logger) *WebhookPublisher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WebhookPublisher{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: timeout},
		log:        log,
	}
}

// PublishEvent publishes an event via HTTP webhook
func (w *WebhookPublisher) PublishEvent(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(map[string]interface{}{
		"topic":     topic,
		"event":     event,
		"timestamp": time.Now().Format(time.RFC3339),
		"source":    "txconsole",
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", topic)
	req.Header.Set("X-Source", "txconsole")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status code: %d", resp.StatusCode)
	}

	w.log.Debug("sent webhook",
		zap.String("url", w.webhookURL),
		zap.Int("status_code", resp.StatusCode))
	return nil
}
