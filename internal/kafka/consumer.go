package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"

	"ms-scanning/internal/logger"
	"ms-scanning/internal/models"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// OfflineScanHandler processes one decoded offline scan.
type OfflineScanHandler func(ctx context.Context, msg models.OfflineScanMessage) error

// ErrMalformedMessage marks messages that can never be processed.
var ErrMalformedMessage = errors.New("malformed offline scan message")

type Consumer struct {
	reader MessageReader
	topic  string
	log    *logger.Logger

	// RetryInterval is the first pause before a failed message is handled
	// again. Retries continue until the handler succeeds or ctx ends.
	RetryInterval time.Duration
}

// NewConsumer creates a Kafka consumer for the given topic and group
func NewConsumer(brokers []string, topic, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	return NewConsumerWithReader(reader, topic, log)
}

func NewConsumerWithReader(r MessageReader, topic string, log *logger.Logger) *Consumer {
	return &Consumer{reader: r, topic: topic, log: log, RetryInterval: time.Second}
}

// Start consumes until ctx is cancelled. A message's offset is committed
// once the handler succeeded or the message was found to be malformed;
// other handler errors retry the same message with backoff.
func (c *Consumer) Start(ctx context.Context, handler OfflineScanHandler) error {
	c.log.LogKafka("consume", c.topic, "consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.LogKafka("consume", c.topic, "consumer stopped")
				return nil
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		err = c.handleWithRetry(ctx, msg, handler)
		switch {
		case errors.Is(err, ErrMalformedMessage):
			c.log.Warn("KAFKA", fmt.Sprintf("skipping offset %d: %v", msg.Offset, err))
		case err != nil:
			if ctx.Err() != nil {
				c.log.LogKafka("consume", c.topic, "consumer stopped")
				return nil
			}
			return fmt.Errorf("offset %d: %w", msg.Offset, err)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.log.Error("KAFKA", fmt.Sprintf("commit offset %d: %v", msg.Offset, err))
		}
	}
}

func (c *Consumer) handleWithRetry(ctx context.Context, msg kafka.Message, handler OfflineScanHandler) error {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.RetryInterval
	exp.MaxElapsedTime = 0

	return backoff.RetryNotify(func() error {
		err := HandleMessage(ctx, msg, handler)
		if errors.Is(err, ErrMalformedMessage) {
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(exp, ctx), func(err error, wait time.Duration) {
		c.log.Warn("KAFKA", fmt.Sprintf("offset %d failed, retrying in %s: %v", msg.Offset, wait, err))
	})
}

// HandleMessage decodes msg and passes it to handler.
func HandleMessage(ctx context.Context, msg kafka.Message, handler OfflineScanHandler) error {
	var scan models.OfflineScanMessage
	if err := json.Unmarshal(msg.Value, &scan); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if scan.Token == "" || scan.ClientEventID == "" {
		return fmt.Errorf("%w: token and client_event_id are required", ErrMalformedMessage)
	}
	return handler(ctx, scan)
}

// Close gracefully shuts down the Kafka reader
func (c *Consumer) Close() error {
	return c.reader.Close()
}
