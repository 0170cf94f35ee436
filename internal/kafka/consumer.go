package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ms-boost/internal/logger"

	"github.com/segmentio/kafka-go"
)

// Message is the transport-neutral view of a consumed record.
type Message struct {
	Topic string
	Key   []byte
	Value []byte
	Time  time.Time
}

type MessageHandler func(ctx context.Context, msg Message) error

type Consumer struct {
	reader *kafka.Reader
	logger *logger.Logger
}

// NewConsumer joins groupID and reads every topic in topics.
func NewConsumer(brokers, topics []string, groupID string, log *logger.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     brokers,
		GroupID:     groupID,
		GroupTopics: topics,
		MinBytes:    1,
		MaxBytes:    10e6, // 10MB
		MaxWait:     time.Second,
	})
	return &Consumer{reader: reader, logger: log}
}

// Start blocks until ctx is done. Handler errors are logged and the message is still committed.
func (c *Consumer) Start(ctx context.Context, handler MessageHandler) {
	c.logger.Info("KAFKA", "Kafka consumer started")
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				c.logger.Info("KAFKA", "Kafka consumer stopped")
				return
			}
			c.logger.Error("KAFKA", fmt.Sprintf("Error reading message: %v", err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		if err := handler(ctx, Message{Topic: msg.Topic, Key: msg.Key, Value: msg.Value, Time: msg.Time}); err != nil {
			c.logger.Warn("KAFKA", fmt.Sprintf("Handler failed for %s@%d: %v", msg.Topic, msg.Offset, err))
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			c.logger.Error("KAFKA", fmt.Sprintf("Failed to commit %s@%d: %v", msg.Topic, msg.Offset, err))
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}
