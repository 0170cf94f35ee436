package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"ms-boost/internal/config"
	"ms-boost/internal/models"
)

// Publisher is satisfied by the shared internal/kafka producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

// Producer streams boost lifecycle events, keyed by listing so a listing's events stay ordered.
type Producer struct {
	Publisher Publisher
	Topics    config.TopicConfig
}

func NewProducer(publisher Publisher, topics config.TopicConfig) *Producer {
	return &Producer{Publisher: publisher, Topics: topics}
}

func (p *Producer) TopicFor(eventType string) (string, error) {
	switch eventType {
	case models.BoostEventCreated:
		return p.Topics.BoostCreated, nil
	case models.BoostEventActivated:
		return p.Topics.BoostActivated, nil
	case models.BoostEventCancelled:
		return p.Topics.BoostCancelled, nil
	case models.BoostEventExpired:
		return p.Topics.BoostExpired, nil
	case models.BoostEventPaymentFailed:
		return p.Topics.BoostPaymentFailed, nil
	}
	return "", fmt.Errorf("unknown boost event type %q", eventType)
}

func (p *Producer) PublishBoostEvent(ctx context.Context, event models.BoostEvent) error {
	topic, err := p.TopicFor(event.Type)
	if err != nil {
		return err
	}

	msgBytes, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal boost event: %w", err)
	}

	return p.Publisher.Publish(ctx, topic, strconv.FormatInt(event.ListingID, 10), msgBytes)
}
