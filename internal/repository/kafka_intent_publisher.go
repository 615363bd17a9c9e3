package repository

import (
	"context"

	"Conductor/internal/domain/models"
	domrepo "Conductor/internal/domain/repository"
)

// Publisher is the producer surface the intent publisher needs.
type Publisher interface {
	Publish(ctx context.Context, topic string, key []byte, value interface{}) error
	Close() error
}

// KafkaIntentPublisher publishes finished intents keyed by intent id.
type KafkaIntentPublisher struct {
	producer Publisher
	topic    string
}

var _ domrepo.IntentPublisher = (*KafkaIntentPublisher)(nil)

func NewKafkaIntentPublisher(producer Publisher, topic string) *KafkaIntentPublisher {
	return &KafkaIntentPublisher{producer: producer, topic: topic}
}

func (p *KafkaIntentPublisher) PublishIntent(ctx context.Context, intent models.PortfolioIntent) error {
	return p.producer.Publish(ctx, p.topic, []byte(intent.IntentID), intent)
}

func (p *KafkaIntentPublisher) Close() error {
	if p.producer != nil {
		return p.producer.Close()
	}
	return nil
}
