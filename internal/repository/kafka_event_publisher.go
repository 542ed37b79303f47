package repository

import (
	"context"
	"fmt"

	"AnimaRex/internal/domain/models"
	pkgkafka "AnimaRex/pkg/kafka"
)

// KafkaEventPublisher writes decision events keyed by market, so one
// market's events stay ordered within a partition.
type KafkaEventPublisher struct {
	p     *pkgkafka.Producer
	topic string
}

func NewKafkaEventPublisher(p *pkgkafka.Producer, topic string) *KafkaEventPublisher {
	return &KafkaEventPublisher{p: p, topic: topic}
}

func (k *KafkaEventPublisher) PublishDecision(ctx context.Context, e models.DecisionEvent) error {
	if err := k.p.Publish(ctx, k.topic, []byte(e.Signal.Market), e); err != nil {
		return fmt.Errorf("publish decision: %w", err)
	}
	return nil
}

// Close is a no-op. The producer is shared with the log collector and is
// closed by its owner.
func (k *KafkaEventPublisher) Close() error { return nil }
