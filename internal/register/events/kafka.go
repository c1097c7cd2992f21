package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"rollbook/internal/register/models"
)

// Kafka publishes change events to a single topic, keyed by group and
// student so per-cell ordering is preserved across partitions.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to the brokers. The topic must exist or
// the cluster must allow auto-creation.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

func (k *Kafka) Publish(ctx context.Context, event models.ChangeEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.GroupID + "/" + event.StudentID),
		Value: payload,
	}
	if err := k.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce change event: %w", err)
	}
	return nil
}

func (k *Kafka) Close() {
	k.client.Close()
}
