package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka is a Sink that produces one record per event, keyed by learner so a
// learner's history stays ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a producer to brokers for topic.
func NewKafka(brokers []string, topic string, opts ...kgo.Opt) (*Kafka, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka: at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("kafka: topic is required")
	}
	base := []kgo.Opt{
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ClientID("gradegate-audit"),
	}
	client, err := kgo.NewClient(append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// EnsureTopic creates the topic if it does not exist yet.
func (k *Kafka) EnsureTopic(ctx context.Context, partitions int32, replication int16) error {
	adm := kadm.NewClient(k.client)
	resp, err := adm.CreateTopics(ctx, partitions, replication, nil, k.topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", k.topic, err)
	}
	for _, t := range resp {
		if t.Err != nil && !errors.Is(t.Err, kerr.TopicAlreadyExists) {
			return fmt.Errorf("create topic %s: %w", t.Topic, t.Err)
		}
	}
	return nil
}

// Ping checks broker connectivity.
func (k *Kafka) Ping(ctx context.Context) error {
	return k.client.Ping(ctx)
}

// Deliver produces events synchronously and returns the first failure.
func (k *Kafka) Deliver(ctx context.Context, events []Event) error {
	records := make([]*kgo.Record, 0, len(events))
	for _, e := range events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal audit event: %w", err)
		}
		records = append(records, &kgo.Record{
			Topic: k.topic,
			Key:   []byte(e.LearnerID.String()),
			Value: payload,
			Headers: []kgo.RecordHeader{
				{Key: "action", Value: []byte(e.Action)},
			},
		})
	}
	if err := k.client.ProduceSync(ctx, records...).FirstErr(); err != nil {
		return fmt.Errorf("produce audit events: %w", err)
	}
	return nil
}

func (k *Kafka) Close() error {
	k.client.Close()
	return nil
}
