package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "devportal/pkg/platform/audit"
)

// Kafka mirrors audit events to a Kafka topic for downstream consumers
// (SIEM, compliance archive). Produces are asynchronous; a failed produce is
// logged, never surfaced to the request path.
type Kafka struct {
	client *kgo.Client
	topic  string
	logger *slog.Logger
}

// NewKafka builds a Kafka publisher. Returns an error when the client cannot
// be constructed; broker connectivity is checked lazily on first produce.
func NewKafka(brokers []string, topic string, logger *slog.Logger) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic, logger: logger}, nil
}

func (p *Kafka) Emit(ctx context.Context, event audit.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(event.UserID),
		Value: payload,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil && p.logger != nil {
			p.logger.Error("audit produce failed", "action", event.Action, "error", err)
		}
	})
	return nil
}

// Close flushes pending produces and releases the client.
func (p *Kafka) Close(ctx context.Context) error {
	if err := p.client.Flush(ctx); err != nil {
		return fmt.Errorf("flush audit producer: %w", err)
	}
	p.client.Close()
	return nil
}
