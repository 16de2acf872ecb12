// Package notify implements the two outward-facing supplemented features
// from SPEC_FULL.md §5: a results-event bus (so external systems can react
// to workflow completion without polling the Queue Backend) and
// fatal-workflow email alerting. Both are optional — a Worker built
// without a notify.Publisher/notify.Alerter behaves exactly as before,
// matching the teacher's pattern of treating notification as a
// best-effort side channel that never blocks the primary write path.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// ResultEvent is published once per completed workflow instance.
type ResultEvent struct {
	InstanceID   int64     `json:"instance_id"`
	WorkflowName string    `json:"workflow_name"`
	RegistryID   string    `json:"registry_id"`
	Succeeded    bool      `json:"succeeded"`
	Error        string    `json:"error,omitempty"`
	CompletedAt  time.Time `json:"completed_at"`
}

// Publisher publishes ResultEvents. Implementations must not block the
// caller for long — AppendResult/CompleteInstance callers treat publish
// failures as logged-and-ignored, never as a reason to fail the write
// that already committed to Postgres.
type Publisher interface {
	Publish(ctx context.Context, ev ResultEvent) error
	Close() error
}

// KafkaPublisher publishes ResultEvents to a single fixed topic, adapted
// from internal/platform/messaging/kafka.EventPublisher: same
// async-producer-plus-error/success-drain-goroutines shape, narrowed from
// a generic multi-topic CQRS event bus down to the one
// workflow-result topic this spec needs.
type KafkaPublisher struct {
	producer sarama.AsyncProducer
	topic    string
	log      logger.Logger
}

// NewKafkaPublisher dials the configured brokers. Returns a no-op
// publisher's zero value never happens — callers should check
// cfg.Enabled before constructing one at all.
func NewKafkaPublisher(cfg config.KafkaConfig, log logger.Logger) (*KafkaPublisher, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	saramaCfg.Producer.Retry.Max = 5
	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Compression = sarama.CompressionSnappy

	producer, err := sarama.NewAsyncProducer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create kafka producer: %w", err)
	}

	p := &KafkaPublisher{producer: producer, topic: cfg.Topic, log: log}
	go p.drain()
	return p, nil
}

func (p *KafkaPublisher) drain() {
	for {
		select {
		case err, ok := <-p.producer.Errors():
			if !ok {
				return
			}
			p.log.Warn("notify: kafka publish failed", "error", err.Err)
		case _, ok := <-p.producer.Successes():
			if !ok {
				return
			}
		}
	}
}

// Publish sends ev asynchronously; it does not wait for broker ack beyond
// what the producer's input channel accepting the message implies.
func (p *KafkaPublisher) Publish(ctx context.Context, ev ResultEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify: marshal result event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic:     p.topic,
		Key:       sarama.StringEncoder(fmt.Sprintf("%d", ev.InstanceID)),
		Value:     sarama.ByteEncoder(data),
		Timestamp: ev.CompletedAt,
	}

	select {
	case p.producer.Input() <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the underlying producer down, flushing in-flight messages.
func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
