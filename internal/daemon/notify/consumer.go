package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/IBM/sarama"

	"github.com/daemonflow/daemonflow/internal/platform/config"
	"github.com/daemonflow/daemonflow/internal/platform/logger"
)

// ResultConsumer reads the ResultEvents a KafkaPublisher writes and
// forwards each one to a local Publisher. This is the bridge the
// orchestrator needs to feed its in-memory websocket gateway (gateway.Hub)
// from results produced by separate instance-worker processes —
// per DESIGN's "no parent->child task IPC" decision, the Kafka topic is
// the only channel connecting those processes to the orchestrator, so the
// orchestrator has to consume its own publisher's output to re-publish it
// locally.
type ResultConsumer struct {
	consumer sarama.Consumer
	topic    string
	log      logger.Logger
}

// NewResultConsumer dials the configured brokers. Callers should check
// cfg.Enabled before constructing one at all, matching NewKafkaPublisher.
func NewResultConsumer(cfg config.KafkaConfig, log logger.Logger) (*ResultConsumer, error) {
	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(cfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("notify: failed to create kafka consumer: %w", err)
	}
	return &ResultConsumer{consumer: consumer, topic: cfg.Topic, log: log}, nil
}

// Run consumes every partition of the topic from the newest offset onward
// — an orchestrator that (re)starts only cares about live results, not a
// full replay of history — decodes each message as a ResultEvent, and
// calls sink.Publish for it. Blocks until ctx is cancelled.
func (c *ResultConsumer) Run(ctx context.Context, sink Publisher) {
	partitions, err := c.consumer.Partitions(c.topic)
	if err != nil {
		c.log.Warn("notify: failed to list kafka partitions", "topic", c.topic, "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, p := range partitions {
		pc, err := c.consumer.ConsumePartition(c.topic, p, sarama.OffsetNewest)
		if err != nil {
			c.log.Warn("notify: failed to consume partition", "topic", c.topic, "partition", p, "error", err)
			continue
		}
		wg.Add(1)
		go c.drainPartition(ctx, &wg, pc, sink)
	}
	wg.Wait()
}

func (c *ResultConsumer) drainPartition(ctx context.Context, wg *sync.WaitGroup, pc sarama.PartitionConsumer, sink Publisher) {
	defer wg.Done()
	defer pc.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-pc.Messages():
			if !ok {
				return
			}
			var ev ResultEvent
			if err := json.Unmarshal(msg.Value, &ev); err != nil {
				c.log.Warn("notify: failed to decode result event", "error", err)
				continue
			}
			if err := sink.Publish(ctx, ev); err != nil {
				c.log.Warn("notify: failed to forward result event", "error", err)
			}
		case err, ok := <-pc.Errors():
			if !ok {
				return
			}
			c.log.Warn("notify: kafka consume error", "error", err)
		}
	}
}

// Close shuts the underlying consumer down.
func (c *ResultConsumer) Close() error {
	return c.consumer.Close()
}
