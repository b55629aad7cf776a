package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	log "github.com/sirupsen/logrus"

	"github.com/loadpilot/loadpilot/pkg/types"
)

// Kafka publishes scaling intents to a topic so other systems can
// observe capacity changes. With no brokers configured the writer is
// nil and publishing degrades to a log line.
type Kafka struct {
	writer *kafka.Writer
	topic  string
}

// NewKafka creates a Kafka sink. An empty broker list yields a
// disabled sink that only logs.
func NewKafka(brokers []string, topic string) *Kafka {
	if len(brokers) == 0 {
		log.Warn("No Kafka brokers configured, scaling intents will be logged only")
		return &Kafka{topic: topic}
	}

	return &Kafka{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.LeastBytes{},
			BatchTimeout: 50 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
			Compression:  kafka.Zstd,
		},
	}
}

// Notify publishes the intent keyed by its action
func (k *Kafka) Notify(ctx context.Context, intent types.ScalingIntent) error {
	value, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("failed to encode scaling intent: %w", err)
	}

	if k.writer == nil {
		log.WithFields(log.Fields{
			"topic":  k.topic,
			"intent": string(value),
		}).Info("Kafka disabled, intent not published")
		return nil
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(intent.Action),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("failed to publish scaling intent: %w", err)
	}
	return nil
}

// Close flushes and closes the writer
func (k *Kafka) Close() error {
	if k.writer == nil {
		return nil
	}
	return k.writer.Close()
}
