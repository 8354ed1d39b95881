package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier публикует сообщение в топик; ключ партиции — получатель.
type KafkaNotifier struct {
	writer messageWriter
	topic  string
	logger *zap.SugaredLogger
}

func NewKafkaNotifier(brokers []string, topic string, logger *zap.SugaredLogger) (*KafkaNotifier, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka notifier requires at least one broker")
	}
	if topic == "" {
		return nil, fmt.Errorf("kafka notifier requires a topic")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		RequiredAcks: kafka.RequireAll,
		Balancer:     &kafka.Hash{},
	}
	return &KafkaNotifier{writer: w, topic: topic, logger: logger}, nil
}

func (n *KafkaNotifier) Deliver(ctx context.Context, d KeyDelivery) error {
	payload, err := encode(d)
	if err != nil {
		return fmt.Errorf("encode key delivery: %w", err)
	}
	err = n.writer.WriteMessages(ctx, kafka.Message{
		Topic: n.topic,
		Key:   []byte(d.RecipientAddress),
		Value: payload,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		n.logger.Warnw("kafka key delivery failed", "artifact_id", d.ArtifactID, "error", err)
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	n.logger.Infow("key delivered", "channel", "kafka", "artifact_id", d.ArtifactID, "recipient", d.RecipientAddress)
	return nil
}

func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
