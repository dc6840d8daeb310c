package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the notifier needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaNotifier writes messages to a Kafka topic keyed by aggregate.
type KafkaNotifier struct {
	writer MessageWriter
}

// NewKafkaWriter builds a synchronous writer for topic.
func NewKafkaWriter(brokers []string, topic string, logger *slog.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		MaxAttempts:  3,
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		ErrorLogger: kafka.LoggerFunc(func(msg string, args ...interface{}) {
			logger.Error(fmt.Sprintf(msg, args...))
		}),
	}
}

// NewKafkaNotifier wraps writer.
func NewKafkaNotifier(writer MessageWriter) *KafkaNotifier {
	return &KafkaNotifier{writer: writer}
}

// Send writes the message body with the kind carried as a header.
func (n *KafkaNotifier) Send(ctx context.Context, message Message) error {
	err := n.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(message.Key),
		Value: []byte(message.Body),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(message.Kind)},
			{Key: "destination", Value: []byte(message.Destination)},
		},
		Time: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", message.Kind, err)
	}
	return nil
}

// Close flushes and closes the writer.
func (n *KafkaNotifier) Close() error {
	return n.writer.Close()
}
