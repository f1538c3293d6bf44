package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used for publishing.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// ErrorHandler receives delivery failures.
type ErrorHandler func(event Event, err error)

// KafkaNotifier publishes events as JSON messages keyed by kind.
type KafkaNotifier struct {
	writer  MessageWriter
	timeout time.Duration
	onError ErrorHandler
}

// NewKafkaWriter builds a writer for the given brokers and topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
}

// NewKafkaNotifier wraps writer. onError may be nil.
func NewKafkaNotifier(writer MessageWriter, onError ErrorHandler) *KafkaNotifier {
	return &KafkaNotifier{writer: writer, timeout: 5 * time.Second, onError: onError}
}

// Notify implements Notifier. Failures are reported to the error handler only.
func (k *KafkaNotifier) Notify(ctx context.Context, event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		k.fail(event, err)
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), k.timeout)
	defer cancel()
	if err := k.writer.WriteMessages(ctx, kafka.Message{Key: []byte(event.Kind), Value: payload, Time: event.At}); err != nil {
		k.fail(event, err)
	}
}

// Close flushes and closes the underlying writer.
func (k *KafkaNotifier) Close() error { return k.writer.Close() }

func (k *KafkaNotifier) fail(event Event, err error) {
	if k.onError != nil {
		k.onError(event, err)
	}
}
