package events

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"

	"github.com/idxstock/stockapi/internal/metrics"
)

// MessageWriter is the subset of kafka.Writer used by the producer.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes stock events to a Kafka topic keyed by symbol, so
// events for one stock stay ordered within a partition.
type KafkaPublisher struct {
	writer  MessageWriter
	metrics metrics.Recorder
}

// NewKafkaPublisher creates a producer for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string, recorder metrics.Recorder) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return NewKafkaPublisherWithWriter(writer, recorder)
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter, recorder metrics.Recorder) *KafkaPublisher {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &KafkaPublisher{writer: w, metrics: recorder}
}

// Publish writes one event.
func (p *KafkaPublisher) Publish(ctx context.Context, event StockEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Symbol),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event-type", Value: []byte(event.EventType)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.metrics.IncStockEvent(event.EventType, "failed")
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	p.metrics.IncStockEvent(event.EventType, "success")
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
