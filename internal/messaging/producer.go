// Package messaging carries notification tasks over Kafka with trace context
// propagated in message headers.
package messaging

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/storefront/internal/domain/notify"
)

// Writer is the subset of *kafka.Writer used by Producer.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ notify.Publisher = (*Producer)(nil)

// Producer publishes notification tasks to one topic. Tasks are keyed by
// order id so all tasks of an order land on the same partition in order.
type Producer struct {
	writer Writer
	topic  string
	tracer trace.Tracer
}

// NewProducer creates a Producer writing to topic on brokers.
func NewProducer(brokers []string, topic string, tp trace.TracerProvider) *Producer {
	return NewProducerWithWriter(&kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           100 * time.Millisecond,
		RequiredAcks:           kafka.RequireAll,
	}, topic, tp)
}

// NewProducerWithWriter creates a Producer on top of an existing writer.
func NewProducerWithWriter(w Writer, topic string, tp trace.TracerProvider) *Producer {
	return &Producer{
		writer: w,
		topic:  topic,
		tracer: tp.Tracer("storefront/messaging"),
	}
}

// Publish implements notify.Publisher.
func (p *Producer) Publish(ctx context.Context, t notify.Task) error {
	msg := kafka.Message{
		Key:   []byte(t.OrderID),
		Value: notify.MarshalTask(t),
		Time:  t.CreatedAt,
	}

	ctx, span := p.tracer.Start(ctx, "send "+p.topic,
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			semconv.MessagingSystemKafka,
			semconv.MessagingOperationName("send"),
			semconv.MessagingOperationTypePublish,
			semconv.MessagingDestinationName(p.topic),
			semconv.MessagingKafkaMessageKey(t.OrderID),
			semconv.MessagingMessageID(t.ID),
		),
	)
	defer span.End()

	otel.GetTextMapPropagator().Inject(ctx, NewMessageCarrier(&msg))

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrapf(err, "publish %s task", t.Kind)
	}

	return nil
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}
