package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"mercator-hq/helios/pkg/governance"
	"mercator-hq/helios/pkg/telemetry/tracing"
)

var errNotConnected = errors.New("not connected")

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink writes messages to a topic keyed by policy id, so events for one
// policy land on one partition in order.
type KafkaSink struct {
	brokers []string
	topic   string

	newWriter func() kafkaWriter
	writer    kafkaWriter
}

// NewKafkaSink creates a sink for topic on brokers.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	cleaned := make([]string, 0, len(brokers))
	for _, b := range brokers {
		if trimmed := strings.TrimSpace(b); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	if len(cleaned) == 0 {
		return nil, governance.NewValidationError("transport.kafka.brokers", "at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, governance.NewValidationError("transport.kafka.topic", "topic is required")
	}

	s := &KafkaSink{brokers: cleaned, topic: topic}
	s.newWriter = func() kafkaWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(s.brokers...),
			Topic:        s.topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			BatchTimeout: 10 * time.Millisecond,
		}
	}
	return s, nil
}

// Name implements Sink.
func (s *KafkaSink) Name() string { return "kafka" }

// Connect creates the writer. The writer dials brokers lazily, so connection
// problems surface on the first Send.
func (s *KafkaSink) Connect(context.Context) error {
	s.writer = s.newWriter()
	return nil
}

// Send writes one message and waits for the broker acknowledgement.
func (s *KafkaSink) Send(ctx context.Context, msg Message) error {
	if s.writer == nil {
		return governance.NewTransportError(s.Name(), "send", errNotConnected)
	}
	carrier := make(map[string]string)
	tracing.InjectToMap(ctx, carrier)
	km := kafka.Message{Key: []byte(msg.Key), Value: msg.Value}
	for k, v := range carrier {
		km.Headers = append(km.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	err := s.writer.WriteMessages(ctx, km)
	if err != nil {
		return governance.NewTransportError(s.Name(), "send", err)
	}
	return nil
}

// Close flushes and closes the writer.
func (s *KafkaSink) Close() error {
	if s.writer == nil {
		return nil
	}
	w := s.writer
	s.writer = nil
	if err := w.Close(); err != nil {
		return governance.NewTransportError(s.Name(), "close", err)
	}
	return nil
}
