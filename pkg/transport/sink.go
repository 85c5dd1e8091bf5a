package transport

import (
	"context"
	"encoding/json"
	"strconv"

	"mercator-hq/helios/pkg/config"
	"mercator-hq/helios/pkg/eventbus"
	"mercator-hq/helios/pkg/governance"
)

// Message is one encoded event ready for delivery.
type Message struct {
	// Key groups related messages. It is the policy id when the event has
	// one and the sequence number otherwise.
	Key   string
	Value []byte
}

// Sink delivers messages to one remote channel. A Sink is used by a single
// goroutine.
type Sink interface {
	Name() string

	// Connect establishes the connection. It is called before the first
	// send and again after every failed send.
	Connect(ctx context.Context) error

	Send(ctx context.Context, msg Message) error

	// Close releases the connection. The sink may be connected again.
	Close() error
}

// Encode converts an event into a Message.
func Encode(evt eventbus.Event) (Message, error) {
	value, err := json.Marshal(evt)
	if err != nil {
		return Message{}, err
	}
	key := evt.PolicyID
	if key == "" {
		key = strconv.FormatUint(evt.Seq, 10)
	}
	return Message{Key: key, Value: value}, nil
}

// NewSink creates the sink selected by cfg.Sink.
func NewSink(cfg config.TransportConfig) (Sink, error) {
	switch cfg.Sink {
	case "websocket":
		return NewWebSocketSink(cfg.WebSocket.URL)
	case "kafka":
		return NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	case "redis":
		return NewRedisSink(RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
	default:
		return nil, governance.NewValidationError("transport.sink", "unknown sink %q", cfg.Sink)
	}
}
