package transport

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"mercator-hq/helios/pkg/governance"
)

// RedisOptions configures a RedisSink.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

// RedisSink publishes each message to a pub/sub channel.
type RedisSink struct {
	opts   RedisOptions
	client *redis.Client
}

// NewRedisSink creates a sink publishing to opts.Channel.
func NewRedisSink(opts RedisOptions) (*RedisSink, error) {
	if opts.Addr == "" {
		return nil, governance.NewValidationError("transport.redis.addr", "address is required")
	}
	if opts.Channel == "" {
		return nil, governance.NewValidationError("transport.redis.channel", "channel is required")
	}
	return &RedisSink{opts: opts}, nil
}

// Name implements Sink.
func (s *RedisSink) Name() string { return "redis" }

// Connect creates the client and pings the server.
func (s *RedisSink) Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:     s.opts.Addr,
		Password: s.opts.Password,
		DB:       s.opts.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return governance.NewTransportError(s.Name(), "connect", err)
	}
	s.client = client
	return nil
}

// Send publishes msg.Value. Messages published while no one is subscribed
// are lost; that is how Redis pub/sub works.
func (s *RedisSink) Send(ctx context.Context, msg Message) error {
	if s.client == nil {
		return governance.NewTransportError(s.Name(), "send", errNotConnected)
	}
	if err := s.client.Publish(ctx, s.opts.Channel, msg.Value).Err(); err != nil {
		return governance.NewTransportError(s.Name(), "send", err)
	}
	return nil
}

// Close closes the client.
func (s *RedisSink) Close() error {
	if s.client == nil {
		return nil
	}
	c := s.client
	s.client = nil
	if err := c.Close(); err != nil {
		return governance.NewTransportError(s.Name(), "close", err)
	}
	return nil
}
