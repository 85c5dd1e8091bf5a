// Package transport pushes event bus events to remote subscribers.
//
// A Forwarder subscribes to the bus and hands each event to a Sink. When a
// send fails the forwarder drops the connection, waits a fixed delay and
// reconnects, retrying until it is stopped. The event that failed is sent
// again after reconnecting, so a subscriber sees every event that was still
// queued when the connection dropped.
//
// Sinks:
//
//   - websocket: a WebSocket client connection (github.com/coder/websocket)
//   - kafka:     a Kafka topic writer (github.com/segmentio/kafka-go)
//   - redis:     a Redis pub/sub channel (github.com/redis/go-redis/v9)
package transport
