// Package eventbus fans out engine state changes to in-process subscribers.
//
// Every published Event gets the next sequence number and is offered to each
// subscription whose kind filter matches. Each subscription owns a bounded
// queue; when it is full the oldest queued event is dropped to make room, so
// Publish never blocks on a slow consumer. Drops are counted per
// subscription and exported as a Prometheus counter.
//
// Delivery is in-process only. Nothing survives a restart.
//
// Example:
//
//	bus := eventbus.New(100, collector)
//	sub := bus.Subscribe("ws-client", eventbus.ViolationDetected)
//	defer sub.Close()
//	for evt := range sub.C() {
//	    handle(evt)
//	}
package eventbus
