package events

import (
	"fmt"
	"log"
	"sync"
	"time"
)

const queueDepth = 256

// subscription pairs a handler with a token so it can be removed later
type subscription struct {
	token   int
	handler Handler
}

// Bus distributes events to subscribers. Fire-and-forget publishes are
// delivered by a single background goroutine so publishers never block
// on subscriber execution; PublishSync delivers in the caller's
// goroutine and returns once every handler has run.
type Bus struct {
	mu          sync.Mutex
	nextToken   int
	subscribers map[EventType][]subscription
	wildcards   []subscription

	queue    chan Event
	done     chan struct{}
	running  bool
	inFlight sync.WaitGroup

	dlMu        sync.Mutex
	deadLetters []Event
}

// NewBus creates a stopped event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[EventType][]subscription),
	}
}

// Subscribe registers a handler for one event type and returns a token
// for Unsubscribe.
func (b *Bus) Subscribe(eventType EventType, handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	b.subscribers[eventType] = append(b.subscribers[eventType], subscription{b.nextToken, handler})
	return b.nextToken
}

// SubscribeAll registers a wildcard handler invoked for every event,
// after the type-specific handlers.
func (b *Bus) SubscribeAll(handler Handler) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextToken++
	b.wildcards = append(b.wildcards, subscription{b.nextToken, handler})
	return b.nextToken
}

// Unsubscribe removes a previously registered handler by token
func (b *Bus) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		b.subscribers[eventType] = removeToken(subs, token)
	}
	b.wildcards = removeToken(b.wildcards, token)
}

func removeToken(subs []subscription, token int) []subscription {
	for i, sub := range subs {
		if sub.token == token {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Start launches the delivery worker. Calling Start on a running bus
// is a no-op.
func (b *Bus) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return
	}
	b.queue = make(chan Event, queueDepth)
	b.done = make(chan struct{})
	b.running = true

	go b.worker(b.queue, b.done)
}

func (b *Bus) worker(queue <-chan Event, done chan<- struct{}) {
	defer close(done)
	for event := range queue {
		b.deliver(event)
	}
}

// Stop waits for in-flight publishers, closes the queue, and waits for
// the worker to drain queued events, up to the join timeout. Stopping a
// stopped bus is a no-op. Events still queued after the timeout are
// abandoned with the worker.
func (b *Bus) Stop(joinTimeout time.Duration) {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return
	}
	b.running = false
	queue := b.queue
	done := b.done
	b.mu.Unlock()

	// Publishers that passed the running check before we flipped it may
	// still be sending; the queue must not close under them.
	b.inFlight.Wait()
	close(queue)

	select {
	case <-done:
	case <-time.After(joinTimeout):
		log.Printf("[bus] stop timed out after %v with events still in flight", joinTimeout)
	}
}

// Publish enqueues an event for background delivery. It returns an
// error when the bus is not running.
func (b *Bus) Publish(event Event) error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return fmt.Errorf("event bus is not running")
	}
	b.inFlight.Add(1)
	queue := b.queue
	b.mu.Unlock()

	queue <- event
	b.inFlight.Done()
	return nil
}

// PublishSync delivers an event in the caller's goroutine, returning
// once all handlers have run. Usable whether or not the worker runs.
func (b *Bus) PublishSync(event Event) {
	b.deliver(event)
}

// deliver runs type-specific handlers before wildcard handlers, each in
// subscription order. A failing handler sends the event to the
// dead-letter list exactly once and never prevents later handlers from
// running.
func (b *Bus) deliver(event Event) {
	b.mu.Lock()
	handlers := make([]Handler, 0, len(b.subscribers[event.Type])+len(b.wildcards))
	for _, sub := range b.subscribers[event.Type] {
		handlers = append(handlers, sub.handler)
	}
	for _, sub := range b.wildcards {
		handlers = append(handlers, sub.handler)
	}
	b.mu.Unlock()

	failed := false
	for _, handler := range handlers {
		if err := b.invoke(handler, event); err != nil {
			log.Printf("[bus] handler failed for %s: %v", event.Type, err)
			failed = true
		}
	}
	if failed {
		b.dlMu.Lock()
		b.deadLetters = append(b.deadLetters, event)
		b.dlMu.Unlock()
	}
}

func (b *Bus) invoke(handler Handler, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(event)
}

// DeadLetters returns a copy of the dead-letter list
func (b *Bus) DeadLetters() []Event {
	b.dlMu.Lock()
	defer b.dlMu.Unlock()

	out := make([]Event, len(b.deadLetters))
	copy(out, b.deadLetters)
	return out
}

// ClearDeadLetters empties the dead-letter list
func (b *Bus) ClearDeadLetters() {
	b.dlMu.Lock()
	defer b.dlMu.Unlock()
	b.deadLetters = nil
}
