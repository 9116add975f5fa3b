// Package messaging implements the notification channel for session and
// promotion events. It provides both in-memory and Redis-based event buses.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// IN-MEMORY EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// InMemoryEventBus delivers events to handlers registered in this process.
type InMemoryEventBus struct {
	mu          sync.RWMutex
	handlers    map[shared.EventType][]shared.EventHandler
	allHandlers []shared.EventHandler
	asyncMode   bool
	workerPool  chan struct{}
	logger      *slog.Logger
	metrics     *EventBusMetrics
	closed      bool
	closeCh     chan struct{}
	wg          sync.WaitGroup
}

// InMemoryEventBusConfig contains configuration for InMemoryEventBus.
type InMemoryEventBusConfig struct {
	// AsyncMode runs handlers on a bounded worker pool instead of the
	// publishing goroutine.
	AsyncMode bool

	// WorkerPoolSize bounds concurrent handlers in async mode.
	WorkerPoolSize int

	Logger *slog.Logger
}

// DefaultInMemoryEventBusConfig returns sensible defaults.
func DefaultInMemoryEventBusConfig() InMemoryEventBusConfig {
	return InMemoryEventBusConfig{
		AsyncMode:      true,
		WorkerPoolSize: 10,
	}
}

// NewInMemoryEventBus creates a new in-memory event bus.
func NewInMemoryEventBus(config InMemoryEventBusConfig) *InMemoryEventBus {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WorkerPoolSize <= 0 {
		config.WorkerPoolSize = 10
	}

	return &InMemoryEventBus{
		handlers:   make(map[shared.EventType][]shared.EventHandler),
		asyncMode:  config.AsyncMode,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		logger:     config.Logger.With("component", "event_bus"),
		metrics:    &EventBusMetrics{},
		closeCh:    make(chan struct{}),
	}
}

// Subscribe registers a handler for a specific event type.
func (b *InMemoryEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	return nil
}

// SubscribeAll registers a handler for all events.
func (b *InMemoryEventBus) SubscribeAll(handler shared.EventHandler) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrEventBusClosed
	}
	b.allHandlers = append(b.allHandlers, handler)
	return nil
}

// Publish sends an event to all subscribed handlers. Handler failures are
// logged and counted; they are never returned to the publisher.
func (b *InMemoryEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return ErrEventBusClosed
	}
	handlers := make([]shared.EventHandler, 0, len(b.handlers[event.EventType()])+len(b.allHandlers))
	handlers = append(handlers, b.handlers[event.EventType()]...)
	handlers = append(handlers, b.allHandlers...)
	if b.asyncMode {
		b.wg.Add(len(handlers))
	}
	b.mu.RUnlock()

	b.metrics.published.Add(1)

	for _, handler := range handlers {
		if b.asyncMode {
			go b.executeAsync(event, handler)
			continue
		}
		b.execute(event, handler)
	}
	return nil
}

func (b *InMemoryEventBus) executeAsync(event shared.Event, handler shared.EventHandler) {
	defer b.wg.Done()

	select {
	case b.workerPool <- struct{}{}:
		defer func() { <-b.workerPool }()
	case <-b.closeCh:
		b.metrics.dropped.Add(1)
		return
	}
	b.execute(event, handler)
}

func (b *InMemoryEventBus) execute(event shared.Event, handler shared.EventHandler) {
	start := time.Now()
	err := safeCall(handler, event)
	b.metrics.record(err)

	if err != nil {
		b.logger.Error("event handler failed",
			"event_type", event.EventType(),
			"aggregate_id", event.AggregateID(),
			"duration", time.Since(start),
			"error", err,
		)
	}
}

// safeCall turns a handler panic into ErrHandlerPanic.
func safeCall(handler shared.EventHandler, event shared.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return handler(event)
}

// Drain waits until every handler dispatched so far has returned.
func (b *InMemoryEventBus) Drain() {
	b.wg.Wait()
}

// Close stops accepting events and waits for in-flight handlers.
func (b *InMemoryEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.wg.Wait()
	close(b.closeCh)
	b.logger.Info("event bus closed")
	return nil
}

// Metrics returns the bus counters.
func (b *InMemoryEventBus) Metrics() *EventBusMetrics {
	return b.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// REDIS EVENT BUS
// ══════════════════════════════════════════════════════════════════════════════

// DefaultChannel is the Pub/Sub channel shared by all instances.
const DefaultChannel = "trainer-hub:events"

// RedisClient is the Pub/Sub subset the bus needs.
type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) error
	Subscribe(ctx context.Context, channels ...string) (<-chan RedisMessage, error)
	Close() error
}

// RedisMessage represents a message received from Redis Pub/Sub.
type RedisMessage struct {
	Channel string
	Payload string
	Err     error
}

// RedisEventBus fans events out to every instance through Redis Pub/Sub.
// Local handlers see local events immediately; events from other instances
// arrive as *RemoteEvent.
type RedisEventBus struct {
	client     RedisClient
	localBus   *InMemoryEventBus
	channel    string
	instanceID string
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	closed     bool
}

// RedisEventBusConfig contains configuration for RedisEventBus.
type RedisEventBusConfig struct {
	Client RedisClient

	// Channel defaults to DefaultChannel.
	Channel string

	// InstanceID filters self-published events. Defaults to a random UUID.
	InstanceID string

	LocalBusConfig InMemoryEventBusConfig
	Logger         *slog.Logger
}

// NewRedisEventBus creates the bus and starts the subscription loop.
func NewRedisEventBus(config RedisEventBusConfig) (*RedisEventBus, error) {
	if config.Client == nil {
		return nil, errors.New("redis client is required")
	}
	if config.Channel == "" {
		config.Channel = DefaultChannel
	}
	if config.InstanceID == "" {
		config.InstanceID = uuid.NewString()
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.LocalBusConfig.Logger == nil {
		config.LocalBusConfig.Logger = config.Logger
	}

	ctx, cancel := context.WithCancel(context.Background())
	bus := &RedisEventBus{
		client:     config.Client,
		localBus:   NewInMemoryEventBus(config.LocalBusConfig),
		channel:    config.Channel,
		instanceID: config.InstanceID,
		logger:     config.Logger.With("component", "redis_event_bus"),
		ctx:        ctx,
		cancel:     cancel,
	}

	messages, err := bus.client.Subscribe(ctx, bus.channel)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe %s: %w", bus.channel, err)
	}
	bus.wg.Add(1)
	go func() {
		defer bus.wg.Done()
		bus.subscriptionLoop(messages)
	}()

	return bus, nil
}

// Subscribe registers a handler for a specific event type.
func (b *RedisEventBus) Subscribe(eventType shared.EventType, handler shared.EventHandler) error {
	return b.localBus.Subscribe(eventType, handler)
}

// SubscribeAll registers a handler for all events.
func (b *RedisEventBus) SubscribeAll(handler shared.EventHandler) error {
	return b.localBus.SubscribeAll(handler)
}

// Publish sends the event to Redis and to local handlers. A Redis failure
// is returned after local delivery.
func (b *RedisEventBus) Publish(event shared.Event) error {
	if event == nil {
		return errors.New("event cannot be nil")
	}

	b.mu.RLock()
	closed := b.closed
	b.mu.RUnlock()
	if closed {
		return ErrEventBusClosed
	}

	data, err := json.Marshal(newEnvelope(b.instanceID, event))
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pubErr := b.client.Publish(b.ctx, b.channel, string(data))
	if pubErr != nil {
		b.logger.Error("failed to publish to redis", "event_type", event.EventType(), "error", pubErr)
	}

	if err := b.localBus.Publish(event); err != nil {
		return err
	}
	if pubErr != nil {
		return fmt.Errorf("redis publish: %w", pubErr)
	}
	return nil
}

func (b *RedisEventBus) subscriptionLoop(messages <-chan RedisMessage) {
	for {
		select {
		case <-b.ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			if msg.Err != nil {
				b.logger.Error("redis subscription error", "error", msg.Err)
				continue
			}
			b.handleRedisMessage(msg)
		}
	}
}

func (b *RedisEventBus) handleRedisMessage(msg RedisMessage) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.logger.Error("failed to unmarshal event", "error", err)
		return
	}
	if env.InstanceID == b.instanceID {
		return
	}

	if err := b.localBus.Publish(env.remote()); err != nil {
		b.logger.Error("failed to process remote event", "event_type", env.EventType, "error", err)
	}
}

// Close stops the subscription and the local bus.
func (b *RedisEventBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	b.wg.Wait()

	if err := b.localBus.Close(); err != nil {
		b.logger.Error("failed to close local bus", "error", err)
	}
	return b.client.Close()
}

// Metrics returns the local bus counters.
func (b *RedisEventBus) Metrics() *EventBusMetrics {
	return b.localBus.Metrics()
}

// ══════════════════════════════════════════════════════════════════════════════
// ENVELOPE
// ══════════════════════════════════════════════════════════════════════════════

type envelope struct {
	InstanceID  string                 `json:"instance_id"`
	EventType   shared.EventType       `json:"event_type"`
	AggregateID string                 `json:"aggregate_id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Payload     map[string]interface{} `json:"payload"`
}

func newEnvelope(instanceID string, event shared.Event) envelope {
	return envelope{
		InstanceID:  instanceID,
		EventType:   event.EventType(),
		AggregateID: event.AggregateID(),
		OccurredAt:  event.OccurredAt(),
		Payload:     event.Payload(),
	}
}

func (e envelope) remote() *RemoteEvent {
	return &RemoteEvent{
		eventType:   e.EventType,
		aggregateID: e.AggregateID,
		occurredAt:  e.OccurredAt,
		payload:     e.Payload,
	}
}

// RemoteEvent is an event published by another instance. Its payload is the
// decoded JSON of the original event.
type RemoteEvent struct {
	eventType   shared.EventType
	aggregateID string
	occurredAt  time.Time
	payload     map[string]interface{}
}

func (e *RemoteEvent) EventType() shared.EventType { return e.eventType }
func (e *RemoteEvent) AggregateID() string { return e.aggregateID }
func (e *RemoteEvent) OccurredAt() time.Time { return e.occurredAt }
func (e *RemoteEvent) Payload() map[string]interface{} { return e.payload }

// ══════════════════════════════════════════════════════════════════════════════
// METRICS
// ══════════════════════════════════════════════════════════════════════════════

// EventBusMetrics counts bus traffic.
type EventBusMetrics struct {
	published atomic.Int64
	handled   atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

func (m *EventBusMetrics) record(err error) {
	m.handled.Add(1)
	if err != nil {
		m.failed.Add(1)
	}
}

// EventBusMetricsSnapshot is a point-in-time copy of the counters.
type EventBusMetricsSnapshot struct {
	Published   int64   `json:"published"`
	Handled     int64   `json:"handled"`
	Failed      int64   `json:"failed"`
	Dropped     int64   `json:"dropped"`
	SuccessRate float64 `json:"success_rate"`
}

// Snapshot returns the current counters.
func (m *EventBusMetrics) Snapshot() EventBusMetricsSnapshot {
	s := EventBusMetricsSnapshot{
		Published:   m.published.Load(),
		Handled:     m.handled.Load(),
		Failed:      m.failed.Load(),
		Dropped:     m.dropped.Load(),
		SuccessRate: 1,
	}
	if s.Handled > 0 {
		s.SuccessRate = float64(s.Handled-s.Failed) / float64(s.Handled)
	}
	return s
}

// ══════════════════════════════════════════════════════════════════════════════
// ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrEventBusClosed is returned when operations are attempted on a closed bus.
	ErrEventBusClosed = errors.New("event bus is closed")

	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panicked")
)
