package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
	"github.com/sharpmind/trainer-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER
// ══════════════════════════════════════════════════════════════════════════════

// Dispatcher registers named handlers on a bus and runs each delivery with
// panic recovery and retries. Deliveries that still fail are parked in a
// dead letter queue where an operator can inspect and retry them.
type Dispatcher struct {
	bus         shared.EventSubscriber
	retrier     *retry.Retrier
	timeout     time.Duration
	deadLetterQ *DeadLetterQueue
	metrics     *DispatcherMetrics
	logger      *slog.Logger
	now         func() time.Time

	mu       sync.RWMutex
	handlers map[string]shared.EventHandler
}

// DispatcherConfig contains configuration for the Dispatcher.
type DispatcherConfig struct {
	// Bus delivers events to the registered handlers.
	Bus shared.EventSubscriber

	// Retrier defaults to three attempts with a short backoff.
	// Every handler error is retried unless wrapped with retry.Permanent.
	Retrier *retry.Retrier

	// Timeout bounds all attempts of one delivery.
	Timeout time.Duration

	// DeadLetterQueueSize is the max size of the DLQ.
	DeadLetterQueueSize int

	Logger *slog.Logger
}

// DefaultDispatcherConfig returns sensible defaults.
func DefaultDispatcherConfig(bus shared.EventSubscriber) DispatcherConfig {
	return DispatcherConfig{
		Bus:                 bus,
		Timeout:             30 * time.Second,
		DeadLetterQueueSize: 1000,
	}
}

// NewDispatcher creates a new event dispatcher.
func NewDispatcher(config DispatcherConfig) *Dispatcher {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Retrier == nil {
		config.Retrier = retry.New(
			retry.WithMaxAttempts(3),
			retry.WithInitialDelay(100*time.Millisecond),
			retry.WithMaxDelay(5*time.Second),
			retry.WithRetryIf(func(error) bool { return true }),
		)
	}
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Dispatcher{
		bus:         config.Bus,
		retrier:     config.Retrier,
		timeout:     config.Timeout,
		deadLetterQ: NewDeadLetterQueue(config.DeadLetterQueueSize),
		metrics:     NewDispatcherMetrics(),
		logger:      config.Logger.With("component", "dispatcher"),
		now:         time.Now,
		handlers:    make(map[string]shared.EventHandler),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER REGISTRATION
// ══════════════════════════════════════════════════════════════════════════════

// Register subscribes handler under a unique name. With no event types the
// handler receives every event.
func (d *Dispatcher) Register(name string, handler shared.EventHandler, eventTypes ...shared.EventType) error {
	d.mu.Lock()
	if _, exists := d.handlers[name]; exists {
		d.mu.Unlock()
		return fmt.Errorf("handler %s already registered", name)
	}
	d.handlers[name] = handler
	d.mu.Unlock()

	wrapped := func(event shared.Event) error {
		return d.deliver(context.Background(), name, handler, event)
	}

	if len(eventTypes) == 0 {
		return d.bus.SubscribeAll(wrapped)
	}
	for _, et := range eventTypes {
		if err := d.bus.Subscribe(et, wrapped); err != nil {
			return fmt.Errorf("subscribe %s to %s: %w", name, et, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DELIVERY
// ══════════════════════════════════════════════════════════════════════════════

func (d *Dispatcher) deliver(ctx context.Context, name string, handler shared.EventHandler, event shared.Event) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	start := d.now()
	attempts := 0
	err := d.retrier.Do(ctx, func(context.Context) error {
		attempts++
		if err := safeCall(handler, event); err != nil {
			if errors.Is(err, ErrHandlerPanic) {
				return retry.Permanent(err)
			}
			return err
		}
		return nil
	})
	d.metrics.RecordExecution(name, d.now().Sub(start), err == nil, attempts > 1)

	if err == nil {
		return nil
	}

	d.logger.Error("event handler failed",
		"handler", name,
		"event_type", event.EventType(),
		"aggregate_id", event.AggregateID(),
		"attempts", attempts,
		"error", err,
	)
	d.deadLetterQ.Add(DeadLetterEntry{
		Event:       event,
		HandlerName: name,
		Error:       err,
		Attempts:    attempts,
		FailedAt:    d.now(),
	})
	return fmt.Errorf("handler %s failed after %d attempts: %w", name, attempts, err)
}

// RetryDeadLetters re-delivers every parked entry. Entries that fail again
// go back to the queue.
func (d *Dispatcher) RetryDeadLetters(ctx context.Context) (succeeded, failed int) {
	for _, entry := range d.deadLetterQ.Drain() {
		if ctx.Err() != nil {
			d.deadLetterQ.Add(entry)
			failed++
			continue
		}

		d.mu.RLock()
		handler, ok := d.handlers[entry.HandlerName]
		d.mu.RUnlock()
		if !ok {
			failed++
			continue
		}

		if err := d.deliver(ctx, entry.HandlerName, handler, entry.Event); err != nil {
			failed++
			continue
		}
		succeeded++
	}
	return succeeded, failed
}

// DeadLetters returns the parked deliveries, oldest first.
func (d *Dispatcher) DeadLetters() []DeadLetterEntry {
	return d.deadLetterQ.Entries()
}

// Metrics returns dispatcher metrics.
func (d *Dispatcher) Metrics() *DispatcherMetrics {
	return d.metrics
}

// ══════════════════════════════════════════════════════════════════════════════
// DEAD LETTER QUEUE
// ══════════════════════════════════════════════════════════════════════════════

// DeadLetterEntry represents a failed delivery.
type DeadLetterEntry struct {
	Event       shared.Event
	HandlerName string
	Error       error
	Attempts    int
	FailedAt    time.Time
}

// DeadLetterQueue stores deliveries that failed processing.
type DeadLetterQueue struct {
	mu      sync.Mutex
	entries []DeadLetterEntry
	maxSize int
}

// NewDeadLetterQueue creates a new dead letter queue.
func NewDeadLetterQueue(maxSize int) *DeadLetterQueue {
	if maxSize <= 0 {
		maxSize = 1000
	}
	return &DeadLetterQueue{maxSize: maxSize}
}

// Add appends an entry, dropping the oldest at capacity.
func (q *DeadLetterQueue) Add(entry DeadLetterEntry) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.maxSize {
		q.entries = q.entries[1:]
	}
	q.entries = append(q.entries, entry)
}

// Entries returns a copy of all entries.
func (q *DeadLetterQueue) Entries() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	result := make([]DeadLetterEntry, len(q.entries))
	copy(result, q.entries)
	return result
}

// Drain removes and returns all entries.
func (q *DeadLetterQueue) Drain() []DeadLetterEntry {
	q.mu.Lock()
	defer q.mu.Unlock()

	entries := q.entries
	q.entries = nil
	return entries
}

// Size returns the current queue size.
func (q *DeadLetterQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// ══════════════════════════════════════════════════════════════════════════════
// DISPATCHER METRICS
// ══════════════════════════════════════════════════════════════════════════════

// DispatcherMetrics tracks handler outcomes.
type DispatcherMetrics struct {
	mu             sync.Mutex
	deliveries     int64
	failures       int64
	retrySuccesses int64
	totalDuration  time.Duration
	failuresByName map[string]int64
}

// NewDispatcherMetrics creates new dispatcher metrics.
func NewDispatcherMetrics() *DispatcherMetrics {
	return &DispatcherMetrics{failuresByName: make(map[string]int64)}
}

// RecordExecution records one delivery with all its attempts.
func (m *DispatcherMetrics) RecordExecution(handler string, duration time.Duration, success, retried bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deliveries++
	m.totalDuration += duration
	switch {
	case !success:
		m.failures++
		m.failuresByName[handler]++
	case retried:
		m.retrySuccesses++
	}
}

// DispatcherMetricsSnapshot is a point-in-time view of DispatcherMetrics.
type DispatcherMetricsSnapshot struct {
	Deliveries      int64            `json:"deliveries"`
	Failures        int64            `json:"failures"`
	RetrySuccesses  int64            `json:"retry_successes"`
	AverageDuration time.Duration    `json:"average_duration"`
	FailuresByName  map[string]int64 `json:"failures_by_handler"`
	FailingHandlers []string         `json:"failing_handlers"`
}

// Snapshot returns a point-in-time snapshot.
func (m *DispatcherMetrics) Snapshot() DispatcherMetricsSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := DispatcherMetricsSnapshot{
		Deliveries:      m.deliveries,
		Failures:        m.failures,
		RetrySuccesses:  m.retrySuccesses,
		FailuresByName:  make(map[string]int64, len(m.failuresByName)),
		FailingHandlers: make([]string, 0, len(m.failuresByName)),
	}
	if m.deliveries > 0 {
		s.AverageDuration = m.totalDuration / time.Duration(m.deliveries)
	}
	for name, n := range m.failuresByName {
		s.FailuresByName[name] = n
		s.FailingHandlers = append(s.FailingHandlers, name)
	}
	sort.Strings(s.FailingHandlers)
	return s
}
