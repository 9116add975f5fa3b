package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

func pausedEvent(id string) shared.SessionPausedEvent {
	return shared.SessionPausedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventSessionPaused, id, time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)),
		Recipients: shared.Recipients{StudentID: "student-1", TrainerID: "trainer-1"},
		Reason:     "break",
		Remaining:  120,
	}
}

func TestInMemoryEventBus_Sync(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	var typed, all []string
	require.NoError(t, bus.Subscribe(shared.EventSessionPaused, func(ev shared.Event) error {
		typed = append(typed, ev.AggregateID())
		return nil
	}))
	require.NoError(t, bus.SubscribeAll(func(ev shared.Event) error {
		all = append(all, string(ev.EventType()))
		return errors.New("handler failure is not the publisher's problem")
	}))

	require.NoError(t, bus.Publish(pausedEvent("s1")))
	require.NoError(t, bus.Publish(shared.SessionResumedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventSessionResumed, "s1", time.Now()),
	}))

	assert.Equal(t, []string{"s1"}, typed)
	assert.Equal(t, []string{"session.paused", "session.resumed"}, all)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.Published)
	assert.Equal(t, int64(3), snap.Handled)
	assert.Equal(t, int64(2), snap.Failed)
}

func TestInMemoryEventBus_RecoversPanics(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{})
	defer bus.Close()

	calls := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { panic("bad handler") }))
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.Publish(pausedEvent("s1")))
	assert.Equal(t, 1, calls)
	assert.Equal(t, int64(1), bus.Metrics().Snapshot().Failed)

	err := safeCall(func(shared.Event) error { panic("x") }, pausedEvent("s1"))
	assert.ErrorIs(t, err, ErrHandlerPanic)
}

func TestInMemoryEventBus_AsyncDrainAndClose(t *testing.T) {
	bus := NewInMemoryEventBus(InMemoryEventBusConfig{AsyncMode: true, WorkerPoolSize: 2})

	var mu sync.Mutex
	seen := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		mu.Lock()
		seen++
		mu.Unlock()
		return nil
	}))

	for i := 0; i < 20; i++ {
		require.NoError(t, bus.Publish(pausedEvent("s1")))
	}
	bus.Drain()

	mu.Lock()
	assert.Equal(t, 20, seen)
	mu.Unlock()

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(pausedEvent("s1")), ErrEventBusClosed)
	assert.ErrorIs(t, bus.SubscribeAll(func(shared.Event) error { return nil }), ErrEventBusClosed)
	assert.NoError(t, bus.Close())
}

// ─────────────────────────────────────────────────────────────────────────────
// Redis bus
// ─────────────────────────────────────────────────────────────────────────────

// hub is an in-process stand-in for a Redis server's Pub/Sub.
type hub struct {
	mu   sync.Mutex
	subs []chan RedisMessage
}

type hubClient struct {
	hub        *hub
	publishErr error
}

func (c *hubClient) Publish(_ context.Context, channel string, message interface{}) error {
	if c.publishErr != nil {
		return c.publishErr
	}
	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	for _, ch := range c.hub.subs {
		ch <- RedisMessage{Channel: channel, Payload: message.(string)}
	}
	return nil
}

func (c *hubClient) Subscribe(context.Context, ...string) (<-chan RedisMessage, error) {
	ch := make(chan RedisMessage, 16)
	c.hub.mu.Lock()
	c.hub.subs = append(c.hub.subs, ch)
	c.hub.mu.Unlock()
	return ch, nil
}

func (c *hubClient) Close() error { return nil }

func TestRedisEventBus_FansOutToOtherInstances(t *testing.T) {
	h := &hub{}
	a, err := NewRedisEventBus(RedisEventBusConfig{Client: &hubClient{hub: h}, InstanceID: "a"})
	require.NoError(t, err)
	defer a.Close()
	b, err := NewRedisEventBus(RedisEventBusConfig{Client: &hubClient{hub: h}, InstanceID: "b"})
	require.NoError(t, err)
	defer b.Close()

	localA := make(chan shared.Event, 4)
	remoteB := make(chan shared.Event, 4)
	require.NoError(t, a.SubscribeAll(func(ev shared.Event) error {
		localA <- ev
		return nil
	}))
	require.NoError(t, b.SubscribeAll(func(ev shared.Event) error {
		remoteB <- ev
		return nil
	}))

	require.NoError(t, a.Publish(pausedEvent("s9")))

	select {
	case ev := <-localA:
		_, ok := ev.(shared.SessionPausedEvent)
		assert.True(t, ok, "local handlers get the original event")
	case <-time.After(2 * time.Second):
		t.Fatal("local handler not called")
	}

	select {
	case ev := <-remoteB:
		remote, ok := ev.(*RemoteEvent)
		require.True(t, ok)
		assert.Equal(t, shared.EventSessionPaused, remote.EventType())
		assert.Equal(t, "s9", remote.AggregateID())
		assert.Equal(t, "break", remote.Payload()["reason"])
		assert.Equal(t, "trainer-1", remote.Payload()["trainer_id"])
	case <-time.After(2 * time.Second):
		t.Fatal("remote instance did not receive the event")
	}

	select {
	case ev := <-localA:
		t.Fatalf("instance a received its own event twice: %v", ev.EventType())
	case <-time.After(50 * time.Millisecond):
	}
}

func TestRedisEventBus_PublishFailureStillDeliversLocally(t *testing.T) {
	boom := errors.New("connection refused")
	bus, err := NewRedisEventBus(RedisEventBusConfig{
		Client:         &hubClient{hub: &hub{}, publishErr: boom},
		LocalBusConfig: InMemoryEventBusConfig{},
	})
	require.NoError(t, err)
	defer bus.Close()

	delivered := 0
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		delivered++
		return nil
	}))

	err = bus.Publish(pausedEvent("s1"))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, delivered)

	_, err = NewRedisEventBus(RedisEventBusConfig{})
	assert.Error(t, err)
}
