package eventhandler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharpmind/trainer-hub/internal/domain/shared"
)

type collector struct {
	events []shared.Event
	err    error
}

func (c *collector) Publish(ev shared.Event) error {
	c.events = append(c.events, ev)
	return c.err
}

var at = time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)

func completed(trainerID string) shared.SessionCompletedEvent {
	return shared.SessionCompletedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventSessionCompleted, "s1", at),
		Recipients: shared.Recipients{StudentID: "student-1", TrainerID: trainerID},
		Result:     "good",
		Accuracy:   100,
	}
}

func TestTrainerMirror_CopiesAddressedEvents(t *testing.T) {
	pub := &collector{}
	h := NewTrainerMirrorHandler(pub, nil)

	require.NoError(t, h.Handle(completed("trainer-1")))
	require.Len(t, pub.events, 1)

	mirror, ok := pub.events[0].(shared.MirroredEvent)
	require.True(t, ok)
	assert.Equal(t, shared.EventType("trainer.completed"), mirror.EventType())
	assert.Equal(t, "trainer-1", mirror.TrainerID)
	assert.Equal(t, "s1", mirror.AggregateID())
	assert.Equal(t, at, mirror.OccurredAt())
	assert.Equal(t, "trainer", mirror.Payload()["audience"])
	assert.Equal(t, "session.completed", mirror.Payload()["source_event"])
	assert.Equal(t, "good", mirror.Payload()["result"])
}

func TestTrainerMirror_Skips(t *testing.T) {
	pub := &collector{}
	h := NewTrainerMirrorHandler(pub, nil)

	require.NoError(t, h.Handle(completed("")))

	mirror := shared.NewMirroredEvent(completed("trainer-1"), "trainer-1")
	require.NoError(t, h.Handle(mirror))

	assert.Empty(t, pub.events)
}

func TestTrainerMirror_PromotionEvents(t *testing.T) {
	pub := &collector{}
	h := NewTrainerMirrorHandler(pub, nil)

	require.NoError(t, h.Handle(shared.PromotionDecidedEvent{
		BaseEvent:  shared.NewBaseEvent(shared.EventPromotionDecided, "d1", at),
		Recipients: shared.Recipients{StudentID: "student-1", TrainerID: "trainer-1"},
		ToLevel:    "level-2",
		Eligible:   true,
	}))
	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventType("trainer.decided"), pub.events[0].EventType())
}

func TestTrainerMirror_PublishError(t *testing.T) {
	boom := errors.New("boom")
	h := NewTrainerMirrorHandler(&collector{err: boom}, nil)
	assert.ErrorIs(t, h.Handle(completed("trainer-1")), boom)
}
