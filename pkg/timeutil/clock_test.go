package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_FiresTimersInOrder(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	var fired []string
	clock.AfterFunc(20*time.Second, func() { fired = append(fired, "b") })
	clock.AfterFunc(10*time.Second, func() { fired = append(fired, "a") })
	clock.AfterFunc(time.Minute, func() { fired = append(fired, "c") })

	clock.Advance(30 * time.Second)

	assert.Equal(t, []string{"a", "b"}, fired)
	assert.Equal(t, start.Add(30*time.Second), clock.Now())
	assert.Equal(t, 1, clock.PendingTimers())
}

func TestManualClock_StoppedTimerDoesNotFire(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))

	fired := false
	timer := clock.AfterFunc(time.Second, func() { fired = true })

	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop())

	clock.Advance(time.Minute)
	assert.False(t, fired)
}

func TestManualClock_CallbackSeesDeadlineTime(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := NewManualClock(start)

	var seen time.Time
	clock.AfterFunc(5*time.Second, func() { seen = clock.Now() })
	clock.Advance(time.Minute)

	assert.Equal(t, start.Add(5*time.Second), seen)
}

func TestManualClock_TimerArmedDuringAdvance(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))

	count := 0
	var rearm func()
	rearm = func() {
		count++
		clock.AfterFunc(10*time.Second, rearm)
	}
	clock.AfterFunc(10*time.Second, rearm)

	clock.Advance(35 * time.Second)
	assert.Equal(t, 3, count)
}

func TestDurationHelpers(t *testing.T) {
	assert.Equal(t, 1500*time.Millisecond, FromSeconds(1.5))
	assert.Equal(t, 2.0, Seconds(2*time.Second))
	assert.Equal(t, 3*time.Second, MaxDuration(time.Second, 3*time.Second))
}
