package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestFakeAfterFuncFiresOnlyWhenDeadlineReached(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	require.Equal(t, 0, fired)

	c.Advance(time.Second)
	require.Equal(t, 1, fired)

	c.Advance(time.Minute)
	require.Equal(t, 1, fired, "one-shot timers fire once")
	require.Equal(t, epoch.Add(time.Minute+3*time.Second), c.Now())
}

func TestFakeTimerStopAndReset(t *testing.T) {
	c := Fake(epoch)
	fired := 0
	timer := c.AfterFunc(3*time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	require.True(t, timer.Reset(3*time.Second))
	c.Advance(2 * time.Second)
	require.Equal(t, 0, fired, "reset pushed the deadline out")
	c.Advance(time.Second)
	require.Equal(t, 1, fired)

	timer.Reset(time.Second)
	require.True(t, timer.Stop())
	c.Advance(5 * time.Second)
	require.Equal(t, 1, fired)
	require.Zero(t, c.PendingTimers())
}

func TestFakeCallbackSeesDeadlineTime(t *testing.T) {
	c := Fake(epoch)
	var seen time.Time
	c.AfterFunc(time.Second, func() { seen = c.Now() })

	c.Advance(10 * time.Second)
	require.Equal(t, epoch.Add(time.Second), seen)
}

func TestFakeTickerDropsWhenUnread(t *testing.T) {
	c := Fake(epoch)
	ticker := c.NewTicker(30 * time.Second)
	defer ticker.Stop()

	c.Advance(90 * time.Second)
	select {
	case tick := <-ticker.C:
		require.Equal(t, epoch.Add(30*time.Second), tick)
	default:
		t.Fatal("expected a buffered tick")
	}
	select {
	case <-ticker.C:
		t.Fatal("ticks beyond the buffer should be dropped")
	default:
	}
}
