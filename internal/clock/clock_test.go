package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManual_AdvanceFiresDueTimersInOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	var fired []string
	c.AfterFunc(2*time.Second, func() { fired = append(fired, "second") })
	c.AfterFunc(1*time.Second, func() { fired = append(fired, "first") })
	c.AfterFunc(10*time.Second, func() { fired = append(fired, "late") })

	c.Advance(5 * time.Second)

	require.Equal(t, []string{"first", "second"}, fired)
	require.Equal(t, start.Add(5*time.Second), c.Now())
	require.Equal(t, 1, c.Pending())
}

func TestManual_StoppedTimerNeverFires(t *testing.T) {
	c := NewManual(time.Now())
	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())

	c.Advance(time.Minute)
	require.False(t, fired)
}
