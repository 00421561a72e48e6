package rate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-robotics/rclgo/shutdown"
)

func TestSleepForElapsesFullDuration(t *testing.T) {
	station := shutdown.Default()
	start := time.Now()
	ok := SleepFor(station, 30*time.Millisecond)
	assert.True(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestSleepForWokenByShutdown(t *testing.T) {
	station := shutdown.New(nil)

	go func() {
		time.Sleep(200 * time.Millisecond)
		station.Shutdown()
	}()

	start := time.Now()
	ok := SleepFor(station, time.Second)
	elapsed := time.Since(start)

	assert.False(t, ok, "interrupted sleep must report false")
	assert.Less(t, elapsed, 300*time.Millisecond, "shutdown must wake the sleeper promptly")
}

func TestRateSleepsBetweenTicks(t *testing.T) {
	station := shutdown.Default()
	r := New(station, 20*time.Millisecond)

	// first tick is immediate (token bucket starts full)
	require.True(t, r.Sleep())
	start := time.Now()
	require.True(t, r.Sleep())
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
}
