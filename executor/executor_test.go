package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfarer-robotics/rclgo/callbackgroup"
	"github.com/wayfarer-robotics/rclgo/intraprocess"
	"github.com/wayfarer-robotics/rclgo/middleware/inmem"
	"github.com/wayfarer-robotics/rclgo/node"
	"github.com/wayfarer-robotics/rclgo/shutdown"
)

// TestSingleThreadedTimerAndSubscriptionOrdering drives the literal
// single-threaded scenario: one timer at 100ms and one subscription on
// topic "t", publishing three messages at t=0, 50ms, 150ms. The expected
// callback order is sub(m1), sub(m2), timer, sub(m3).
func TestSingleThreadedTimerAndSubscriptionOrdering(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	var mu sync.Mutex
	var order []string

	_, err = n.CreateSubscription("t", "std_msgs/String", false, nil, func(msg any) {
		mu.Lock()
		order = append(order, msg.(string))
		mu.Unlock()
	})
	require.NoError(t, err)

	_, err = n.CreateTimer(100*time.Millisecond, nil, func() {
		mu.Lock()
		order = append(order, "timer")
		mu.Unlock()
	})
	require.NoError(t, err)

	pub, err := n.CreatePublisher("t", "std_msgs/String", nil)
	require.NoError(t, err)

	exec := NewSingleThreadedExecutor(mw, station, nil)
	exec.AddNode(n, false)

	go func() {
		require.NoError(t, pub.Publish("m1"))
		time.Sleep(50 * time.Millisecond)
		require.NoError(t, pub.Publish("m2"))
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, pub.Publish("m3"))
		// stop before the timer's second period comes due at ~200ms
		time.Sleep(20 * time.Millisecond)
		station.Shutdown()
	}()

	require.NoError(t, exec.Spin())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"m1", "m2", "timer", "m3"}, order)
}

// TestMultiThreadedMutualExclusionAndDelivery drives the literal
// multi-threaded scenario: four workers, one MutuallyExclusive group
// holding two subscriptions, 100 messages interleaved across both topics.
// No two callbacks from the group overlap and all 100 are delivered.
func TestMultiThreadedMutualExclusionAndDelivery(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	group := n.CreateCallbackGroup(callbackgroup.MutuallyExclusive)

	var inFlight int32
	var overlapped atomic.Bool
	var delivered int64

	onMsg := func(any) {
		if atomic.AddInt32(&inFlight, 1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		atomic.AddInt64(&delivered, 1)
	}

	_, err = n.CreateSubscription("a", "std_msgs/String", false, group, onMsg)
	require.NoError(t, err)
	_, err = n.CreateSubscription("b", "std_msgs/String", false, group, onMsg)
	require.NoError(t, err)

	pubA, err := n.CreatePublisher("a", "std_msgs/String", nil)
	require.NoError(t, err)
	pubB, err := n.CreatePublisher("b", "std_msgs/String", nil)
	require.NoError(t, err)

	exec, err := NewMultiThreadedExecutor(mw, station, nil, 4)
	require.NoError(t, err)
	exec.AddNode(n, false)

	go func() {
		for i := 0; i < 50; i++ {
			require.NoError(t, pubA.Publish("x"))
			require.NoError(t, pubB.Publish("y"))
		}
		deadline := time.Now().Add(2 * time.Second)
		for atomic.LoadInt64(&delivered) < 100 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		station.Shutdown()
	}()

	require.NoError(t, exec.Spin())
	require.NoError(t, exec.Close())

	assert.False(t, overlapped.Load(), "MutuallyExclusive group must never dispatch two callbacks concurrently")
	assert.Equal(t, int64(100), atomic.LoadInt64(&delivered))
}

// TestReentrantGroupAllowsConcurrentDispatch drives the literal reentrant
// scenario: a burst of 8 messages on one subscription whose callback
// sleeps 10ms, spread across 4 workers. Total wall time should be close
// to 20ms (two waves of up to 4 concurrent callbacks), not 80ms serial.
func TestReentrantGroupAllowsConcurrentDispatch(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	group := n.CreateCallbackGroup(callbackgroup.Reentrant)

	var delivered int64
	var maxConcurrent int32
	var current int32
	var mu sync.Mutex
	var payloads []int

	_, err = n.CreateSubscription("t", "std_msgs/Int", false, group, func(msg any) {
		c := atomic.AddInt32(&current, 1)
		for {
			m := atomic.LoadInt32(&maxConcurrent)
			if c <= m || atomic.CompareAndSwapInt32(&maxConcurrent, m, c) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		mu.Lock()
		payloads = append(payloads, msg.(int))
		mu.Unlock()
		atomic.AddInt32(&current, -1)
		atomic.AddInt64(&delivered, 1)
	})
	require.NoError(t, err)

	pub, err := n.CreatePublisher("t", "std_msgs/Int", nil)
	require.NoError(t, err)

	exec, err := NewMultiThreadedExecutor(mw, station, nil, 4)
	require.NoError(t, err)
	exec.AddNode(n, false)

	for i := 1; i <= 8; i++ {
		require.NoError(t, pub.Publish(i))
	}

	start := time.Now()
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for atomic.LoadInt64(&delivered) < 8 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		station.Shutdown()
	}()
	require.NoError(t, exec.Spin())
	require.NoError(t, exec.Close())
	elapsed := time.Since(start)

	assert.Equal(t, int64(8), atomic.LoadInt64(&delivered))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&maxConcurrent), int32(2), "reentrant group should allow overlap")
	assert.Less(t, elapsed, 70*time.Millisecond, "should run in waves, not serially at 80ms")

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, payloads,
		"each concurrent dispatch must deliver its own message, uncorrupted by staging reuse")
}

// TestIntraProcessBurstEvictsOldest publishes depth+2 messages
// back-to-back without spinning, then spins: the subscriber must receive
// exactly the last depth messages, the first two having been evicted from
// the publisher's ring.
func TestIntraProcessBurstEvictsOldest(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	ipm, err := intraprocess.New()
	require.NoError(t, err)
	n, err := node.New("talker", mw, node.WithIntraProcess(ipm), node.WithIntraDepth(5))
	require.NoError(t, err)

	var mu sync.Mutex
	var received []int
	_, err = n.CreateSubscription("t", "std/Int", false, nil, func(msg any) {
		mu.Lock()
		received = append(received, msg.(int))
		mu.Unlock()
	})
	require.NoError(t, err)

	pub, err := n.CreatePublisher("t", "std/Int", nil)
	require.NoError(t, err)
	for i := 1; i <= 7; i++ {
		require.NoError(t, pub.Publish(i))
	}

	exec := NewSingleThreadedExecutor(mw, station, nil)
	exec.AddNode(n, false)

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			mu.Lock()
			got := len(received)
			mu.Unlock()
			if got >= 5 {
				break
			}
			time.Sleep(time.Millisecond)
		}
		// one extra grace pass so a stray sixth delivery would be caught
		time.Sleep(20 * time.Millisecond)
		station.Shutdown()
	}()
	require.NoError(t, exec.Spin())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{3, 4, 5, 6, 7}, received, "first two messages must have been evicted")
}

// TestIntraProcessIgnoreLocalReceivesNothing publishes once with two
// same-topic subscribers, one of which ignores local publications. Only
// the non-ignoring subscriber receives, exactly once: the ignoring one is
// skipped on the intra path and its inter-process duplicate is dropped by
// the sender-gid check.
func TestIntraProcessIgnoreLocalReceivesNothing(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	ipm, err := intraprocess.New()
	require.NoError(t, err)
	n, err := node.New("talker", mw, node.WithIntraProcess(ipm))
	require.NoError(t, err)

	var receiving, ignoring atomic.Int64
	_, err = n.CreateSubscription("t", "std/String", false, nil, func(any) {
		receiving.Add(1)
	})
	require.NoError(t, err)
	_, err = n.CreateSubscription("t", "std/String", true, nil, func(any) {
		ignoring.Add(1)
	})
	require.NoError(t, err)

	pub, err := n.CreatePublisher("t", "std/String", nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("hello"))

	exec := NewSingleThreadedExecutor(mw, station, nil)
	exec.AddNode(n, false)

	go func() {
		deadline := time.Now().Add(time.Second)
		for receiving.Load() < 1 && time.Now().Before(deadline) {
			time.Sleep(time.Millisecond)
		}
		time.Sleep(20 * time.Millisecond)
		station.Shutdown()
	}()
	require.NoError(t, exec.Spin())

	assert.Equal(t, int64(1), receiving.Load(), "non-ignoring subscriber receives exactly once")
	assert.Equal(t, int64(0), ignoring.Load(), "ignoring subscriber receives nothing")
}

// TestServiceClientRoundTripThroughSpin drives a full request/response
// cycle through the executor: the service request and the client response
// are both dispatched by the selection loop, not by hand.
func TestServiceClientRoundTripThroughSpin(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("server", mw)
	require.NoError(t, err)

	_, err = n.CreateService("double", nil, func(req any) any {
		return req.(int) * 2
	})
	require.NoError(t, err)

	client, err := n.CreateClient("double", nil)
	require.NoError(t, err)

	resolved := make(chan any, 1)
	_, err = client.Call(21, func(resp any) { resolved <- resp })
	require.NoError(t, err)

	exec := NewSingleThreadedExecutor(mw, station, nil)
	exec.AddNode(n, false)

	done := make(chan struct{})
	go func() {
		_ = exec.Spin()
		close(done)
	}()

	select {
	case resp := <-resolved:
		assert.Equal(t, 42, resp)
	case <-time.After(2 * time.Second):
		t.Fatal("client response was never resolved")
	}
	station.Shutdown()
	<-done
}

// TestAddNodeWithNotifyWakesBlockedWait attaches a node with a
// ready-to-take message while Spin is blocked on an empty wait-set. The
// notify guard must wake the wait well inside the periodic re-arm window
// so the new node's work is dispatched promptly.
func TestAddNodeWithNotifyWakesBlockedWait(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("late", mw)
	require.NoError(t, err)

	delivered := make(chan any, 1)
	_, err = n.CreateSubscription("t", "std/String", false, nil, func(msg any) {
		delivered <- msg
	})
	require.NoError(t, err)
	pub, err := n.CreatePublisher("t", "std/String", nil)
	require.NoError(t, err)
	require.NoError(t, pub.Publish("late-arrival"))

	exec := NewSingleThreadedExecutor(mw, station, nil)

	done := make(chan struct{})
	go func() {
		_ = exec.Spin()
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	added := time.Now()
	exec.AddNode(n, true)

	select {
	case msg := <-delivered:
		assert.Equal(t, "late-arrival", msg)
		assert.Less(t, time.Since(added), 300*time.Millisecond,
			"notify must wake the wait, not ride out the re-arm timeout")
	case <-time.After(time.Second):
		t.Fatal("message on the added node was never dispatched")
	}
	station.Shutdown()
	<-done
}

// TestShutdownWakesSpinWithinBoundedTime drives the literal S6 scenario:
// Spin blocks on an executor with nothing ready, Shutdown is called from
// another goroutine at ~200ms, and Spin must return within a bounded
// window well short of the unbounded-wait re-arm period.
func TestShutdownWakesSpinWithinBoundedTime(t *testing.T) {
	mw := inmem.New()
	station := shutdown.New(nil)
	n, err := node.New("talker", mw)
	require.NoError(t, err)

	exec := NewSingleThreadedExecutor(mw, station, nil)
	exec.AddNode(n, false)

	done := make(chan struct{})
	start := time.Now()
	go func() {
		_ = exec.Spin()
		close(done)
	}()

	go func() {
		time.Sleep(200 * time.Millisecond)
		station.Shutdown()
	}()

	select {
	case <-done:
		assert.Less(t, time.Since(start), 300*time.Millisecond)
	case <-time.After(500 * time.Millisecond):
		t.Fatal("Spin did not return within the bounded window after shutdown")
	}
}
