package bus

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNew(t *testing.T) {
	b := New()
	defer b.Close()
	assert.Equal(t, DefaultHistorySize, b.historySize)

	b2 := NewWithHistory(0)
	defer b2.Close()
	assert.Equal(t, DefaultHistorySize, b2.historySize)
}

func TestSubscribeAndPublish(t *testing.T) {
	b := New()
	defer b.Close()

	got := make(chan Event, 1)
	id := b.Subscribe(EventCycleComplete, func(e Event) { got <- e })
	require.NotEmpty(t, id)

	e := NewEvent(EventCycleComplete)
	e.CycleCount = 7
	require.NoError(t, b.Publish(e))

	select {
	case recv := <-got:
		assert.Equal(t, uint64(7), recv.CycleCount)
		assert.Equal(t, e.ID, recv.ID)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestTypedSubscriberIgnoresOtherTypes(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe(EventResponse, func(Event) { calls.Add(1) })

	require.NoError(t, b.Publish(NewEvent(EventCycleComplete)))
	require.NoError(t, b.Publish(NewResponseEvent("c1", "Olá", "happy", nil)))

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int32
	id := b.Subscribe(EventCycleError, func(Event) { calls.Add(1) })

	require.NoError(t, b.Publish(NewEvent(EventCycleError)))
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, b.Unsubscribe(id))
	assert.Equal(t, 0, b.SubscriptionsCount())
	require.NoError(t, b.Publish(NewEvent(EventCycleError)))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())

	assert.Error(t, b.Unsubscribe(id))
}

func TestWildcardSubscription(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe("", func(Event) { calls.Add(1) })

	require.NoError(t, b.Publish(NewEvent(EventCycleComplete)))
	require.NoError(t, b.Publish(NewEmergencyStopEvent("battery", nil)))

	require.Eventually(t, func() bool { return calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestHistoryIsBounded(t *testing.T) {
	b := NewWithHistory(3)
	defer b.Close()

	for i := 1; i <= 5; i++ {
		e := NewEvent(EventCycleComplete)
		e.CycleCount = uint64(i)
		require.NoError(t, b.Publish(e))
	}

	h := b.History()
	require.Len(t, h, 3)
	assert.Equal(t, uint64(3), h[0].CycleCount)
	assert.Equal(t, uint64(5), h[2].CycleCount)

	recent := b.Recent(2)
	require.Len(t, recent, 2)
	assert.Equal(t, uint64(4), recent[0].CycleCount)
	assert.Nil(t, b.Recent(0))
}

func TestPluginFailureEvent(t *testing.T) {
	e := NewPluginFailureEvent("input", "G1Vision", "get_data", errors.New("camera offline"))
	assert.Equal(t, EventPluginFailure, e.Type)
	assert.Equal(t, "G1Vision", e.Plugin)
	assert.Equal(t, "camera offline", e.Error)
	assert.NotEmpty(t, e.ID)
}

func TestConcurrentPublish(t *testing.T) {
	b := New()
	defer b.Close()

	var calls atomic.Int32
	b.Subscribe("", func(Event) { calls.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				_ = b.Publish(NewEvent(EventCycleComplete))
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return uint64(calls.Load())+b.Dropped() == 50
	}, time.Second, 5*time.Millisecond)
}

func TestClose(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := New()
	b.Subscribe(EventResponse, func(Event) {})
	b.Subscribe("", func(Event) {})

	require.NoError(t, b.Close())
	assert.ErrorIs(t, b.Close(), ErrClosed)
	assert.ErrorIs(t, b.Publish(NewEvent(EventResponse)), ErrClosed)
	assert.Empty(t, b.Subscribe(EventResponse, func(Event) {}))
}
