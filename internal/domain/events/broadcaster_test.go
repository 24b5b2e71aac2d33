package events

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, s *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		require.True(t, ok, "subscription closed unexpectedly")
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func assertEmpty(t *testing.T, s *Subscription) {
	t.Helper()
	select {
	case e, ok := <-s.Events():
		if ok {
			t.Fatalf("unexpected extra event: %+v", e)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTwoObserversEachReceiveOneLine(t *testing.T) {
	b := NewBroadcaster(time.Second, nil, nil)
	first := b.Subscribe(8, nil)
	second := b.Subscribe(8, nil)

	b.Publish(Log("env-1", OriginStdout, "Booting Linux"))

	for _, s := range []*Subscription{first, second} {
		e := receive(t, s)
		assert.Equal(t, TypeLog, e.Type)
		assert.Equal(t, OriginStdout, e.Origin)
		assert.Equal(t, "env-1", e.EnvironmentID)
		assert.Equal(t, "Booting Linux", e.Line)
		assert.True(t, strings.HasPrefix(e.ID, "evt_"))
		assert.False(t, e.Time.IsZero())
		assertEmpty(t, s)
	}
}

func TestObserversSeeSameOrder(t *testing.T) {
	b := NewBroadcaster(time.Second, nil, nil)
	first := b.Subscribe(64, nil)
	second := b.Subscribe(64, nil)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(Log("env", OriginStdout, strings.Repeat("x", n+1)))
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < 40; i++ {
		a, c := receive(t, first), receive(t, second)
		assert.Equal(t, a.ID, c.ID)
	}
}

func TestStalledObserverIsEvicted(t *testing.T) {
	b := NewBroadcaster(50*time.Millisecond, nil, nil)
	stalled := b.Subscribe(1, nil)
	healthy := b.Subscribe(8, nil)

	b.Publish(Log("env", OriginStdout, "one"))
	start := time.Now()
	b.Publish(Log("env", OriginStdout, "two"))

	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	assert.Equal(t, 1, b.Count())

	assert.Equal(t, "one", receive(t, stalled).Line)
	_, ok := <-stalled.Events()
	assert.False(t, ok, "evicted queue should be closed")

	assert.Equal(t, "one", receive(t, healthy).Line)
	assert.Equal(t, "two", receive(t, healthy).Line)
}

func TestCloseDetaches(t *testing.T) {
	b := NewBroadcaster(time.Second, nil, nil)
	s := b.Subscribe(1, nil)
	require.Equal(t, 1, b.Count())

	s.Close()
	s.Close()

	assert.Equal(t, 0, b.Count())
	_, ok := <-s.Events()
	assert.False(t, ok)

	// publishing with no observers is a no-op
	b.Publish(Lifecycle("env", "stopped", ""))
}

func TestCloseReleasesBlockedPublisher(t *testing.T) {
	b := NewBroadcaster(10*time.Second, nil, nil)
	s := b.Subscribe(1, nil)
	b.Publish(Log("env", OriginStdout, "fill"))

	published := make(chan struct{})
	go func() {
		b.Publish(Log("env", OriginStdout, "blocked"))
		close(published)
	}()

	time.Sleep(50 * time.Millisecond)
	s.Close()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher still blocked after observer closed")
	}
	assert.Equal(t, 0, b.Count())
}

func TestFilterForEnvironment(t *testing.T) {
	b := NewBroadcaster(time.Second, nil, nil)
	s := b.Subscribe(8, ForEnvironment("env-a"))

	b.Publish(Log("env-b", OriginStdout, "other"))
	b.Publish(Log("env-a", OriginStderr, "mine"))
	b.Publish(Progress("kernel", "fetching", 10, ""))

	assert.Equal(t, "mine", receive(t, s).Line)
	e := receive(t, s)
	assert.Equal(t, TypeProgress, e.Type)
	require.NotNil(t, e.Progress)
	assert.Equal(t, 10, *e.Progress)
	assertEmpty(t, s)
}

func TestBroadcasterCloseDetachesAll(t *testing.T) {
	b := NewBroadcaster(time.Second, nil, nil)
	subs := []*Subscription{b.Subscribe(1, nil), b.Subscribe(1, nil)}

	b.Close()

	assert.Equal(t, 0, b.Count())
	for _, s := range subs {
		_, ok := <-s.Events()
		assert.False(t, ok)
	}
}

func TestConcurrentMembershipChanges(t *testing.T) {
	b := NewBroadcaster(20*time.Millisecond, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			s := b.Subscribe(4, nil)
			for j := 0; j < 3; j++ {
				select {
				case <-s.Events():
				case <-time.After(5 * time.Millisecond):
				}
			}
			s.Close()
		}()
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Publish(Log("env", OriginStdout, "line"))
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 0, b.Count())
}
