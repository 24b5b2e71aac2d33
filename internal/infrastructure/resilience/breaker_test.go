package resilience

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func fail() error    { return errBoom }
func succeed() error { return nil }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestBreakers(threshold int) (*Breakers, *clock) {
	clk := &clock{now: time.Unix(0, 0)}
	b := NewBreakers(Settings{Threshold: threshold, Cooldown: time.Minute})
	b.now = clk.Now
	return b, clk
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		threshold     int
		calls         []func() error
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			threshold:     2,
			calls:         []func() error{succeed, succeed, succeed},
			expectedState: StateClosed,
		},
		{
			name:          "opens after consecutive failures",
			threshold:     3,
			calls:         []func() error{fail, fail, fail},
			expectedState: StateOpen,
		},
		{
			name:          "success resets the failure count",
			threshold:     3,
			calls:         []func() error{fail, fail, succeed, fail, fail},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreakers(tt.threshold)
			for _, call := range tt.calls {
				_ = b.Execute("host", call)
			}
			assert.Equal(t, tt.expectedState, b.State("host"))
		})
	}
}

func TestOpenCircuitRejectsWithoutCalling(t *testing.T) {
	b, _ := newTestBreakers(1)
	require.ErrorIs(t, b.Execute("host", fail), errBoom)

	called := false
	err := b.Execute("host", func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)

	// Other keys are unaffected.
	assert.NoError(t, b.Execute("other", succeed))
}

func TestHalfOpenTrial(t *testing.T) {
	b, clk := newTestBreakers(1)
	_ = b.Execute("host", fail)

	clk.Advance(time.Minute)
	assert.Equal(t, StateHalfOpen, b.State("host"))

	// A failed trial reopens immediately.
	assert.ErrorIs(t, b.Execute("host", fail), errBoom)
	assert.Equal(t, StateOpen, b.State("host"))

	clk.Advance(time.Minute)
	require.NoError(t, b.Execute("host", succeed))
	assert.Equal(t, StateClosed, b.State("host"))
}

func TestHalfOpenAllowsOneTrial(t *testing.T) {
	b, clk := newTestBreakers(1)
	_ = b.Execute("host", fail)
	clk.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute("host", func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, b.Execute("host", succeed), ErrCircuitOpen)
	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, b.State("host"))
}

func TestStateChangeCallback(t *testing.T) {
	var transitions []string
	b := NewBreakers(Settings{
		Threshold: 2,
		Cooldown:  time.Minute,
		OnStateChange: func(key string, from, to State) {
			transitions = append(transitions, key+":"+from.String()+"->"+to.String())
		},
	})

	_ = b.Execute("mirror", fail)
	_ = b.Execute("mirror", fail)

	assert.Equal(t, []string{"mirror:closed->open"}, transitions)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "unknown", State(42).String())
}
