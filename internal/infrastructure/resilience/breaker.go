package resilience

import (
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen is returned while a host's circuit is open.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State represents the circuit breaker state
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// Settings configures when a circuit trips and how long it stays open.
type Settings struct {
	// Threshold is the number of consecutive failures that opens the circuit.
	Threshold int
	// Cooldown is how long the circuit stays open before one trial call.
	Cooldown time.Duration
	// OnStateChange is called whenever a key's state changes.
	OnStateChange func(key string, from, to State)
}

type circuit struct {
	state    State
	failures int
	openedAt time.Time
	trial    bool // half-open call in flight
}

// Breakers keeps one circuit per key, typically a remote host.
type Breakers struct {
	settings Settings
	now      func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
}

// NewBreakers creates a breaker set. Zero settings trip after five
// failures and cool down for thirty seconds.
func NewBreakers(settings Settings) *Breakers {
	if settings.Threshold <= 0 {
		settings.Threshold = 5
	}
	if settings.Cooldown <= 0 {
		settings.Cooldown = 30 * time.Second
	}
	return &Breakers{
		settings: settings,
		now:      time.Now,
		circuits: make(map[string]*circuit),
	}
}

// State reports the state of key's circuit.
func (b *Breakers) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		return StateClosed
	}
	b.advance(key, c)
	return c.state
}

// Execute runs fn unless key's circuit is open. A half-open circuit lets
// one call through; its outcome closes or reopens the circuit.
func (b *Breakers) Execute(key string, fn func() error) error {
	if err := b.allow(key); err != nil {
		return err
	}
	err := fn()
	b.record(key, err == nil)
	return err
}

func (b *Breakers) allow(key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := b.circuits[key]
	if !ok {
		c = &circuit{}
		b.circuits[key] = c
	}
	b.advance(key, c)

	switch c.state {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if c.trial {
			return ErrCircuitOpen
		}
		c.trial = true
	}
	return nil
}

func (b *Breakers) record(key string, success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	wasTrial := c.trial
	c.trial = false

	if success {
		c.failures = 0
		b.set(key, c, StateClosed)
		return
	}

	c.failures++
	if wasTrial || c.failures >= b.settings.Threshold {
		c.openedAt = b.now()
		b.set(key, c, StateOpen)
	}
}

// advance moves an open circuit to half-open once its cooldown elapsed.
func (b *Breakers) advance(key string, c *circuit) {
	if c.state == StateOpen && b.now().Sub(c.openedAt) >= b.settings.Cooldown {
		b.set(key, c, StateHalfOpen)
	}
}

func (b *Breakers) set(key string, c *circuit, state State) {
	if c.state == state {
		return
	}
	prev := c.state
	c.state = state
	if state == StateClosed {
		c.failures = 0
	}
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(key, prev, state)
	}
}
