package statestore

import (
	"context"
	"errors"
	"sync"
	"time"
)

// circuit states
const (
	circuitClosed   = "closed"
	circuitOpen     = "open"
	circuitHalfOpen = "half-open"
)

// ErrCircuitOpen is returned by breaker.run when the circuit is open and
// the cooldown timeout has not yet elapsed.
var ErrCircuitOpen = errors.New("statestore: circuit breaker open")

// circuitConfig configures a breaker — one breaker per REST resource path
// rather than one global breaker, so a failing /reminders endpoint does
// not trip calls to /users.
type circuitConfig struct {
	failureThreshold int
	successThreshold int
	timeout          time.Duration
}

func defaultCircuitConfig() circuitConfig {
	return circuitConfig{failureThreshold: 5, successThreshold: 2, timeout: 60 * time.Second}
}

// breaker implements the closed/open/half-open circuit breaker pattern
// around a single resource's state-store calls.
type breaker struct {
	cfg circuitConfig

	mu              sync.Mutex
	state           string
	failures        int
	successes       int
	lastStateChange time.Time
}

func newBreaker(cfg circuitConfig) *breaker {
	return &breaker{cfg: cfg, state: circuitClosed, lastStateChange: time.Now()}
}

// run executes fn under breaker protection, recording the result.
func (b *breaker) run(ctx context.Context, fn func(context.Context) error) error {
	if err := b.admit(); err != nil {
		return err
	}
	err := fn(ctx)
	b.record(err)
	return err
}

func (b *breaker) admit() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case circuitOpen:
		if time.Since(b.lastStateChange) >= b.cfg.timeout {
			b.transition(circuitHalfOpen)
			return nil
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}

func (b *breaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.successes = 0
		if b.state == circuitHalfOpen || b.failures >= b.cfg.failureThreshold {
			b.transition(circuitOpen)
		}
		return
	}
	switch b.state {
	case circuitClosed:
		b.failures = 0
	case circuitHalfOpen:
		b.successes++
		if b.successes >= b.cfg.successThreshold {
			b.transition(circuitClosed)
		}
	}
}

func (b *breaker) transition(to string) {
	b.state = to
	b.lastStateChange = time.Now()
	b.failures = 0
	b.successes = 0
}

func (b *breaker) currentState() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// breakerRegistry lazily creates one breaker per resource name.
type breakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*breaker
	cfg      circuitConfig
}

func newBreakerRegistry(cfg circuitConfig) *breakerRegistry {
	return &breakerRegistry{breakers: make(map[string]*breaker), cfg: cfg}
}

func (r *breakerRegistry) get(resource string) *breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[resource]; ok {
		return b
	}
	b := newBreaker(r.cfg)
	r.breakers[resource] = b
	return b
}

// openResources lists resource names whose breaker is currently open.
func (r *breakerRegistry) openResources() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var open []string
	for name, b := range r.breakers {
		if b.currentState() == circuitOpen {
			open = append(open, name)
		}
	}
	return open
}
