// Package circuitbreaker stops a reconciliation batch from hammering a store
// that is failing every region group.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rental-insight/internal/logging"
)

// State represents the circuit breaker state
type State string

const (
	// StateClosed lets calls through
	StateClosed State = "closed"
	// StateOpen rejects calls until the cooldown elapses
	StateOpen State = "open"
	// StateHalfOpen lets a single trial call through
	StateHalfOpen State = "half_open"
)

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Config configures a circuit breaker
type Config struct {
	Name string
	// MaxConsecutiveFailures opens the circuit; <= 0 disables the breaker
	MaxConsecutiveFailures int
	// Cooldown before a half-open trial; zero keeps the circuit open
	// for the breaker's lifetime
	Cooldown time.Duration
}

// CircuitBreaker trips after a run of consecutive failures
type CircuitBreaker struct {
	cfg Config
	now func() time.Time

	mu               sync.Mutex
	state            State
	consecutiveFails int
	totalFailures    int
	totalCalls       int
	openedAt         time.Time
	trialInFlight    bool
}

// NewCircuitBreaker creates a closed circuit breaker
func NewCircuitBreaker(cfg Config) *CircuitBreaker {
	return &CircuitBreaker{cfg: cfg, now: time.Now, state: StateClosed}
}

// Execute runs fn unless the circuit is open. Failures caused by ctx being
// cancelled are not counted.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := cb.before(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.after(err, ctx.Err() != nil)
	return err
}

func (cb *CircuitBreaker) before() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.cfg.MaxConsecutiveFailures <= 0 {
		return nil
	}

	switch cb.state {
	case StateOpen:
		if cb.cfg.Cooldown > 0 && cb.now().Sub(cb.openedAt) >= cb.cfg.Cooldown {
			cb.state = StateHalfOpen
			cb.trialInFlight = true
			return nil
		}
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.trialInFlight {
			return ErrCircuitOpen
		}
		cb.trialInFlight = true
	}
	return nil
}

func (cb *CircuitBreaker) after(err error, cancelled bool) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.totalCalls++
	cb.trialInFlight = false

	if cancelled && err != nil {
		return
	}
	if err == nil {
		if cb.state == StateHalfOpen {
			logging.WithField("circuitBreaker", cb.cfg.Name).Info("circuit breaker closed after successful trial")
		}
		cb.consecutiveFails = 0
		cb.state = StateClosed
		return
	}

	cb.totalFailures++
	cb.consecutiveFails++

	if cb.cfg.MaxConsecutiveFailures <= 0 {
		return
	}
	if cb.state == StateHalfOpen || cb.consecutiveFails >= cb.cfg.MaxConsecutiveFailures {
		cb.state = StateOpen
		cb.openedAt = cb.now()
		logging.GetGlobalLogger().WithFields(map[string]interface{}{
			"circuitBreaker":   cb.cfg.Name,
			"consecutiveFails": cb.consecutiveFails,
		}).Warn("circuit breaker opened")
	}
}

// State returns the current state
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Stats is a snapshot of breaker counters
type Stats struct {
	Name             string `json:"name"`
	State            State  `json:"state"`
	TotalCalls       int    `json:"totalCalls"`
	TotalFailures    int    `json:"totalFailures"`
	ConsecutiveFails int    `json:"consecutiveFails"`
}

// Stats returns a snapshot of the breaker counters
func (cb *CircuitBreaker) Stats() Stats {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return Stats{
		Name:             cb.cfg.Name,
		State:            cb.state,
		TotalCalls:       cb.totalCalls,
		TotalFailures:    cb.totalFailures,
		ConsecutiveFails: cb.consecutiveFails,
	}
}
