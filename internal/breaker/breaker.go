// Package breaker implements a circuit breaker protecting the
// categorization engine from cascading infrastructure failures.
package breaker

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ledgerline/categorizer/internal/common"
)

// State represents the current mode of a circuit.
type State string

// Circuit states.
const (
	// StateClosed passes calls through and counts consecutive failures.
	StateClosed State = "closed"
	// StateOpen fails every call fast until the timeout elapses.
	StateOpen State = "open"
	// StateHalfOpen admits a limited number of trial calls.
	StateHalfOpen State = "half_open"
)

// Config holds the thresholds for one protected operation.
type Config struct {
	FailureThreshold int
	SuccessThreshold int
	HalfOpenMaxCalls int
	Timeout          time.Duration
}

// DefaultConfig returns the default circuit breaker configuration.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		HalfOpenMaxCalls: 3,
		Timeout:          30 * time.Second,
	}
}

// Breaker is a circuit breaker for a single protected operation.
// All state transitions happen under one mutex so concurrent batch
// workers observe a consistent state.
type Breaker struct {
	lastFailureAt time.Time
	openedAt      time.Time
	now           func() time.Time
	name          string
	config        Config
	failureCount  int
	successCount  int
	halfOpenCalls int
	state         State
	mu            sync.Mutex
}

// New creates a circuit breaker named after the operation it protects.
func New(name string, config Config) *Breaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if config.SuccessThreshold <= 0 {
		config.SuccessThreshold = DefaultConfig().SuccessThreshold
	}
	if config.HalfOpenMaxCalls <= 0 {
		config.HalfOpenMaxCalls = DefaultConfig().HalfOpenMaxCalls
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}

	return &Breaker{
		name:   name,
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// Execute runs fn through the circuit. While the circuit is open it
// fails fast with common.ErrCircuitOpen without invoking fn.
func (b *Breaker) Execute(fn func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	err := fn()
	b.afterCall(err)
	return err
}

// State returns the current circuit state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.config.Timeout {
			return fmt.Errorf("%s: %w", b.name, common.ErrCircuitOpen)
		}
		b.transition(StateHalfOpen)
		b.halfOpenCalls = 1
		return nil
	case StateHalfOpen:
		if b.halfOpenCalls >= b.config.HalfOpenMaxCalls {
			return fmt.Errorf("%s: %w", b.name, common.ErrCircuitOpen)
		}
		b.halfOpenCalls++
		return nil
	}

	return nil
}

func (b *Breaker) afterCall(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.lastFailureAt = b.now()
		switch b.state {
		case StateHalfOpen:
			// Any failure during the trial period re-opens the circuit.
			b.open()
		case StateClosed:
			b.failureCount++
			if b.failureCount >= b.config.FailureThreshold {
				b.open()
			}
		}
		return
	}

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.config.SuccessThreshold {
			b.transition(StateClosed)
			b.failureCount = 0
			b.successCount = 0
			b.halfOpenCalls = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// open must be called with the mutex held.
func (b *Breaker) open() {
	b.transition(StateOpen)
	b.openedAt = b.now()
	b.successCount = 0
	b.halfOpenCalls = 0
}

// transition must be called with the mutex held.
func (b *Breaker) transition(to State) {
	if b.state == to {
		return
	}
	slog.Debug("Circuit state change",
		"circuit", b.name,
		"from", b.state,
		"to", to)
	b.state = to
}
