// Package ai holds model decorators shared by every LLM backend.
package ai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharow/sharow/internal/domain"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	// CircuitClosed lets calls through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects calls until the cooldown elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single trial call through.
	CircuitHalfOpen
)

// String returns a string representation of the circuit state
func (cs CircuitState) String() string {
	switch cs {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker opens after consecutive upstream failures.
type CircuitBreaker struct {
	mu               sync.Mutex
	name             string
	failureThreshold int
	cooldown         time.Duration
	state            CircuitState
	failureCount     int
	openedAt         time.Time
	probing          bool
	now              func() time.Time
}

// NewCircuitBreaker creates a breaker for one upstream.
func NewCircuitBreaker(name string, failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &CircuitBreaker{
		name:             name,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		state:            CircuitClosed,
		now:              time.Now,
	}
}

// ShouldAttempt reports whether a call may proceed. An open breaker moves to
// half-open once the cooldown has passed and admits exactly one trial call.
func (cb *CircuitBreaker) ShouldAttempt() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case CircuitClosed:
		return true
	case CircuitOpen:
		if cb.now().Sub(cb.openedAt) < cb.cooldown {
			return false
		}
		cb.state = CircuitHalfOpen
		cb.probing = true
		return true
	case CircuitHalfOpen:
		if cb.probing {
			return false
		}
		cb.probing = true
		return true
	default:
		return false
	}
}

// RecordSuccess closes the circuit.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != CircuitClosed {
		slog.Info("circuit breaker closed after successful trial call", slog.String("upstream", cb.name))
	}
	cb.state = CircuitClosed
	cb.failureCount = 0
	cb.probing = false
}

// RecordFailure counts a failure and opens the circuit at the threshold or when a trial call fails.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount++
	cb.probing = false
	if cb.state == CircuitHalfOpen || cb.failureCount >= cb.failureThreshold {
		cb.state = CircuitOpen
		cb.openedAt = cb.now()
		slog.Warn("circuit breaker opened",
			slog.String("upstream", cb.name),
			slog.Int("failure_count", cb.failureCount),
			slog.Int("threshold", cb.failureThreshold))
	}
}

// GetState returns the current circuit state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// BreakerModel guards a domain.Model with a CircuitBreaker.
type BreakerModel struct {
	next    domain.Model
	breaker *CircuitBreaker
}

// NewBreakerModel wraps next.
func NewBreakerModel(next domain.Model, breaker *CircuitBreaker) *BreakerModel {
	return &BreakerModel{next: next, breaker: breaker}
}

var errCircuitOpen = domain.NewAPIError(domain.ErrUpstreamUnavailable, "AI_UNAVAILABLE",
	"The analysis service is temporarily unavailable, please try again shortly")

// Generate implements domain.Model.
func (m *BreakerModel) Generate(ctx domain.Context, req domain.ModelRequest) (string, error) {
	if !m.breaker.ShouldAttempt() {
		return "", fmt.Errorf("op=ai.BreakerModel.Generate: %w", errCircuitOpen)
	}
	out, err := m.next.Generate(ctx, req)
	switch {
	case err == nil:
		m.breaker.RecordSuccess()
	case countsAsFailure(err):
		m.breaker.RecordFailure()
	default:
		// The upstream answered, so it is reachable.
		m.breaker.RecordSuccess()
	}
	return out, err
}

func countsAsFailure(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, domain.ErrUpstreamTimeout) ||
		errors.Is(err, domain.ErrUpstreamUnavailable) ||
		errors.Is(err, domain.ErrUpstreamRateLimit) ||
		errors.Is(err, context.DeadlineExceeded)
}
