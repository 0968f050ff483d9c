package httpx

import (
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

type CircuitBreaker interface {
	Execute(fn func() error) error
	State() gobreaker.State
}

type circuitBreakerWrapper struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker trips after maxFailures consecutive failures and probes
// again once timeout has elapsed.
func NewCircuitBreaker(name string, timeout time.Duration, maxFailures uint32) CircuitBreaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			// a 4xx is the caller's fault, not the host's
			return err == nil || IsClientStatus(err)
		},
	}
	return &circuitBreakerWrapper{
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

func (g *circuitBreakerWrapper) Execute(fn func() error) error {
	_, err := g.breaker.Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if err != nil {
		return fmt.Errorf("breaker (%s): %w", g.breaker.Name(), err)
	}
	return nil
}

func (g *circuitBreakerWrapper) State() gobreaker.State {
	return g.breaker.State()
}

// breakerSet lazily creates one breaker per host.
type breakerSet struct {
	mu          sync.Mutex
	timeout     time.Duration
	maxFailures uint32
	breakers    map[string]CircuitBreaker
}

func newBreakerSet(timeout time.Duration, maxFailures uint32) *breakerSet {
	return &breakerSet{
		timeout:     timeout,
		maxFailures: maxFailures,
		breakers:    make(map[string]CircuitBreaker),
	}
}

func (s *breakerSet) get(host string) CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	cb, ok := s.breakers[host]
	if !ok {
		cb = NewCircuitBreaker(host, s.timeout, s.maxFailures)
		s.breakers[host] = cb
	}
	return cb
}
