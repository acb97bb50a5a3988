// Package circuitbreaker stops calling an email provider that keeps failing
// and probes it again after a recovery timeout.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

// State of a breaker.
//
//	Closed -> Open:      consecutive failures reach MaxFailures
//	Open -> HalfOpen:    RecoveryTimeout has passed since the breaker opened
//	HalfOpen -> Closed:  a probe succeeds
//	HalfOpen -> Open:    a probe fails
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned while the breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

type Config struct {
	// Name labels logs and the breaker state gauge, usually the channel name.
	Name string

	MaxFailures     int
	RecoveryTimeout time.Duration

	// HalfOpenMaxRequests is how many probes may be in flight while half-open.
	HalfOpenMaxRequests int
}

func DefaultConfig(name string) Config {
	return Config{
		Name:                name,
		MaxFailures:         5,
		RecoveryTimeout:     30 * time.Second,
		HalfOpenMaxRequests: 1,
	}
}

// Breaker counts consecutive provider failures. Callers pair every nil
// Allow with exactly one of Success, Failure or Release.
type Breaker struct {
	mu     sync.Mutex
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	state    State
	failures int
	openedAt time.Time
	probes   int
	rejected int64
}

func New(cfg Config, logger *zap.Logger) *Breaker {
	def := DefaultConfig(cfg.Name)
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = def.MaxFailures
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = def.RecoveryTimeout
	}
	if cfg.HalfOpenMaxRequests <= 0 {
		cfg.HalfOpenMaxRequests = def.HalfOpenMaxRequests
	}

	metrics.SetBreakerState(cfg.Name, int(StateClosed))
	return &Breaker{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Allow returns ErrCircuitOpen when the call must not reach the provider.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.now().Sub(b.openedAt) < b.cfg.RecoveryTimeout {
			b.rejected++
			return ErrCircuitOpen
		}
		b.setState(StateHalfOpen)
	}

	if b.state == StateHalfOpen {
		if b.probes >= b.cfg.HalfOpenMaxRequests {
			b.rejected++
			return ErrCircuitOpen
		}
		b.probes++
	}
	return nil
}

func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	if b.state == StateHalfOpen {
		b.setState(StateClosed)
	}
}

func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	switch {
	case b.state == StateHalfOpen:
		b.open()
	case b.state == StateClosed && b.failures >= b.cfg.MaxFailures:
		b.open()
	}
}

// Release ends an allowed call without a verdict, freeing its probe slot.
func (b *Breaker) Release() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen && b.probes > 0 {
		b.probes--
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Rejected is the number of calls refused since the breaker was created.
func (b *Breaker) Rejected() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rejected
}

func (b *Breaker) Name() string { return b.cfg.Name }

// open must be called with mu held.
func (b *Breaker) open() {
	b.openedAt = b.now()
	b.setState(StateOpen)
	b.logger.Warn("email channel circuit opened",
		zap.String("channel", b.cfg.Name),
		zap.Int("consecutive_failures", b.failures),
		zap.Duration("retry_after", b.cfg.RecoveryTimeout),
	)
}

// setState must be called with mu held.
func (b *Breaker) setState(next State) {
	if b.state == next {
		return
	}
	prev := b.state
	b.state = next
	b.probes = 0
	metrics.SetBreakerState(b.cfg.Name, int(next))

	b.logger.Info("email channel circuit state changed",
		zap.String("channel", b.cfg.Name),
		zap.String("from", prev.String()),
		zap.String("to", next.String()),
	)
}
