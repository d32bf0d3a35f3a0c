package engine

import (
	"context"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultPoolSize   = 4
	AcquireTimeout    = 5 * time.Second
	HealthCheckPeriod = 60 * time.Second
)

// Factory builds one pooled engine instance. The pool keeps it for the
// lifetime of the pool so lost engines can be replaced.
type Factory func() (Engine, error)

// Pool serializes access to a fixed set of engine instances. Engines are not
// assumed reentrant, so every concurrent caller must hold its own instance;
// a pool of size 1 fully serializes a single non-reentrant backend. A
// background health check rebuilds engines that went missing, e.g. ones
// closed on release after a shutdown was aborted mid-flight.
type Pool struct {
	engines chan Engine
	size    int
	factory Factory

	mu         sync.Mutex
	closed     bool
	metrics    PoolMetrics
	lastErrors []error
}

// PoolMetrics is a snapshot of pool usage counters.
type PoolMetrics struct {
	InUse             int
	TotalAcquired     int64
	TotalReleased     int64
	AcquireFailures   int64
	ReplenishFailures int64
	WaitTime          time.Duration
}

// NewPool builds size engines up front via factory and starts the health
// check routine.
func NewPool(factory Factory, size int) (*Pool, error) {
	if size <= 0 {
		size = DefaultPoolSize
	}
	p := &Pool{engines: make(chan Engine, size), size: size, factory: factory}
	for i := 0; i < size; i++ {
		eng, err := factory()
		if err != nil {
			p.Destroy()
			return nil, fmt.Errorf("engine: initialize pooled engine %d: %w", i, err)
		}
		p.engines <- eng
	}

	go p.healthCheck()

	return p, nil
}

// Acquire takes an engine, waiting up to AcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (Engine, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, fmt.Errorf("engine: pool is closed")
	}
	p.mu.Unlock()

	start := time.Now()
	defer func() {
		p.mu.Lock()
		p.metrics.WaitTime += time.Since(start)
		p.mu.Unlock()
	}()

	select {
	case eng, ok := <-p.engines:
		if !ok {
			// Destroy closed the channel while we were waiting.
			return nil, fmt.Errorf("engine: pool is closed")
		}
		p.mu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.mu.Unlock()
		return eng, nil
	case <-time.After(AcquireTimeout):
		p.mu.Lock()
		p.metrics.AcquireFailures++
		p.mu.Unlock()
		return nil, fmt.Errorf("engine: timeout waiting for available engine")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release returns an engine to the pool.
func (p *Pool) Release(eng Engine) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		eng.Close()
		return
	}
	p.metrics.InUse--
	p.metrics.TotalReleased++
	p.mu.Unlock()

	p.engines <- eng
}

// Size returns the pool capacity.
func (p *Pool) Size() int { return p.size }

// Metrics returns a snapshot of the usage counters.
func (p *Pool) Metrics() PoolMetrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.metrics
}

// Destroy closes the pool and every idle engine. Engines still checked out
// are closed on release.
func (p *Pool) Destroy() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	close(p.engines)
	for eng := range p.engines {
		eng.Close()
	}
}

// healthCheck periodically rebuilds engines the pool has lost.
func (p *Pool) healthCheck() {
	ticker := time.NewTicker(HealthCheckPeriod)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		closed := p.closed
		p.mu.Unlock()
		if closed {
			return
		}
		if missing := p.shortfall(); missing > 0 {
			p.replenish(missing)
		}
	}
}

// shortfall counts engines the pool is short of: capacity minus idle minus
// checked out. Checked-out engines are not missing, they are in use.
func (p *Pool) shortfall() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.size - len(p.engines) - p.metrics.InUse
}

// replenish builds count replacement engines. Factory failures are recorded
// and skipped; a pool refilled or closed in the meantime discards the extra.
func (p *Pool) replenish(count int) {
	for i := 0; i < count; i++ {
		eng, err := p.factory()
		if err != nil {
			p.recordError(err)
			continue
		}
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			eng.Close()
			return
		}
		select {
		case p.engines <- eng:
		default:
			eng.Close()
		}
		p.mu.Unlock()
	}
}

func (p *Pool) recordError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.metrics.ReplenishFailures++
	p.lastErrors = append(p.lastErrors, err)
	if len(p.lastErrors) > 10 {
		p.lastErrors = p.lastErrors[1:]
	}
}
