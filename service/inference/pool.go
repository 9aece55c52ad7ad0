package inference

import (
	"context"
	"sync"
	"time"

	"golang.org/x/xerrors"
)

var ErrPoolClosed = xerrors.New("session pool is closed")

// sessionPool hands out at most size runtime sessions at a time. A session
// is owned by exactly one caller between Acquire and Release.
type sessionPool[T any] struct {
	sessions       chan T
	size           int
	acquireTimeout time.Duration
	destroy        func(T)

	mu      sync.RWMutex
	closed  bool
	metrics Metrics
}

func newSessionPool[T any](size int, acquireTimeout time.Duration, create func(int) (T, error), destroy func(T)) (*sessionPool[T], error) {
	if size <= 0 {
		return nil, xerrors.Errorf("session pool size must be positive, got %d", size)
	}

	pool := &sessionPool[T]{
		sessions:       make(chan T, size),
		size:           size,
		acquireTimeout: acquireTimeout,
		destroy:        destroy,
		metrics:        Metrics{PoolSize: size},
	}

	for i := 0; i < size; i++ {
		session, err := create(i)
		if err != nil {
			pool.Destroy()
			return nil, xerrors.Errorf("failed to initialize session %d: %w", i, err)
		}
		pool.sessions <- session
	}

	return pool, nil
}

func (p *sessionPool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return zero, ErrPoolClosed
	}

	timer := time.NewTimer(p.acquireTimeout)
	defer timer.Stop()

	select {
	case session, ok := <-p.sessions:
		if !ok {
			return zero, ErrPoolClosed
		}
		p.mu.Lock()
		p.metrics.InUse++
		p.metrics.TotalAcquired++
		p.mu.Unlock()
		return session, nil
	case <-timer.C:
		p.mu.Lock()
		p.metrics.AcquireFailures++
		p.mu.Unlock()
		return zero, xerrors.Errorf("timeout after %s waiting for an available session", p.acquireTimeout)
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (p *sessionPool[T]) Release(session T) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		p.destroy(session)
		return
	}

	p.metrics.InUse--
	p.metrics.TotalReleased++
	p.sessions <- session
}

func (p *sessionPool[T]) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true
	close(p.sessions)

	for session := range p.sessions {
		p.destroy(session)
	}
}

func (p *sessionPool[T]) GetMetrics() Metrics {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.metrics
}
