// Package workpool bounds how many blocking downstream calls run at once.
package workpool

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"
)

// Pool admits at most size concurrent calls to Do.
type Pool struct {
	sem      *semaphore.Weighted
	size     int64
	inFlight prometheus.Gauge
}

type Option func(*Pool)

// WithInFlightGauge reports the number of running calls.
func WithInFlightGauge(g prometheus.Gauge) Option {
	return func(p *Pool) {
		p.inFlight = g
	}
}

func New(size int, opts ...Option) (*Pool, error) {
	if size <= 0 {
		return nil, fmt.Errorf("[workpool.New] size must be positive, got %d", size)
	}
	p := &Pool{sem: semaphore.NewWeighted(int64(size)), size: int64(size)}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Do waits for a free slot and runs fn with ctx. It returns ctx.Err() if the
// context ends before a slot frees up.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	if p.inFlight != nil {
		p.inFlight.Inc()
		defer p.inFlight.Dec()
	}
	return fn(ctx)
}

// Size is the configured concurrency bound.
func (p *Pool) Size() int {
	return int(p.size)
}
