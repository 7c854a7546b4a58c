package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync/atomic"
)

// Pool bounds the number of CPU-bound jobs running at once
type Pool struct {
	semaphore chan struct{}
	active    atomic.Int64
	completed atomic.Uint64
	onChange  func(active int)
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	Size      int    `json:"size"`
	Active    int    `json:"active"`
	Completed uint64 `json:"completed"`
}

// NewPool creates a pool of size workers. Size 0 uses GOMAXPROCS.
func NewPool(size int, onChange func(active int)) (*Pool, error) {
	if size < 0 {
		return nil, fmt.Errorf("worker pool size cannot be negative, got %d", size)
	}
	if size == 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{semaphore: make(chan struct{}, size), onChange: onChange}, nil
}

// Do runs fn once a worker is free. It returns ctx.Err() if the context
// ends first; fn is not started in that case.
func (p *Pool) Do(ctx context.Context, fn func() error) error {
	select {
	case p.semaphore <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	p.changed(p.active.Add(1))

	defer func() {
		<-p.semaphore
		p.completed.Add(1)
		p.changed(p.active.Add(-1))
	}()

	return fn()
}

func (p *Pool) changed(active int64) {
	if p.onChange != nil {
		p.onChange(int(active))
	}
}

// GetStats returns current pool statistics
func (p *Pool) GetStats() PoolStats {
	return PoolStats{
		Size:      cap(p.semaphore),
		Active:    int(p.active.Load()),
		Completed: p.completed.Load(),
	}
}
