// Package pool implements ResourcePool (spec.md §4.8): fixed-size pools
// of recognizer/synthesizer instances, acquired on call start and
// released on teardown. Grounded on the teacher's distributed
// RTPPortAllocator (sip/infra/rtp_port_allocator.go) for the
// acquire/release/reclaim shape, adapted here to an in-process
// generic pool since recognizer/synthesizer instances are not
// shareable across processes.
package pool

import (
	"context"
	"fmt"

	"github.com/rapidaai/voicecore/internal/commons"
)

// Resettable is satisfied by anything a Pool manages: spec.md §4.8
// requires "a released instance must be stopped or reset before
// reuse."
type Resettable interface {
	Reset() error
}

// Pool is a fixed-size pool of instances of type T. New builds and
// fills the pool on process start; Acquire blocks until an instance is
// available or ctx is cancelled; Release resets and returns an
// instance for reuse.
type Pool[T Resettable] struct {
	logger commons.Logger
	name   string
	slots  chan T
}

// New builds a Pool of size and fills it by calling factory size
// times. Pool size defaults to 8 per spec.md §4.8; callers pass the
// configured size explicitly.
func New[T Resettable](logger commons.Logger, name string, size int, factory func() (T, error)) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool %s: size must be positive, got %d", name, size)
	}
	p := &Pool[T]{
		logger: logger,
		name:   name,
		slots:  make(chan T, size),
	}
	for i := 0; i < size; i++ {
		inst, err := factory()
		if err != nil {
			return nil, fmt.Errorf("pool %s: prepare instance %d: %w", name, i, err)
		}
		p.slots <- inst
	}
	logger.Infow("resource pool prepared", "pool", name, "size", size)
	return p, nil
}

// Acquire returns a ready instance, waiting until one is released or
// ctx is cancelled.
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	select {
	case inst := <-p.slots:
		return inst, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Release resets inst and returns it to the pool for reuse. Reset
// errors are logged but never block the return of the slot — a
// mis-reset instance is still better recycled than leaked, and the
// next Acquire's caller is responsible for re-initializing it via its
// own Start call.
func (p *Pool[T]) Release(inst T) {
	if err := inst.Reset(); err != nil {
		p.logger.Warnw("resource pool: reset failed on release", "pool", p.name, "error", err)
	}
	select {
	case p.slots <- inst:
	default:
		p.logger.Errorw("resource pool: release on full pool, dropping instance", "pool", p.name)
	}
}

// Len returns the number of instances currently idle in the pool.
func (p *Pool[T]) Len() int {
	return len(p.slots)
}
