package macroengine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Invocation is a running instance of a top-level macro: one goroutine
// driving Macro.Run, with a channel signaling completion. One goroutine runs
// per top-level macro invocation; a macro's children are awaited directly on
// that same goroutine rather than spawning more.
type Invocation struct {
	macro *Macro

	mu       sync.RWMutex
	done     chan struct{}
	err      error
	finished bool
}

// Spawn starts macro running against h on its own goroutine and returns a
// handle for awaiting completion.
func Spawn(ctx context.Context, macro *Macro, h Handler) *Invocation {
	inv := &Invocation{
		macro: macro,
		done:  make(chan struct{}),
	}

	go func() {
		defer close(inv.done)
		err := macro.Run(ctx, h)
		inv.mu.Lock()
		inv.err = err
		inv.finished = true
		inv.mu.Unlock()
	}()

	return inv
}

// Wait blocks until the invocation completes and returns the error (if any)
// Macro.Run returned.
func (inv *Invocation) Wait() error {
	<-inv.done
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.err
}

// Done reports whether the invocation has finished without blocking.
func (inv *Invocation) Done() bool {
	select {
	case <-inv.done:
		return true
	default:
		return false
	}
}

// Scheduler supervises the set of concurrently running top-level macro
// invocations in a process, propagating the first error and supporting a
// shared cancellation context across all of them.
type Scheduler struct {
	group *errgroup.Group
	ctx   context.Context
}

// NewScheduler returns a Scheduler whose invocations share ctx for
// cancellation (e.g. on injector shutdown).
func NewScheduler(ctx context.Context) *Scheduler {
	group, gctx := errgroup.WithContext(ctx)
	return &Scheduler{group: group, ctx: gctx}
}

// Run starts macro running against h under the scheduler's shared context,
// as one of the supervised top-level invocations.
func (s *Scheduler) Run(macro *Macro, h Handler) {
	s.group.Go(func() error {
		return macro.Run(s.ctx, h)
	})
}

// Wait blocks until every supervised invocation completes, returning the
// first non-nil error encountered (if any).
func (s *Scheduler) Wait() error {
	return s.group.Wait()
}
