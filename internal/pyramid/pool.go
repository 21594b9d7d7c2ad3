package pyramid

import (
	"context"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// decodePool runs decode tasks on at most workers goroutines. A pool
// serves exactly one query and is never reused.
type decodePool struct {
	cancel  context.CancelFunc
	done    chan struct{}
	skipped atomic.Int64
}

// startDecodePool feeds tasks to an errgroup limited to workers. Tasks
// that have not started when ctx is cancelled are skipped and counted.
func startDecodePool(ctx context.Context, workers int, tasks []func(context.Context)) *decodePool {
	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(workers, 1))
	p := &decodePool{cancel: cancel, done: make(chan struct{})}

	// Go blocks once the limit is reached, so the feeder runs on its own
	// goroutine and the caller can still time out.
	go func() {
		defer close(p.done)
		for _, task := range tasks {
			if gctx.Err() != nil {
				p.skipped.Add(1)
				continue
			}
			g.Go(func() error {
				if gctx.Err() != nil {
					p.skipped.Add(1)
					return nil
				}
				task(gctx)
				return nil
			})
		}
		_ = g.Wait()
	}()
	return p
}

// wait blocks until every task has finished or timeout elapses, then
// cancels the pool. Tasks still running at that point are abandoned,
// not interrupted. It reports whether the pool finished in time.
func (p *decodePool) wait(timeout time.Duration) bool {
	defer p.cancel()
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.done:
		return true
	case <-t.C:
		return false
	}
}
