// Package tilestream carries decoded tiles from query workers to a consumer.
package tilestream

import (
	"context"
	"sync"

	"go.ngs.io/raster-pyramid/internal/domain"
)

// Queue is an unbounded multi-producer, single-consumer tile queue.
// Closing it marks the end of the stream: the consumer sees every tile
// pushed before Close and then stops. Pushes after Close are dropped.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []domain.DecodedTile
	closed bool
}

// NewQueue returns an empty open queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push appends a tile. It never blocks and reports false if the queue
// was already closed.
func (q *Queue) Push(t domain.DecodedTile) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, t)
	q.cond.Signal()
	return true
}

// Close ends the stream. Calling it more than once is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of tiles waiting to be consumed.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Next blocks until a tile is available or the stream has ended. It
// returns false once the queue is closed and empty. A cancelled context
// returns its error.
func (q *Queue) Next(ctx context.Context) (domain.DecodedTile, bool, error) {
	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		q.cond.Broadcast()
	})
	defer stop()

	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		if err := ctx.Err(); err != nil {
			return domain.DecodedTile{}, false, err
		}
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return domain.DecodedTile{}, false, nil
	}
	t := q.items[0]
	q.items[0] = domain.DecodedTile{}
	q.items = q.items[1:]
	return t, true, nil
}

// Drain collects every tile until the stream ends or ctx is done.
func (q *Queue) Drain(ctx context.Context) ([]domain.DecodedTile, error) {
	var out []domain.DecodedTile
	for {
		t, ok, err := q.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, t)
	}
}
