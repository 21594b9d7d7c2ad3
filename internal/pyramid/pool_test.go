package pyramid

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

func TestDecodePoolRunsEveryTaskWithinLimit(t *testing.T) {
	c := qt.New(t)
	var running, peak, done atomic.Int32
	tasks := make([]func(context.Context), 20)
	for i := range tasks {
		tasks[i] = func(context.Context) {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			running.Add(-1)
			done.Add(1)
		}
	}

	p := startDecodePool(context.Background(), 3, tasks)
	c.Assert(p.wait(5*time.Second), qt.IsTrue)
	c.Assert(done.Load(), qt.Equals, int32(20))
	c.Assert(peak.Load() <= 3, qt.IsTrue, qt.Commentf("peak %d", peak.Load()))
	c.Assert(p.skipped.Load(), qt.Equals, int64(0))
}

func TestDecodePoolSkipsAfterCancel(t *testing.T) {
	c := qt.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var ran atomic.Int32
	tasks := make([]func(context.Context), 5)
	for i := range tasks {
		tasks[i] = func(context.Context) {
			ran.Add(1)
			cancel()
		}
	}

	p := startDecodePool(ctx, 1, tasks)
	c.Assert(p.wait(5*time.Second), qt.IsTrue)
	c.Assert(ran.Load(), qt.Equals, int32(1))
	c.Assert(p.skipped.Load(), qt.Equals, int64(4))
}

func TestDecodePoolWaitTimesOut(t *testing.T) {
	c := qt.New(t)
	release := make(chan struct{})
	var ran atomic.Int32
	tasks := make([]func(context.Context), 3)
	for i := range tasks {
		tasks[i] = func(context.Context) {
			ran.Add(1)
			<-release
		}
	}

	p := startDecodePool(context.Background(), 1, tasks)
	c.Assert(p.wait(20*time.Millisecond), qt.IsFalse)
	close(release)
	<-p.done
	c.Assert(ran.Load(), qt.Equals, int32(1))
	c.Assert(p.skipped.Load(), qt.Equals, int64(2))
}
