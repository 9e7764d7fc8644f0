package pipeline

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Pipeline is the state shared by the stages: the latency tracker and the
// hand-off queue. One instance is built per process and passed to every
// stage.
type Pipeline struct {
	Tracker *Tracker
	Queue   *Queue
}

// New builds a Pipeline. queueLimit 0 leaves the queue unbounded.
func New(queueLimit int) *Pipeline {
	return &Pipeline{
		Tracker: NewTracker(),
		Queue:   NewQueue(queueLimit),
	}
}

// Run drives the consumer, the writer and the reporter until ctx is done,
// then waits for all three to return.
//
// The writer is stopped only after the consumer has returned, so the
// writer's final drain sees every record the consumer pushed.
func Run(ctx context.Context, c *Consumer, w *Writer, r *Reporter) error {
	g, gctx := errgroup.WithContext(ctx)

	writerCtx, stopWriter := context.WithCancel(context.WithoutCancel(gctx))
	defer stopWriter()

	g.Go(func() error {
		defer stopWriter()
		return c.Run(gctx)
	})
	g.Go(func() error {
		return w.Run(writerCtx)
	})
	g.Go(func() error {
		return r.Run(gctx)
	})

	return g.Wait()
}
