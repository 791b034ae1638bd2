package world

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// pendingOp is one world change requested from outside the tick goroutine.
type pendingOp struct {
	fn   func() error
	done chan error
}

// Submit queues fn for the next input phase and waits for its result. A
// caller whose ctx ends stops waiting; the change is still applied.
func (w *World) Submit(ctx context.Context, fn func() error) error {
	op := pendingOp{fn: fn, done: make(chan error, 1)}
	w.pendingMu.Lock()
	w.pending = append(w.pending, op)
	w.pendingMu.Unlock()

	select {
	case err := <-op.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyPending runs every queued change in submission order on the calling
// goroutine and reports how many ran.
func (w *World) ApplyPending() int {
	w.pendingMu.Lock()
	ops := w.pending
	w.pending = nil
	w.pendingMu.Unlock()

	for _, op := range ops {
		op.done <- w.applyOp(op.fn)
	}
	return len(ops)
}

func (w *World) applyOp(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("queued world change panic", zap.Any("panic", r), zap.Stack("stack"))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
