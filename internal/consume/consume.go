// Package consume implements the generic read-handle-delete loop shared by
// all three pipeline stages: read with a visibility
// timeout, invoke the stage's handler, delete on success, otherwise leave
// the message for redelivery once its visibility expires.
package consume

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/batchtx/transcriber/internal/logger"
	"github.com/batchtx/transcriber/internal/metrics"
	"github.com/batchtx/transcriber/internal/pgqueue"
)

const (
	// visibilityTimeoutSeconds bounds how long a reserved message stays
	// invisible to other readers while its handler runs.
	visibilityTimeoutSeconds = 30
	idleSleep                = time.Second
)

// Handler processes one delivery and reports whether the message should be
// deleted. Returning false (or panicking) leaves the message in place for
// redelivery once the visibility timeout elapses.
type Handler[T any] func(ctx context.Context, msg pgqueue.Message[T]) bool

// Run polls q until ctx is cancelled. name identifies the stage in logs.
func Run[T any](ctx context.Context, q pgqueue.Client[T], handle Handler[T], name string) {
	logger.Log.Info("consume loop starting", zap.String("queue", name))
	defer logger.Log.Info("consume loop stopped", zap.String("queue", name))

	for {
		if ctx.Err() != nil {
			return
		}

		msg, ok, err := q.Read(ctx, visibilityTimeoutSeconds)
		if err != nil {
			logger.ErrorErr("consume read failed", err, logger.WithQueue(name))
			if !sleepOrDone(ctx, idleSleep) {
				return
			}
			continue
		}
		if !ok {
			if !sleepOrDone(ctx, idleSleep) {
				return
			}
			continue
		}

		if msg.ReadCt > 1 {
			metrics.Get().RetriesTotal.WithLabelValues(name).Inc()
		}

		start := time.Now()
		done := invokeHandler(ctx, handle, *msg, name)
		metrics.Get().HandlerDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())

		if done {
			metrics.Get().MessagesProcessedTotal.WithLabelValues(name, "success").Inc()
			if err := q.Delete(ctx, msg.ID); err != nil {
				logger.ErrorErr("consume delete failed", err,
					logger.WithQueue(name), zap.Int64("msg_id", msg.ID))
			}
		} else {
			metrics.Get().MessagesProcessedTotal.WithLabelValues(name, "failure").Inc()
		}
	}
}

// invokeHandler runs handle with panic recovery so one bad message never
// kills the worker goroutine; a panic is treated as a failed delivery and
// the message is left for redelivery.
func invokeHandler[T any](ctx context.Context, handle Handler[T], msg pgqueue.Message[T], name string) (done bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("consume handler panicked",
				zap.String("queue", name), zap.Int64("msg_id", msg.ID), zap.Any("panic", r))
			done = false
		}
	}()
	return handle(ctx, msg)
}

// sleepOrDone waits for d or ctx cancellation, whichever comes first,
// reporting false if the context won.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
