package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/applytrack/internal/metrics"
)

// Async runs the handler in its own goroutine, detached from the caller's
// cancellation, so a request can return before notifications are created.
type Async struct {
	handler Handler
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewAsync creates an in-process publisher. timeout bounds each handler run.
func NewAsync(handler Handler, timeout time.Duration, logger *zap.Logger) *Async {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Async{
		handler: handler,
		timeout: timeout,
		logger:  logger,
	}
}

// Publish never blocks on the handler and never fails.
func (a *Async) Publish(ctx context.Context, ev Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				a.logger.Error("event handler panicked",
					zap.String("kind", string(ev.Kind)),
					zap.Int64("application_id", ev.Application.ID),
					zap.String("panic", fmt.Sprint(r)),
				)
			}
		}()

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
		defer cancel()

		if err := a.handler.Handle(hctx, ev); err != nil {
			a.logger.Error("event handler failed",
				zap.Error(err),
				zap.String("kind", string(ev.Kind)),
				zap.Int64("application_id", ev.Application.ID),
			)
			return
		}
	}()

	metrics.RecordEventPublished("async", string(ev.Kind), "ok")
	return nil
}

// Wait blocks until every published event has been handled.
func (a *Async) Wait() {
	a.wg.Wait()
}
