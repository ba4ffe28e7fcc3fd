package review

import (
	"context"
	"errors"
	"log"
	"time"
)

// Dispatcher routes fan-out execution for a committed resolution. The two
// implementations place the work differently — in the acting client's
// request or in a background worker — but read and write the same documents
// and rely on the same fan-out de-duplication.
type Dispatcher interface {
	Dispatch(ctx context.Context, event ResolutionEvent) error
}

// ClientDispatcher runs fan-out synchronously in the caller's request,
// bounded by a timeout. Partial failure is surfaced to the actor; the
// outbox record is closed either way because client mode has no retrier.
type ClientDispatcher struct {
	fanout  *Fanout
	outbox  *Outbox
	timeout time.Duration
}

func NewClientDispatcher(fanout *Fanout, outbox *Outbox, timeout time.Duration) *ClientDispatcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ClientDispatcher{fanout: fanout, outbox: outbox, timeout: timeout}
}

func (d *ClientDispatcher) Dispatch(ctx context.Context, event ResolutionEvent) error {
	fanoutCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	_, err := d.fanout.Fanout(fanoutCtx, FanoutEvent(event))
	var partial *PartialFanoutFailure
	switch {
	case err == nil:
		if markErr := d.outbox.MarkDone(ctx, event.ID); markErr != nil {
			log.Printf("dispatch: mark done %s: %v", event.ID, markErr)
		}
		return nil
	case errors.As(err, &partial):
		if markErr := d.outbox.MarkFailed(ctx, event.ID, partial.Error()); markErr != nil {
			log.Printf("dispatch: mark failed %s: %v", event.ID, markErr)
		}
		return partial
	default:
		if markErr := d.outbox.MarkFailed(ctx, event.ID, err.Error()); markErr != nil {
			log.Printf("dispatch: mark failed %s: %v", event.ID, markErr)
		}
		return err
	}
}

// Signaler wakes the server-mode worker. Best effort: the worker's polling
// loop is the delivery guarantee, the signal only shortens the latency.
type Signaler interface {
	Nudge(ctx context.Context) error
}

// ServerDispatcher leaves the outbox record for the worker and returns
// immediately, so the actor's request never waits on fan-out.
type ServerDispatcher struct {
	signal Signaler
}

func NewServerDispatcher(signal Signaler) *ServerDispatcher {
	return &ServerDispatcher{signal: signal}
}

func (d *ServerDispatcher) Dispatch(ctx context.Context, event ResolutionEvent) error {
	if d.signal != nil {
		if err := d.signal.Nudge(ctx); err != nil {
			log.Printf("dispatch: nudge worker: %v", err)
		}
	}
	return nil
}

// WorkerConfig tunes the server-mode drain loop.
type WorkerConfig struct {
	Interval     time.Duration // poll period; progress does not depend on nudges
	EventTimeout time.Duration // per-event fan-out budget
	BaseBackoff  time.Duration // first retry delay, doubled per attempt
	MaxBackoff   time.Duration
	MaxAttempts  int // after this many attempts the event is marked failed
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 30 * time.Second
	}
	if c.BaseBackoff <= 0 {
		c.BaseBackoff = 2 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Worker drains the outbox in server mode: claim, fan out, mark done.
// Failed events retry with exponential backoff until the attempt ceiling,
// then are marked failed and skipped so one poisoned event cannot stall the
// queue. Fan-out idempotence makes redelivery after a crash safe.
type Worker struct {
	outbox *Outbox
	fanout *Fanout
	wake   <-chan struct{}
	cfg    WorkerConfig
}

func NewWorker(outbox *Outbox, fanout *Fanout, wake <-chan struct{}, cfg WorkerConfig) *Worker {
	return &Worker{outbox: outbox, fanout: fanout, wake: wake, cfg: cfg.withDefaults()}
}

// Run blocks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.drain(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.drain(ctx)
		case _, ok := <-w.wake:
			if !ok {
				w.wake = nil
				continue
			}
			w.drain(ctx)
		}
	}
}

// Drain processes every due outbox event once. Exported for tests and for
// one-shot draining at startup.
func (w *Worker) Drain(ctx context.Context) {
	w.drain(ctx)
}

func (w *Worker) drain(ctx context.Context) {
	events, err := w.outbox.Due(ctx)
	if err != nil {
		log.Printf("worker: list outbox: %v", err)
		return
	}
	for _, event := range events {
		if ctx.Err() != nil {
			return
		}
		w.process(ctx, event)
	}
}

func (w *Worker) process(ctx context.Context, event ResolutionEvent) {
	claimed, ok, err := w.outbox.Claim(ctx, event.ID, w.backoff(event.Attempts+1))
	if err != nil {
		log.Printf("worker: claim %s: %v", event.ID, err)
		return
	}
	if !ok {
		return
	}
	if claimed.Attempts > w.cfg.MaxAttempts {
		log.Printf("worker: event %s exceeded %d attempts, marking failed", event.ID, w.cfg.MaxAttempts)
		if err := w.outbox.MarkFailed(ctx, event.ID, "attempt ceiling reached"); err != nil {
			log.Printf("worker: mark failed %s: %v", event.ID, err)
		}
		return
	}

	fanoutCtx, cancel := context.WithTimeout(ctx, w.cfg.EventTimeout)
	written, err := w.fanout.Fanout(fanoutCtx, FanoutEvent(claimed))
	cancel()
	if err != nil {
		// Leave pending; Claim already scheduled the retry window.
		log.Printf("worker: fanout %s (attempt %d): %v", event.ID, claimed.Attempts, err)
		return
	}
	if err := w.outbox.MarkDone(ctx, event.ID); err != nil {
		log.Printf("worker: mark done %s: %v", event.ID, err)
		return
	}
	if written > 0 {
		log.Printf("worker: event %s notified %d recipient(s)", event.ID, written)
	}
}

func (w *Worker) backoff(attempt int) time.Duration {
	d := w.cfg.BaseBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= w.cfg.MaxBackoff {
			return w.cfg.MaxBackoff
		}
	}
	return d
}
