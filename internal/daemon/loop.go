package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BurntSushi/xgb"
)

// ErrLoopStopped is returned for work handed to a loop that is no longer
// running.
var ErrLoopStopped = errors.New("event loop stopped")

// EventSource delivers batches of X events until ctx is done or the
// connection fails. x11.Connection.ReceiveEvents satisfies it.
type EventSource func(ctx context.Context, handle func([]xgb.Event)) error

// Dispatcher is the event sink run by a Loop.
type Dispatcher interface {
	Dispatch(ev xgb.Event)
	Flush()
}

// Loop owns the goroutine that touches window manager state. X events and
// closures posted from other goroutines are run on it one at a time.
type Loop struct {
	disp   Dispatcher
	source EventSource
	logger *slog.Logger

	batches chan []xgb.Event
	funcs   chan func()

	once    sync.Once
	stopped chan struct{}
}

// NewLoop returns a loop feeding events from source into disp.
func NewLoop(disp Dispatcher, source EventSource, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		disp:    disp,
		source:  source,
		logger:  logger.With("component", "loop"),
		batches: make(chan []xgb.Event, 16),
		funcs:   make(chan func(), 64),
		stopped: make(chan struct{}),
	}
}

func (l *Loop) String() string { return "event-loop" }

// Serve runs the loop until ctx is done or the event source fails. A loop
// runs once; the source error is returned so the caller can shut down.
func (l *Loop) Serve(ctx context.Context) error {
	select {
	case <-l.stopped:
		return ErrLoopStopped
	default:
	}
	defer l.once.Do(func() { close(l.stopped) })

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	srcErr := make(chan error, 1)
	go func() {
		srcErr <- l.source(ctx, func(batch []xgb.Event) {
			select {
			case l.batches <- batch:
			case <-ctx.Done():
			}
		})
	}()

	l.logger.Debug("event loop started")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-srcErr:
			// Drain what the source handed over before it stopped.
			l.drainBatches()
			if err == nil {
				err = errors.New("event source stopped")
			}
			return fmt.Errorf("event source: %w", err)
		case batch := <-l.batches:
			l.dispatch(batch)
		case fn := <-l.funcs:
			l.protect("posted function", fn)
		}
	}
}

func (l *Loop) drainBatches() {
	for {
		select {
		case batch := <-l.batches:
			l.dispatch(batch)
		default:
			return
		}
	}
}

func (l *Loop) dispatch(batch []xgb.Event) {
	for _, ev := range batch {
		l.protect("event", func() { l.disp.Dispatch(ev) })
	}
	if len(l.batches) == 0 {
		l.disp.Flush()
	}
}

// protect runs fn, logging instead of crashing the window manager if it
// panics.
func (l *Loop) protect(what string, fn func()) {
	defer func() {
		if err := recover(); err != nil {
			l.logger.Error(what+" handler panicked", "error", err)
		}
	}()
	fn()
}

// Post queues fn to run on the loop goroutine. It reports false if the
// loop has stopped.
func (l *Loop) Post(fn func()) bool {
	select {
	case <-l.stopped:
		return false
	default:
	}
	select {
	case l.funcs <- fn:
		return true
	case <-l.stopped:
		return false
	}
}

// Do runs fn on the loop goroutine and waits for its result.
func (l *Loop) Do(ctx context.Context, fn func() error) error {
	errC := make(chan error, 1)
	if !l.Post(func() { errC <- fn() }) {
		return ErrLoopStopped
	}
	select {
	case err := <-errC:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.stopped:
		select {
		case err := <-errC:
			return err
		default:
			return ErrLoopStopped
		}
	}
}
