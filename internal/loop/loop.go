// Package loop runs the POS engine on a single goroutine. Every piece of cart,
// catalog and checkout state is touched only from inside the loop; blocking
// collaborator calls run elsewhere and post their completion back.
package loop

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/tomb.v2"
)

var ErrStopped = errors.New("event loop stopped")

// Dispatcher schedules work for the engine.
//
// Post queues fn to run on the loop. Go runs work off the loop; the function
// it returns, if any, is then posted back to the loop.
type Dispatcher interface {
	Post(fn func())
	Go(work func(ctx context.Context) func())
}

type Loop struct {
	log  *zap.Logger
	tomb tomb.Tomb

	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	running bool
	stopped bool
}

func New(log *zap.Logger) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loop{
		log:  log,
		wake: make(chan struct{}, 1),
	}
}

// Post never blocks, so it is safe to call from inside the loop itself.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enqueue(fn)
}

func (l *Loop) enqueue(fn func()) {
	if l.stopped {
		return
	}
	l.queue = append(l.queue, fn)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Go starts work on a goroutine tracked by the loop's tomb. Work handed to Go
// before Run is held on the queue and started once the loop is running.
func (l *Loop) Go(work func(ctx context.Context) func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped {
		return
	}
	if !l.running {
		l.enqueue(func() { l.Go(work) })
		return
	}

	ctx := l.tomb.Context(nil)
	l.tomb.Go(func() error {
		if done := work(ctx); done != nil {
			l.Post(done)
		}
		return nil
	})
}

// Do runs fn on the loop and waits for it to finish.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	l.mu.Lock()
	stopped := l.stopped
	l.mu.Unlock()
	if stopped {
		return ErrStopped
	}

	finished := make(chan struct{})
	l.Post(func() {
		defer close(finished)
		fn()
	})

	select {
	case <-finished:
		return nil
	case <-l.tomb.Dead():
		// The loop may have run fn right before stopping.
		select {
		case <-finished:
			return nil
		default:
			return ErrStopped
		}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled or the loop is killed, then
// waits for every goroutine started with Go. Workers receive a context that
// is cancelled as soon as the loop starts dying.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	if l.running || l.stopped {
		l.mu.Unlock()
		return errors.New("event loop already running")
	}
	l.running = true
	l.tomb.Go(func() error {
		return l.loop(ctx)
	})
	l.mu.Unlock()
	return l.tomb.Wait()
}

// Kill stops the loop with reason; a nil reason makes Run return nil.
func (l *Loop) Kill(reason error) {
	l.tomb.Kill(reason)
}

// Dying is closed once the loop has been asked to stop.
func (l *Loop) Dying() <-chan struct{} {
	return l.tomb.Dying()
}

func (l *Loop) loop(ctx context.Context) error {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.queue
		l.queue = nil
		l.mu.Unlock()

		for _, fn := range batch {
			l.run(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.tomb.Dying():
			return tomb.ErrDying
		case <-l.wake:
		}
	}
}

func (l *Loop) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("event loop task panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// Runner is a Dispatcher that can also run a function and wait for it.
type Runner interface {
	Dispatcher
	Do(ctx context.Context, fn func()) error
}

// Inline runs everything synchronously on the caller's goroutine.
type Inline struct{}

func (Inline) Do(ctx context.Context, fn func()) error {
	fn()
	return nil
}

func (Inline) Post(fn func()) { fn() }

func (Inline) Go(work func(ctx context.Context) func()) {
	if done := work(context.Background()); done != nil {
		done()
	}
}
