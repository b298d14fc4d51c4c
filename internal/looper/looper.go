// Package looper runs posted functions one at a time on a single goroutine.
// State that is only touched from inside posted functions needs no locking.
package looper

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrQuit is returned by Run once the looper has been stopped.
var ErrQuit = errors.New("looper: quit")

type Looper struct {
	queue    chan func()
	done     chan struct{}
	quitOnce sync.Once
	wg       sync.WaitGroup
	quitting atomic.Bool
}

// New creates a looper. Call Start before posting work.
func New() *Looper {
	return &Looper{
		queue: make(chan func(), 64),
		done:  make(chan struct{}),
	}
}

func (l *Looper) Start() {
	l.wg.Add(1)
	go l.loop()
}

func (l *Looper) loop() {
	defer l.wg.Done()
	for {
		select {
		case <-l.done:
			return
		case fn := <-l.queue:
			fn()
		}
	}
}

// Post queues fn. It returns false if the looper has quit.
func (l *Looper) Post(fn func()) bool {
	if l.quitting.Load() {
		return false
	}
	select {
	case l.queue <- fn:
		return true
	case <-l.done:
		return false
	}
}

// Run posts fn and waits for it to finish. If ctx is done by the time fn
// would start, fn is skipped and ctx.Err() is returned. Once fn has started
// Run always waits for it, so the caller never misses its outcome.
// Calling Run from inside a posted function deadlocks; call the function
// directly instead.
func (l *Looper) Run(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	var skipped error
	if !l.Post(func() {
		defer close(finished)
		if err := ctx.Err(); err != nil {
			skipped = err
			return
		}
		fn()
	}) {
		return ErrQuit
	}
	select {
	case <-finished:
		return skipped
	case <-l.done:
		// fn may be mid-flight; the loop goroutine exits after it returns.
		l.wg.Wait()
		select {
		case <-finished:
			return skipped
		default:
			return ErrQuit
		}
	}
}

// PostDelayed schedules fn to run on the looper after d.
// The returned token can cancel it until it starts running.
func (l *Looper) PostDelayed(d time.Duration, fn func()) *Token {
	t := &Token{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if !t.state.CompareAndSwap(tokenPending, tokenRan) {
				return
			}
			fn()
		})
	})
	return t
}

// Quit stops the loop. Queued functions that have not started are dropped.
func (l *Looper) Quit() {
	l.quitOnce.Do(func() {
		l.quitting.Store(true)
		close(l.done)
	})
	l.wg.Wait()
}

const (
	tokenPending int32 = iota
	tokenRan
	tokenCancelled
)

// Token identifies one delayed function.
type Token struct {
	timer *time.Timer
	state atomic.Int32
}

// Cancel prevents the function from running. It reports whether this call
// cancelled it; false means it already ran or was already cancelled.
func (t *Token) Cancel() bool {
	if t == nil {
		return false
	}
	if !t.state.CompareAndSwap(tokenPending, tokenCancelled) {
		return false
	}
	t.timer.Stop()
	return true
}

// Pending reports whether the function is still waiting to run.
func (t *Token) Pending() bool {
	return t != nil && t.state.Load() == tokenPending
}
