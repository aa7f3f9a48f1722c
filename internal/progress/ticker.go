package progress

import (
	"sync"
	"time"
)

// Ticker is a cancellable repeating interval owned by exactly one caller.
// Stop may be called any number of times, from any goroutine, before or after
// the loop has ended on its own.
type Ticker struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	start    sync.Once
	halt     sync.Once
}

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Run starts the loop. fn receives the 1-based tick number; returning false
// ends the loop. Only the first call has any effect.
func (t *Ticker) Run(fn func(tick int) bool) {
	t.start.Do(func() {
		go t.loop(fn)
	})
}

func (t *Ticker) loop(fn func(tick int) bool) {
	defer close(t.done)

	tk := time.NewTicker(t.interval)
	defer tk.Stop()

	for n := 1; ; n++ {
		select {
		case <-t.stop:
			return
		case <-tk.C:
			// Stop wins over a tick that became ready at the same time.
			select {
			case <-t.stop:
				return
			default:
			}
			if !fn(n) {
				return
			}
		}
	}
}

// Stop ends the loop. A tick that raced past the stop check may still reach fn
// once, so callers needing a hard cut-off re-check their own state inside fn.
func (t *Ticker) Stop() {
	t.halt.Do(func() {
		close(t.stop)
	})
}

// Done is closed once the loop goroutine has exited. It is never closed for a
// ticker that was not Run.
func (t *Ticker) Done() <-chan struct{} {
	return t.done
}
