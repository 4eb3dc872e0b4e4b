package location

import (
	"context"
	"sync"
	"time"
)

// Searcher is satisfied by *Service.
type Searcher interface {
	Search(ctx context.Context, text string) []Place
}

// Debouncer coalesces keystroke-level input into one search per quiet period.
// A newer Input cancels both the pending timer and any in-flight search, so
// only results for the latest text are delivered.
type Debouncer struct {
	search Searcher
	wait   time.Duration

	mu     sync.Mutex
	seq    uint64
	timer  *time.Timer
	cancel context.CancelFunc
	closed bool
}

func NewDebouncer(search Searcher, wait time.Duration) *Debouncer {
	return &Debouncer{search: search, wait: wait}
}

// Input schedules a search for text. deliver runs on a timer goroutine while
// the debouncer is locked; it must not block or call back into the Debouncer.
func (d *Debouncer) Input(text string, deliver func(text string, places []Place)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.seq++
	seq := d.seq
	d.stopLocked()

	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		if seq != d.seq || d.closed {
			d.mu.Unlock()
			return
		}
		ctx, cancel := context.WithCancel(context.Background())
		d.cancel = cancel
		d.mu.Unlock()

		places := d.search.Search(ctx, text)
		cancel()

		d.mu.Lock()
		defer d.mu.Unlock()
		if seq != d.seq || d.closed {
			return
		}
		d.cancel = nil
		deliver(text, places)
	})
}

// Stop cancels pending work; later Input calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.stopLocked()
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
}
