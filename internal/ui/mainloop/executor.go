// Package mainloop serializes UI-facing work onto a single goroutine, the
// equivalent of a toolkit's render-thread idle queue. Decode results cross
// from worker goroutines to consumers only through here, so everything the
// view layer observes is delivered in order on one goroutine.
package mainloop

import "sync"

const taskQueueSize = 128

// Executor runs posted tasks one at a time on a dedicated goroutine.
type Executor struct {
	tasks chan func()
	quit  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

// NewExecutor starts the delivery goroutine.
func NewExecutor() *Executor {
	e := &Executor{
		tasks: make(chan func(), taskQueueSize),
		quit:  make(chan struct{}),
	}
	e.wg.Add(1)
	go e.run()
	return e
}

func (e *Executor) run() {
	defer e.wg.Done()
	for {
		select {
		case fn := <-e.tasks:
			fn()
		case <-e.quit:
			// Drain what was already queued before shutting down.
			for {
				select {
				case fn := <-e.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post queues fn for execution. Tasks posted after Close are dropped.
func (e *Executor) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-e.quit:
		return
	default:
	}
	select {
	case e.tasks <- fn:
	case <-e.quit:
	}
}

// Close stops the executor after draining queued tasks and waits for the
// delivery goroutine to exit.
func (e *Executor) Close() {
	e.once.Do(func() { close(e.quit) })
	e.wg.Wait()
}
