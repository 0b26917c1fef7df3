package playback

import (
	"sync"
	"time"
)

// Scheduler runs tasks on a single execution context.
type Scheduler interface {
	// After queues task to run once delay has elapsed
	After(delay time.Duration, task func())
	// Do runs task as soon as possible and waits for it to finish.
	// Must not be called from a task.
	Do(task func())
	// Close stops accepting tasks. Pending tasks are dropped.
	Close()
}

// Worker is a Scheduler backed by one goroutine: tasks never overlap and observe
// each other's effects in queue order.
type Worker struct {
	tasks     chan func()
	quit      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewWorker starts worker goroutine
func NewWorker() *Worker {
	w := &Worker{
		tasks: make(chan func()),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *Worker) run() {
	defer close(w.done)
	for {
		select {
		case task := <-w.tasks:
			task()
		case <-w.quit:
			return
		}
	}
}

func (w *Worker) enqueue(task func()) bool {
	select {
	case w.tasks <- task:
		return true
	case <-w.quit:
		return false
	}
}

// After implements Scheduler
func (w *Worker) After(delay time.Duration, task func()) {
	if delay <= 0 {
		go w.enqueue(task)
		return
	}
	time.AfterFunc(delay, func() {
		w.enqueue(task)
	})
}

// Do implements Scheduler
func (w *Worker) Do(task func()) {
	finished := make(chan struct{})
	if !w.enqueue(func() {
		defer close(finished)
		task()
	}) {
		return
	}
	select {
	case <-finished:
	case <-w.done:
	}
}

// Close implements Scheduler
func (w *Worker) Close() {
	w.closeOnce.Do(func() {
		close(w.quit)
	})
	<-w.done
}
