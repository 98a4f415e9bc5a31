package worker

import (
	"errors"
	"sync"
)

// Returned when sending a task to a stopped worker.
var ErrWorkerClosed = errors.New("worker is closed")

// Configuration for the worker.
type Config[T any] struct {
	// A closure that is executed upon reception of a task. Tasks are executed
	// one at a time, in the order in which they were sent.
	OnTask func(T)
	// Optional closure that is called once the worker has drained its queue after `Stop`.
	OnStop func()
}

// Worker executes tasks sequentially on its own goroutine. The queue is unbounded,
// so a slow task delays the ones behind it but never causes them to be rejected.
type Worker[T any] struct {
	mutex  sync.Mutex
	queue  []T
	closed bool
	wake   chan struct{}
	done   <-chan struct{}
}

// Stop the worker unless already stopped. Tasks that are already queued are still handed to `OnTask`.
func (w *Worker[T]) Stop() {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.closed {
		w.closed = true
		w.notify()
	}
}

// Send a task to the worker. Never blocks, returns `ErrWorkerClosed` if the worker has been stopped.
func (w *Worker[T]) Send(task T) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if w.closed {
		return ErrWorkerClosed
	}

	w.queue = append(w.queue, task)
	w.notify()

	return nil
}

// Done is closed once the worker goroutine has returned.
func (w *Worker[T]) Done() <-chan struct{} {
	return w.done
}

// Must be called with the mutex held.
func (w *Worker[T]) notify() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Takes every queued task at once.
func (w *Worker[T]) take() ([]T, bool) {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	tasks := w.queue
	w.queue = nil

	return tasks, w.closed
}

func (w *Worker[T]) run(c Config[T], done chan<- struct{}) {
	defer close(done)

	for range w.wake {
		for {
			tasks, closed := w.take()
			if len(tasks) == 0 {
				if closed {
					if c.OnStop != nil {
						c.OnStop()
					}
					return
				}
				break
			}

			for _, task := range tasks {
				c.OnTask(task)
			}
		}
	}
}

// Starts a worker that runs until `Stop` is called.
func StartWorker[T any](c Config[T]) *Worker[T] {
	done := make(chan struct{})
	w := &Worker[T]{wake: make(chan struct{}, 1), done: done}

	go w.run(c, done)

	return w
}
