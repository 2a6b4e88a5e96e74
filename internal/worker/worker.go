package worker

import (
	"log/slog"
)

// Handler processes a single dequeued task. Implementations are expected to
// record failures on the receipt themselves; a returned error means the task
// could not even reach the record and is only logged.
type Handler interface {
	Handle(task Task) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(task Task) error

// Handle calls f(task).
func (f HandlerFunc) Handle(task Task) error {
	return f(task)
}

// Worker owns the single consumer goroutine draining a Queue. Exactly one
// task is processed at a time, strictly in FIFO order, so only one inference
// pass ever runs against the extraction backend.
type Worker struct {
	queue   *Queue
	handler Handler
	done    chan struct{}
}

// New creates a worker for the given queue. Start must be called before
// tasks are consumed.
func New(queue *Queue, handler Handler) *Worker {
	return &Worker{
		queue:   queue,
		handler: handler,
		done:    make(chan struct{}),
	}
}

// Start launches the consumer goroutine.
func (w *Worker) Start() {
	go w.run()
}

// Stop enqueues the stop sentinel and waits for the consumer to drain up to
// it and exit. Tasks enqueued before Stop are still processed; an in-flight
// task runs to completion.
func (w *Worker) Stop() {
	w.queue.Enqueue(sentinel)
	<-w.done
}

func (w *Worker) run() {
	defer close(w.done)
	slog.Info("Receipt processing worker started")
	for {
		task, ok := w.next()
		if !ok {
			continue
		}
		if task.isSentinel() {
			slog.Info("Receipt processing worker stopping")
			return
		}
		w.process(task)
	}
}

// next dequeues one task. A panic in the dequeue path is logged and the loop
// retries; the only consumer must never silently die.
func (w *Worker) next() (task Task, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Error in worker loop", "panic", r)
			ok = false
		}
	}()
	return w.queue.Dequeue(), true
}

// process runs the handler for one task. Any fault, including a panic, is
// caught and logged so one bad receipt never stops the queue.
func (w *Worker) process(task Task) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic while processing receipt", "receipt_id", task.ReceiptID, "panic", r)
		}
	}()
	if err := w.handler.Handle(task); err != nil {
		slog.Error("Error processing receipt", "receipt_id", task.ReceiptID, "error", err)
	}
}
