package worker

import "sync"

// Task is the unit of work handed from the upload path to the background
// worker: the receipt to populate and the media file to extract it from.
type Task struct {
	ReceiptID string
	MediaPath string
}

// sentinel is the designated stop task. Observing it tells the consumer to
// exit without processing further tasks.
var sentinel = Task{}

func (t Task) isSentinel() bool {
	return t.ReceiptID == ""
}

// Queue is an unbounded FIFO task queue safe for many concurrent producers
// and a single consumer. Enqueue never blocks the caller regardless of
// queue depth; Dequeue blocks until a task is available.
type Queue struct {
	mu    sync.Mutex
	ready *sync.Cond
	tasks []Task
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.ready = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends a task and returns immediately.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
	q.ready.Signal()
}

// Dequeue removes and returns the oldest task, blocking while the queue is
// empty.
func (q *Queue) Dequeue() Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 {
		q.ready.Wait()
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task
}

// Len returns the number of queued tasks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
