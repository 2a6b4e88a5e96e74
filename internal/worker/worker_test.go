package worker

import (
	"errors"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// recordingHandler collects processed tasks and can be told to fail
type recordingHandler struct {
	mu        sync.Mutex
	processed []string
	failOn    map[string]error
	panicOn   map[string]bool
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		failOn:  make(map[string]error),
		panicOn: make(map[string]bool),
	}
}

func (h *recordingHandler) Handle(task Task) error {
	if h.panicOn[task.ReceiptID] {
		panic("handler exploded")
	}
	h.mu.Lock()
	h.processed = append(h.processed, task.ReceiptID)
	h.mu.Unlock()
	return h.failOn[task.ReceiptID]
}

func (h *recordingHandler) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.processed...)
}

var _ = Describe("Worker", func() {
	var (
		queue   *Queue
		handler *recordingHandler
		w       *Worker
	)

	BeforeEach(func() {
		queue = NewQueue()
		handler = newRecordingHandler()
		w = New(queue, handler)
	})

	Describe("Start and Stop", func() {
		It("should drain queued tasks before stopping at the sentinel", func() {
			queue.Enqueue(Task{ReceiptID: "one"})
			queue.Enqueue(Task{ReceiptID: "two"})

			w.Start()
			w.Stop()

			Expect(handler.snapshot()).To(Equal([]string{"one", "two"}))
		})

		It("should process tasks strictly one at a time in order", func() {
			for _, id := range []string{"a", "b", "c", "d", "e"} {
				queue.Enqueue(Task{ReceiptID: id})
			}

			w.Start()
			w.Stop()

			Expect(handler.snapshot()).To(Equal([]string{"a", "b", "c", "d", "e"}))
		})
	})

	When("a handler returns an error", func() {
		It("should continue with the next task", func() {
			handler.failOn["bad"] = errors.New("extraction blew up")
			queue.Enqueue(Task{ReceiptID: "bad"})
			queue.Enqueue(Task{ReceiptID: "good"})

			w.Start()
			w.Stop()

			Expect(handler.snapshot()).To(ContainElement("good"))
		})
	})

	When("a handler panics", func() {
		It("should survive and keep consuming", func() {
			handler.panicOn["boom"] = true
			queue.Enqueue(Task{ReceiptID: "boom"})
			queue.Enqueue(Task{ReceiptID: "after"})

			w.Start()
			w.Stop()

			Expect(handler.snapshot()).To(Equal([]string{"after"}))
		})
	})

	When("tasks are enqueued while a task is in flight", func() {
		It("should process them after the current one", func() {
			w.Start()
			queue.Enqueue(Task{ReceiptID: "first"})
			queue.Enqueue(Task{ReceiptID: "second"})
			w.Stop()

			Expect(handler.snapshot()).To(Equal([]string{"first", "second"}))
		})
	})
})
