package utils

import (
	"github.com/gammazero/workerpool"
)

// SinkQueue delivers application callbacks in order on a single goroutine.
type SinkQueue struct {
	pool *workerpool.WorkerPool
}

func NewSinkQueue() *SinkQueue {
	return &SinkQueue{pool: workerpool.New(1)}
}

// Post drops f once the queue has been stopped.
func (q *SinkQueue) Post(f func()) {
	if q.pool.Stopped() {
		return
	}
	q.pool.Submit(f)
}

func (q *SinkQueue) Stop() {
	q.pool.StopWait()
}
