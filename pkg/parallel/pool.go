package parallel

import (
	"sync"

	"github.com/dd0wney/mulewatch/pkg/logging"
)

// Pool runs submitted tasks on a fixed set of worker goroutines. It is used
// to fan per-ring partition evaluations out across CPUs while the submitting
// request waits on the whole batch.
type Pool struct {
	taskQueue chan func()
	workers   sync.WaitGroup
	inflight  sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts a pool with the given number of workers (minimum 1).
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	p := &Pool{taskQueue: make(chan func(), workers*2)}
	for i := 0; i < workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	defer p.workers.Done()

	for task := range p.taskQueue {
		func() {
			defer p.inflight.Done()
			defer func() {
				if r := recover(); r != nil {
					logging.ErrorLog("worker task panic recovered",
						logging.Component("parallel"),
						logging.Any("panic", r))
				}
			}()
			task()
		}()
	}
}

// Submit queues a task. Returns false if the pool is already closed.
func (p *Pool) Submit(task func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return false
	}
	p.inflight.Add(1)
	p.taskQueue <- task
	return true
}

// Wait blocks until every submitted task has finished.
func (p *Pool) Wait() {
	p.inflight.Wait()
}

// Close stops accepting tasks and waits for the workers to drain.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.taskQueue)
	p.mu.Unlock()

	p.workers.Wait()
}
