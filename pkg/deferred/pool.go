package deferred

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Task is a unit of background work whose result is deliberately discarded
// except for logging. Handlers run after the request that scheduled them has
// already returned its response.
type Task struct {
	Name    string
	Handler func(ctx context.Context) error
}

// PoolStats contains real-time worker pool metrics.
type PoolStats struct {
	NumWorkers      int   `json:"num_workers"`
	QueueDepth      int   `json:"queue_depth"`
	TotalDispatched int64 `json:"total_dispatched"`
	TotalProcessed  int64 `json:"total_processed"`
	TotalDropped    int64 `json:"total_dropped"`
	TotalErrors     int64 `json:"total_errors"`
}

// Pool runs deferred tasks on a fixed set of workers fed by a bounded queue.
// Dispatch never blocks: when the queue is full or the pool is stopped the
// task is dropped and the caller is told so.
type Pool struct {
	numWorkers int
	queue      chan Task
	wg         sync.WaitGroup
	stopOnce   sync.Once
	stopped    int32
	mu         sync.RWMutex // guards queue sends against close

	totalDispatched int64
	totalProcessed  int64
	totalDropped    int64
	totalErrors     int64
}

// NewPool creates a pool with the given worker count and queue capacity.
func NewPool(numWorkers, queueSize int) *Pool {
	if numWorkers <= 0 {
		numWorkers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Pool{
		numWorkers: numWorkers,
		queue:      make(chan Task, queueSize),
	}
}

// Start launches the workers. ctx is handed to every task handler; the
// workers themselves run until Stop drains the queue.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.numWorkers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	logrus.Infof("[DEFERRED] Started with %d workers, queue size: %d", p.numWorkers, cap(p.queue))
}

// TryDispatch enqueues a task without blocking and reports whether it was
// accepted. Callers must treat false as "facility unavailable" and skip the
// work rather than wait.
func (p *Pool) TryDispatch(task Task) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if atomic.LoadInt32(&p.stopped) == 1 {
		atomic.AddInt64(&p.totalDropped, 1)
		return false
	}

	select {
	case p.queue <- task:
		atomic.AddInt64(&p.totalDispatched, 1)
		return true
	default:
		atomic.AddInt64(&p.totalDropped, 1)
		logrus.Debugf("[DEFERRED] Queue full, dropped task %s", task.Name)
		return false
	}
}

// TryDefer adapts TryDispatch to the cache.TaskRunner interface.
func (p *Pool) TryDefer(name string, fn func(ctx context.Context) error) bool {
	return p.TryDispatch(Task{Name: name, Handler: fn})
}

// Stop prevents new dispatches and waits for queued tasks to drain.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		atomic.StoreInt32(&p.stopped, 1)
		close(p.queue)
		p.mu.Unlock()
		p.wg.Wait()
		logrus.Info("[DEFERRED] Stopped")
	})
}

// GetStats returns a snapshot of the pool metrics.
func (p *Pool) GetStats() PoolStats {
	return PoolStats{
		NumWorkers:      p.numWorkers,
		QueueDepth:      len(p.queue),
		TotalDispatched: atomic.LoadInt64(&p.totalDispatched),
		TotalProcessed:  atomic.LoadInt64(&p.totalProcessed),
		TotalDropped:    atomic.LoadInt64(&p.totalDropped),
		TotalErrors:     atomic.LoadInt64(&p.totalErrors),
	}
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()

	for task := range p.queue {
		p.execute(ctx, id, task)
	}
}

// execute runs a single task with a panic boundary so a misbehaving handler
// cannot take the worker down.
func (p *Pool) execute(ctx context.Context, id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			atomic.AddInt64(&p.totalErrors, 1)
			logrus.Errorf("[DEFERRED] Worker %d: panic in task %s: %v", id, task.Name, r)
		}
	}()

	if err := task.Handler(ctx); err != nil {
		atomic.AddInt64(&p.totalErrors, 1)
		logrus.Warnf("[DEFERRED] Worker %d: task %s failed: %v", id, task.Name, err)
	}
	atomic.AddInt64(&p.totalProcessed, 1)
}
