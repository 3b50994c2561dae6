package dispatch

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"beacon/internal/pkg/metrics"
)

// Task is a unit of background work handed off by a request handler.
type Task func(ctx context.Context)

// Pool is a bounded task queue drained by a fixed set of workers. Inbound
// handlers enqueue and return immediately; delivery and indexing latency
// never sits on the request path.
type Pool struct {
	queue   chan Task
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	mu      sync.Mutex
}

func NewPool(workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		queue:  make(chan Task, queueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	p.start(workers)
	return p
}

func (p *Pool) start(workers int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true

	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.queue {
		metrics.QueueDepth.Set(float64(len(p.queue)))
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Error().Interface("panic", r).Msg("dispatch task panicked")
				}
			}()
			task(p.ctx)
		}()
	}
}

// Enqueue hands a task to the pool. Returns false when the queue is full;
// callers treat that as a dropped dispatch and log it, never as a request
// error surfaced to a provider.
func (p *Pool) Enqueue(task Task) bool {
	select {
	case p.queue <- task:
		metrics.QueueDepth.Set(float64(len(p.queue)))
		return true
	default:
		return false
	}
}

// Shutdown stops accepting work and waits for in-flight tasks.
func (p *Pool) Shutdown() {
	close(p.queue)
	p.wg.Wait()
	p.cancel()
}
