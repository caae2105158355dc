package base

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/ValentinKolb/vKV/rpc/common"
	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"
)

var (
	// ErrRejectedConnection is returned by Submit when all workers are busy
	ErrRejectedConnection = errors.New("connection rejected: worker pool saturated")
	// errPoolClosed is returned by Submit after Close
	errPoolClosed = errors.New("worker pool closed")
)

// workerPool runs tasks on a bounded number of goroutines. A task is either handed
// directly to an idle worker or starts a new worker, there is no queue. Submit fails
// when all MaxWorkers workers are busy.
type workerPool struct {
	slots     *semaphore.Weighted
	work      chan func()
	core      int32
	keepAlive time.Duration

	workers atomic.Int32
	busy    atomic.Int32
	stop    chan struct{}
	once    sync.Once
	wg      sync.WaitGroup
}

// newWorkerPool creates a pool and starts its core workers
func newWorkerPool(cfg common.PoolConfig) *workerPool {
	p := &workerPool{
		slots:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		work:      make(chan func()),
		core:      int32(cfg.CoreWorkers),
		keepAlive: cfg.KeepAlive,
		stop:      make(chan struct{}),
	}
	for i := 0; i < cfg.CoreWorkers; i++ {
		if p.slots.TryAcquire(1) {
			p.start(nil)
		}
	}
	return p
}

// Submit runs task on an idle or a new worker. It returns ErrRejectedConnection if the
// pool is saturated, the task is not run in that case.
func (p *workerPool) Submit(task func()) error {
	select {
	case <-p.stop:
		return errPoolClosed
	default:
	}

	// direct hand-off to an idle worker
	select {
	case p.work <- task:
		return nil
	default:
	}

	if !p.slots.TryAcquire(1) {
		return ErrRejectedConnection
	}
	p.start(task)
	return nil
}

// Workers returns the number of live workers
func (p *workerPool) Workers() int {
	return int(p.workers.Load())
}

// Busy returns the number of workers running a task
func (p *workerPool) Busy() int {
	return int(p.busy.Load())
}

// Close stops all idle workers. Busy workers exit after their task.
func (p *workerPool) Close() {
	p.once.Do(func() { close(p.stop) })
}

// Wait blocks until all workers exited
func (p *workerPool) Wait() {
	p.wg.Wait()
}

func (p *workerPool) start(task func()) {
	p.workers.Add(1)
	p.wg.Add(1)
	go p.worker(task)
}

func (p *workerPool) run(task func()) {
	p.busy.Add(1)
	defer p.busy.Add(-1)
	task()
}

// worker runs tasks until the pool is closed or it idled for keepAlive while
// more than the core workers are alive
func (p *workerPool) worker(task func()) {
	defer p.wg.Done()
	defer p.slots.Release(1)

	var timer *time.Timer
	if p.keepAlive > 0 {
		timer = time.NewTimer(p.keepAlive)
		defer timer.Stop()
	}

	for {
		if task != nil {
			p.run(task)
			task = nil
		}

		var timeout <-chan time.Time
		if timer != nil {
			timer.Reset(p.keepAlive)
			timeout = timer.C
		} else if p.retire() {
			return
		}

		select {
		case task = <-p.work:
		case <-p.stop:
			p.workers.Add(-1)
			return
		case <-timeout:
			if p.retire() {
				return
			}
		}
	}
}

// retire removes the calling worker if more than the core workers are alive
func (p *workerPool) retire() bool {
	if p.workers.Add(-1) >= p.core {
		return true
	}
	p.workers.Add(1)
	return false
}
