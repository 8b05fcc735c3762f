package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/buildtall-systems/vendfleet/internal/db"
)

// Pool runs delivery workers against the queue. Each worker dequeues a
// task, waits out the remaining dispensing delay, and finalizes the cycle
// through the store.
type Pool struct {
	queue        *Queue
	db           *db.DB
	workers      int
	pollInterval time.Duration
	wg           sync.WaitGroup
}

func NewPool(queue *Queue, database *db.DB, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{
		queue:        queue,
		db:           database,
		workers:      workers,
		pollInterval: 250 * time.Millisecond,
	}
}

// Start launches the workers. They run until ctx is cancelled; call Wait to
// block until they have drained.
func (p *Pool) Start(ctx context.Context) {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	go p.reportLength(ctx)
}

// Wait blocks until all workers have stopped.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	log := zap.S().With("worker", id)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		task, err := p.queue.dequeue()
		if err != nil {
			log.Errorw("dequeueing delivery task", "error", err)
			p.sleep(ctx)
			continue
		}
		if task == nil {
			p.sleep(ctx)
			continue
		}

		p.deliver(ctx, log, task)
	}
}

func (p *Pool) deliver(ctx context.Context, log *zap.SugaredLogger, task *Task) {
	if wait := time.Until(task.ReadyAt); wait > 0 {
		select {
		case <-ctx.Done():
			// Shutting down mid-delay; the task goes back so it survives
			// the restart.
			if err := p.queue.requeue(task); err != nil {
				log.Errorw("requeueing task on shutdown", "machine_id", task.MachineID, "error", err)
			}
			return
		case <-time.After(wait):
		}
	}

	err := p.db.CompleteDelivery(ctx, task.MachineID)
	switch {
	case err == nil:
		log.Infow("delivery completed", "machine_id", task.MachineID)

	case errors.Is(err, db.ErrMachineNotFound):
		// Terminal: the machine was deleted while the task was in flight.
		log.Errorw("machine deleted before delivery completed, dropping task",
			"machine_id", task.MachineID)

	case errors.Is(err, db.ErrInvalidStateTransition):
		// An administrative reset (or another mutation) beat us to the row.
		log.Warnw("machine no longer processing, delivery superseded",
			"machine_id", task.MachineID, "error", err)

	default:
		// Transient store failure: put the task back for another attempt.
		log.Errorw("completing delivery", "machine_id", task.MachineID, "error", err)
		if err := p.queue.requeue(task); err != nil {
			log.Errorw("requeueing failed task", "machine_id", task.MachineID, "error", err)
		}
	}
}

func (p *Pool) sleep(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(p.pollInterval):
	}
}

// reportLength logs the queue depth periodically.
func (p *Pool) reportLength(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			zap.S().Debugf("current delivery tasks in queue: %d", p.queue.Length())
		}
	}
}
