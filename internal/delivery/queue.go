// Package delivery simulates the physical dispensing cycle: a purchase
// enqueues a task, a worker picks it up after the configured delay and
// returns the machine to idle. The queue is backed by goque, so tasks
// survive restarts and run at least once.
package delivery

import (
	"errors"
	"fmt"
	"time"

	"github.com/beeker1121/goque"
)

// Task is one deferred delivery, captured at schedule time.
type Task struct {
	MachineID int64     `json:"machine_id"`
	ReadyAt   time.Time `json:"ready_at"`
}

// Queue is a persistent FIFO of delivery tasks.
type Queue struct {
	q     *goque.Queue
	delay time.Duration
}

// OpenQueue opens (or creates) the on-disk queue at path. delay is the
// simulated dispensing time applied to every scheduled task.
func OpenQueue(path string, delay time.Duration) (*Queue, error) {
	q, err := goque.OpenQueue(path)
	if err != nil {
		return nil, fmt.Errorf("opening delivery queue: %w", err)
	}
	return &Queue{q: q, delay: delay}, nil
}

// ScheduleDelivery enqueues a delivery task for the machine, due after the
// configured delay. Satisfies orchestrator.Scheduler.
func (q *Queue) ScheduleDelivery(machineID int64) error {
	task := Task{MachineID: machineID, ReadyAt: time.Now().Add(q.delay)}
	if _, err := q.q.EnqueueObjectAsJSON(task); err != nil {
		return fmt.Errorf("enqueueing delivery task: %w", err)
	}
	return nil
}

// dequeue pops the next task, or returns nil when the queue is empty.
func (q *Queue) dequeue() (*Task, error) {
	item, err := q.q.Dequeue()
	if errors.Is(err, goque.ErrEmpty) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeueing delivery task: %w", err)
	}

	var task Task
	if err := item.ToObjectFromJSON(&task); err != nil {
		return nil, fmt.Errorf("decoding delivery task: %w", err)
	}
	return &task, nil
}

// requeue puts a task back without resetting its deadline. Used when a
// worker shuts down mid-task or hits a transient store error.
func (q *Queue) requeue(task *Task) error {
	if _, err := q.q.EnqueueObjectAsJSON(*task); err != nil {
		return fmt.Errorf("requeueing delivery task: %w", err)
	}
	return nil
}

// Length returns the number of queued tasks.
func (q *Queue) Length() uint64 {
	return q.q.Length()
}

func (q *Queue) Close() error {
	return q.q.Close()
}
