// Package orchestrator coordinates the vending machine fleet: it hands idle
// machines to customers, completes purchases against the shared inventory,
// and schedules the deferred delivery that finishes each cycle.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/buildtall-systems/vendfleet/internal/db"
)

// ErrPaymentMismatch indicates the inserted coins do not match the item
// count. Policy is exactly one coin per item; no change, no credit.
var ErrPaymentMismatch = errors.New("coins must equal the number of products")

// Scheduler enqueues a deferred delivery task for a machine. Implemented by
// the delivery queue; fire-and-forget from the orchestrator's perspective.
type Scheduler interface {
	ScheduleDelivery(machineID int64) error
}

type Orchestrator struct {
	db        *db.DB
	scheduler Scheduler
}

func New(database *db.DB, scheduler Scheduler) *Orchestrator {
	return &Orchestrator{db: database, scheduler: scheduler}
}

// StartWork assigns the least-used idle machine to a customer and moves it
// to choose_product. Returns db.ErrNoIdleMachine when the whole fleet is
// busy; that is an expected outcome, not a fault.
func (o *Orchestrator) StartWork(ctx context.Context) (*db.Machine, error) {
	return o.db.ClaimIdleMachine(ctx)
}

// ChooseProduct completes a purchase for a machine in choose_product state.
// Checks run in order and short-circuit: payment, machine state, stock. On
// success the stock decrement and the processing transition commit as one
// unit and a delivery task is scheduled for the machine.
func (o *Orchestrator) ChooseProduct(ctx context.Context, machineID, productID int64, count, coins int) (*db.Machine, *db.Product, error) {
	if coins != count {
		return nil, nil, ErrPaymentMismatch
	}

	machine, product, err := o.db.Purchase(ctx, machineID, productID, count)
	if err != nil {
		return nil, nil, err
	}

	if err := o.scheduler.ScheduleDelivery(machine.ID); err != nil {
		// The purchase is committed; a lost task would strand the machine in
		// processing until an administrative reset.
		return nil, nil, fmt.Errorf("scheduling delivery for machine %d: %w", machine.ID, err)
	}

	return machine, product, nil
}

// Reset forces a machine back to idle from any non-idle state. Already-idle
// machines are rejected with db.ErrMachineAlreadyIdle. A delivery task
// already queued for the machine is not cancelled; its guarded completion
// becomes a logged no-op.
func (o *Orchestrator) Reset(ctx context.Context, machineID int64) (*db.Machine, error) {
	return o.db.ResetMachine(ctx, machineID)
}
