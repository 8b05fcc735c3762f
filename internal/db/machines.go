package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/buildtall-systems/vendfleet/internal/fsm"
)

var machineSM = fsm.NewMachineStateMachine()

// ErrMachineNotFound indicates the machine does not exist.
var ErrMachineNotFound = errors.New("machine not found")

// ErrNoIdleMachine indicates no machine is currently idle. This is an
// expected condition, not a fault.
var ErrNoIdleMachine = errors.New("no idle vending machine available")

// ErrMachineAlreadyIdle indicates a reset was attempted on an idle machine.
var ErrMachineAlreadyIdle = errors.New("machine is already idle")

// ErrMachineNotChoosing indicates a purchase was attempted against a machine
// that is not in choose_product state.
var ErrMachineNotChoosing = errors.New("machine is not in choose_product state")

// ErrInvalidStateTransition indicates an invalid machine state transition was attempted.
var ErrInvalidStateTransition = errors.New("invalid machine state transition")

// Machine represents a vending machine in the fleet.
type Machine struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`
	UsageCount int       `json:"usage_count"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// CreateMachine registers a new machine. Machines start idle with a zero
// usage count.
func (db *DB) CreateMachine(ctx context.Context, name string) (*Machine, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO machines (name, status) VALUES (?, ?)
	`, name, fsm.MachineStateIdle)
	if err != nil {
		return nil, fmt.Errorf("creating machine: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting machine id: %w", err)
	}

	return db.GetMachineByID(ctx, id)
}

// GetMachineByID returns a machine by ID.
func (db *DB) GetMachineByID(ctx context.Context, id int64) (*Machine, error) {
	return scanMachine(db.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, id))
}

// ListMachines returns all machines, oldest first.
func (db *DB) ListMachines(ctx context.Context) ([]Machine, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying machines: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var machines []Machine
	for rows.Next() {
		var m Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Status, &m.UsageCount, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning machine: %w", err)
		}
		machines = append(machines, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating machines: %w", err)
	}
	return machines, nil
}

// DeleteMachine removes a machine. Deletion is allowed in any state; a
// delivery task still in flight for the machine fails terminally when it runs.
func (db *DB) DeleteMachine(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM machines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting machine: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrMachineNotFound
	}
	return nil
}

// ClaimIdleMachine selects the idle machine with the lowest usage count
// (ties broken by lowest id) and transitions it to choose_product, atomically.
// Returns ErrNoIdleMachine when no machine is idle at selection time.
func (db *DB) ClaimIdleMachine(ctx context.Context) (*Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE status = ? ORDER BY usage_count ASC, id ASC LIMIT 1
	`, fsm.MachineStateIdle))
	if errors.Is(err, ErrMachineNotFound) {
		return nil, ErrNoIdleMachine
	}
	if err != nil {
		return nil, err
	}

	if !machineSM.CanTransition(m.Status, fsm.MachineEventAssign) {
		return nil, fmt.Errorf("%w: cannot assign machine in %s state", ErrInvalidStateTransition, m.Status)
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE machines SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, fsm.MachineStateChooseProduct, m.ID, fsm.MachineStateIdle)
	if err != nil {
		return nil, fmt.Errorf("assigning machine: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrNoIdleMachine
	}

	m, err = scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, m.ID))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return m, nil
}

// ResetMachine forces a machine back to idle regardless of its current state.
// Returns ErrMachineAlreadyIdle when the machine is already idle. A pending
// delivery task for the machine is not cancelled; its completion update is
// guarded by status and becomes a no-op.
func (db *DB) ResetMachine(ctx context.Context, id int64) (*Machine, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	if !machineSM.CanTransition(m.Status, fsm.MachineEventReset) {
		return nil, ErrMachineAlreadyIdle
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE machines SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, fsm.MachineStateIdle, id)
	if err != nil {
		return nil, fmt.Errorf("resetting machine: %w", err)
	}

	m, err = scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, id))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing transaction: %w", err)
	}
	return m, nil
}

// CompleteDelivery finalizes a purchase cycle: processing -> idle with the
// usage counter incremented by one. The UPDATE is guarded by status so a
// reset or concurrent mutation cannot be clobbered; in that case
// ErrInvalidStateTransition is returned and usage_count is untouched.
func (db *DB) CompleteDelivery(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `
		UPDATE machines
		SET status = ?, usage_count = usage_count + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, fsm.MachineStateIdle, id, fsm.MachineStateProcessing)
	if err != nil {
		return fmt.Errorf("completing delivery: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		m, err := db.GetMachineByID(ctx, id)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: machine %d is %s, not %s", ErrInvalidStateTransition, id, m.Status, fsm.MachineStateProcessing)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMachine(row rowScanner) (*Machine, error) {
	var m Machine
	err := row.Scan(&m.ID, &m.Name, &m.Status, &m.UsageCount, &m.CreatedAt, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrMachineNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning machine: %w", err)
	}
	return &m, nil
}
