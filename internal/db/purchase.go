package db

import (
	"context"
	"fmt"

	"github.com/buildtall-systems/vendfleet/internal/fsm"
)

// Purchase completes a product purchase for a machine in choose_product
// state: decrements stock by count and moves the machine to processing, as
// one transaction. The machine row is always touched before the product row.
// Checks run in order and short-circuit: machine exists and is in
// choose_product, product exists, stock covers count. Any failure rolls the
// whole transaction back, so callers never observe partial effects.
func (db *DB) Purchase(ctx context.Context, machineID, productID int64, count int) (*Machine, *Product, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	m, err := scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, machineID))
	if err != nil {
		return nil, nil, err
	}

	if !machineSM.CanTransition(m.Status, fsm.MachineEventPurchase) {
		return nil, nil, ErrMachineNotChoosing
	}

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT id, name, stock, created_at, updated_at
		FROM products WHERE id = ?
	`, productID))
	if err != nil {
		return nil, nil, err
	}

	if p.Stock < count {
		return nil, nil, &InsufficientStockError{Available: p.Stock}
	}

	// Guarded decrement. The stock check above runs in the same transaction,
	// but the WHERE clause is what makes overdraw impossible.
	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND stock >= ?
	`, count, productID, count)
	if err != nil {
		return nil, nil, fmt.Errorf("decrementing stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil, &InsufficientStockError{Available: p.Stock}
	}

	result, err = tx.ExecContext(ctx, `
		UPDATE machines SET status = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?
	`, fsm.MachineStateProcessing, machineID, fsm.MachineStateChooseProduct)
	if err != nil {
		return nil, nil, fmt.Errorf("transitioning machine: %w", err)
	}

	rows, err = result.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, nil, fmt.Errorf("%w: machine state changed concurrently", ErrInvalidStateTransition)
	}

	m, err = scanMachine(tx.QueryRowContext(ctx, `
		SELECT id, name, status, usage_count, created_at, updated_at
		FROM machines WHERE id = ?
	`, machineID))
	if err != nil {
		return nil, nil, err
	}

	p, err = scanProduct(tx.QueryRowContext(ctx, `
		SELECT id, name, stock, created_at, updated_at
		FROM products WHERE id = ?
	`, productID))
	if err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing transaction: %w", err)
	}

	return m, p, nil
}
