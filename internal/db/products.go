package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrProductNotFound indicates the product does not exist.
var ErrProductNotFound = errors.New("product not found")

// ErrProductExists indicates a product with the same name is already registered.
var ErrProductExists = errors.New("product already exists")

// InsufficientStockError reports a purchase exceeding the available stock.
type InsufficientStockError struct {
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock, available count: %d", e.Available)
}

// Product represents an entry in the shared inventory.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Stock     int       `json:"stock"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateProduct adds a product to the inventory. Product names are unique;
// a duplicate returns ErrProductExists.
func (db *DB) CreateProduct(ctx context.Context, name string, stock int) (*Product, error) {
	result, err := db.ExecContext(ctx, `
		INSERT INTO products (name, stock) VALUES (?, ?)
	`, name, stock)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrProductExists
		}
		return nil, fmt.Errorf("creating product: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("getting product id: %w", err)
	}

	return db.GetProductByID(ctx, id)
}

// GetProductByID returns a product by ID.
func (db *DB) GetProductByID(ctx context.Context, id int64) (*Product, error) {
	return scanProduct(db.QueryRowContext(ctx, `
		SELECT id, name, stock, created_at, updated_at
		FROM products WHERE id = ?
	`, id))
}

// ListProducts returns all products, oldest first.
func (db *DB) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, stock, created_at, updated_at
		FROM products ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying products: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scanning product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating products: %w", err)
	}
	return products, nil
}

// SetProductStock sets the stock to an exact count. Administrative only; the
// orchestrator never calls this.
func (db *DB) SetProductStock(ctx context.Context, id int64, stock int) (*Product, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE products SET stock = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?
	`, stock, id)
	if err != nil {
		return nil, fmt.Errorf("setting stock: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return nil, ErrProductNotFound
	}

	return db.GetProductByID(ctx, id)
}

// DeleteProduct removes a product from the inventory.
func (db *DB) DeleteProduct(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return ErrProductNotFound
	}
	return nil
}

func scanProduct(row rowScanner) (*Product, error) {
	var p Product
	err := row.Scan(&p.ID, &p.Name, &p.Stock, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning product: %w", err)
	}
	return &p, nil
}

// isUniqueViolation checks if the error is a unique constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
