package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/storefrontcore/cart-service/internal/utils"
)

type CounterRepository interface {
	Next(ctx context.Context, name string) (int64, error)
}

type counterRepository struct {
	DB *sql.DB
}

func NewCounterRepo(db *sql.DB) CounterRepository {
	return &counterRepository{DB: db}
}

// Next increments the named counter and returns the new value in one
// atomic statement. A read-then-write here would hand two concurrent
// checkouts the same sequence number.
func (r *counterRepository) Next(ctx context.Context, name string) (int64, error) {
	dbCtx, cancel := utils.WithDBTimeout(ctx)
	defer cancel()

	query := `
		INSERT INTO counters (name, value)
		VALUES ($1, 1)
		ON CONFLICT (name)
		DO UPDATE SET value = counters.value + 1
		RETURNING value
	`

	var value int64

	if err := r.DB.QueryRowContext(dbCtx, query, name).Scan(&value); err != nil {
		return 0, fmt.Errorf("failed to increment counter %s: %w", name, err)
	}

	return value, nil
}
