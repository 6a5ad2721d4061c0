package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/storefrontcore/cart-service/internal/models"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *sql.Tx, order *models.Order) error
}

type orderRepository struct {
	DB *sql.DB
}

func NewOrderRepo(db *sql.DB) OrderRepository {
	return &orderRepository{DB: db}
}

// Create writes the order inside the caller's transaction, alongside the
// reservation consumes for its lines.
func (r *orderRepository) Create(ctx context.Context, tx *sql.Tx, order *models.Order) error {

	itemsJSON, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal order items: %w", err)
	}

	query := `
		INSERT INTO orders (id, order_number, reference, actor_key, items, currency, total, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		RETURNING created_at
	`

	return tx.QueryRowContext(ctx, query,
		order.ID, order.OrderNumber, order.Reference, order.Actor.Key(),
		itemsJSON, order.Currency, order.Total, order.Status).
		Scan(&order.CreatedAt)
}
