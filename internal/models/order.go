package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending OrderStatus = "pending"
)

// Order is the snapshot written at checkout. Payment capture happens in an
// external subsystem; orders leave here as pending.
type Order struct {
	ID          uuid.UUID       `json:"id"`
	OrderNumber string          `json:"order_number"`
	Reference   string          `json:"reference"`
	Actor       Actor           `json:"actor"`
	Items       []CartItem      `json:"items"`
	Currency    string          `json:"currency"`
	Total       decimal.Decimal `json:"total"`
	Status      OrderStatus     `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}
