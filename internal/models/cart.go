package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type CartItem struct {
	ProductID     uuid.UUID       `json:"product_id"`
	VariantID     *uuid.UUID      `json:"variant_id,omitempty"`
	Quantity      int             `json:"quantity"`
	PriceSnapshot decimal.Decimal `json:"price_snapshot"`
	Name          string          `json:"name"`
	SKU           string          `json:"sku,omitempty"`
	Label         string          `json:"label,omitempty"`
	Slug          string          `json:"slug,omitempty"`
	Image         string          `json:"image,omitempty"`
	AddedAt       time.Time       `json:"added_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// LineKey identifies a cart line; at most one line exists per key.
func (i CartItem) LineKey() string {
	if i.VariantID != nil {
		return i.ProductID.String() + "/" + i.VariantID.String()
	}

	return i.ProductID.String()
}

// VariantKey is the key stock is held under. Items without a variant
// reserve against their product id directly.
func (i CartItem) VariantKey() uuid.UUID {
	if i.VariantID != nil {
		return *i.VariantID
	}

	return i.ProductID
}

type Cart struct {
	ID        uuid.UUID  `json:"id"`
	Actor     Actor      `json:"actor"`
	Items     []CartItem `json:"items"`
	Currency  string     `json:"currency"`
	Version   int64      `json:"version"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// FindItem returns the index of the line matching key, or -1.
func (c *Cart) FindItem(key string) int {
	for i, item := range c.Items {
		if item.LineKey() == key {
			return i
		}
	}

	return -1
}

func (c *Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero

	for _, item := range c.Items {
		total = total.Add(item.PriceSnapshot.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	return total
}

type CartOperation string

const (
	OpAdd    CartOperation = "add"
	OpUpdate CartOperation = "update"
	OpRemove CartOperation = "remove"
	OpClear  CartOperation = "clear"
)

type PutItemRequest struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Quantity  int        `json:"quantity"   validate:"min=1"`
	Name      string     `json:"name"`
	SKU       string     `json:"sku,omitempty"`
	Label     string     `json:"label,omitempty"`
	Slug      string     `json:"slug,omitempty"`
	Image     string     `json:"image,omitempty"`
}

type PutCartRequest struct {
	Operation CartOperation    `json:"operation" validate:"required,oneof=add update remove clear"`
	Version   int64            `json:"version"   validate:"min=0"`
	Items     []PutItemRequest `json:"items"     validate:"dive"`
}
