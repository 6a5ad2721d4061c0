package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Variant is the read-only view of the product catalog this service
// consumes: current price and raw stock per sellable variant. Raw stock is
// only ever decremented through reservation consumption.
type Variant struct {
	ID    uuid.UUID       `json:"id"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
}

// Availability is what the UI layer gets for stock messaging:
// available-to-sell = raw stock minus all active, non-expired holds.
type Availability struct {
	VariantID uuid.UUID `json:"variant_id"`
	Stock     int       `json:"stock"`
	Reserved  int       `json:"reserved"`
	Available int       `json:"available"`
}
