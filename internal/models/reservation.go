package models

import (
	"time"

	"github.com/google/uuid"
)

type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationConsumed  ReservationStatus = "consumed"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationExpired   ReservationStatus = "expired"
)

// Reservation is a temporary hold of Quantity units of a variant's stock
// for one actor. At most one active reservation exists per
// (variant, actor); a new hold replaces it rather than stacking.
type Reservation struct {
	ID        uuid.UUID         `json:"id"`
	VariantID uuid.UUID         `json:"variant_id"`
	ActorKey  string            `json:"actor_key"`
	Quantity  int               `json:"quantity"`
	Status    ReservationStatus `json:"status"`
	ExpiresAt time.Time         `json:"expires_at"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// IsExpired reports whether the hold has lapsed, regardless of whether the
// background sweep has made the transition physical yet.
func (r *Reservation) IsExpired() bool {
	return r.Status == ReservationActive && !r.ExpiresAt.After(time.Now())
}
