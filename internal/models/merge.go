package models

import "github.com/google/uuid"

// MergedLine reports the outcome of one guest cart line after a merge.
// Capped is set when stock exhaustion forced the final quantity below the
// sum of the guest and user quantities.
type MergedLine struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Requested int        `json:"requested"`
	Final     int        `json:"final"`
	Capped    bool       `json:"capped"`
	Dropped   bool       `json:"dropped"`
}

type MergeResult struct {
	Cart   *Cart        `json:"cart"`
	Lines  []MergedLine `json:"lines"`
	Merged bool         `json:"merged"`
}
