package models

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityChange records one observed transition on a variant. Kept
// newest-first on the owning product as an audit trail.
type AvailabilityChange struct {
	VariantID    uuid.UUID `json:"variant_id"`
	VariantLabel string    `json:"variant_label"`
	From         bool      `json:"from"`
	To           bool      `json:"to"`
	Price        string    `json:"price"`
	At           time.Time `json:"at"`
}

// RestockEvent is published when a variant flips unavailable -> available.
type RestockEvent struct {
	ProductID    uuid.UUID `json:"product_id"`
	ProductName  string    `json:"product_name"`
	VariantID    uuid.UUID `json:"variant_id"`
	VariantLabel string    `json:"variant_label"`
	Price        string    `json:"price"`
	URL          string    `json:"url"`
	At           time.Time `json:"at"`
}
