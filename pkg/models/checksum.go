package models

import "time"

// Checksum is the fingerprint of the last successfully applied import of a product.
type Checksum struct {
	ProductID   string    `json:"product_id" db:"product_id"`
	Fingerprint string    `json:"fingerprint" db:"fingerprint"`
	DatasetID   string    `json:"dataset_id" db:"dataset_id"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
