package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// NaturalKey identifies a product across imports.
type NaturalKey struct {
	EntityExternalID string `json:"entity_external_id"`
	ModelNumber      string `json:"model_number"`
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s/%s", k.EntityExternalID, k.ModelNumber)
}

// Less orders keys by entity then model, the order records are applied in.
func (k NaturalKey) Less(other NaturalKey) bool {
	if k.EntityExternalID != other.EntityExternalID {
		return k.EntityExternalID < other.EntityExternalID
	}
	return k.ModelNumber < other.ModelNumber
}

type Product struct {
	ID              string         `json:"id" db:"id"`
	EntityID        string         `json:"entity_id" db:"entity_id"`
	ProductType     ProductType    `json:"product_type" db:"product_type"`
	ModelNumber     string         `json:"model_number" db:"model_number"`
	ProdCode        string         `json:"prod_code" db:"prod_code"`
	Description     string         `json:"description,omitempty" db:"description"`
	Attributes      map[string]any `json:"attributes,omitempty" db:"-"`
	TaxonomyVersion string         `json:"taxonomy_version" db:"taxonomy_version"`
	DatasetID       string         `json:"dataset_id" db:"dataset_id"`
	CreatedAt       time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at" db:"updated_at"`
}

// Dimension holds physical measurements; lengths in m, weight in kg.
type Dimension struct {
	ProductID string              `json:"product_id" db:"product_id"`
	Length    decimal.NullDecimal `json:"length" db:"length"`
	Width     decimal.NullDecimal `json:"width" db:"width"`
	Depth     decimal.NullDecimal `json:"depth" db:"depth"`
	Weight    decimal.NullDecimal `json:"weight" db:"weight"`
}

// ElectricalRating is a set of performance numbers under one test condition.
type ElectricalRating struct {
	ID                  string              `json:"id" db:"id"`
	ProductID           string              `json:"product_id" db:"product_id"`
	Condition           string              `json:"condition" db:"condition"`
	PowerDC             decimal.NullDecimal `json:"power_dc" db:"power_dc"`
	PowerAC             decimal.NullDecimal `json:"power_ac" db:"power_ac"`
	VoltageOpenCircuit  decimal.NullDecimal `json:"voltage_open_circuit" db:"voltage_open_circuit"`
	CurrentShortCircuit decimal.NullDecimal `json:"current_short_circuit" db:"current_short_circuit"`
	VoltageMaxPower     decimal.NullDecimal `json:"voltage_max_power" db:"voltage_max_power"`
	CurrentMaxPower     decimal.NullDecimal `json:"current_max_power" db:"current_max_power"`
}

type Firmware struct {
	ProductID string `json:"product_id" db:"product_id"`
	Version   string `json:"version" db:"version"`
	Revision  string `json:"revision,omitempty" db:"revision"`
}

// UpsertResult reports whether a product upsert inserted a new row, and the
// product code the registry holds for it.
type UpsertResult struct {
	ProductID string
	IsNew     bool
	ProdCode  string
}
