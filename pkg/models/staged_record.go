package models

import "time"

// StagedRecord is a validated, normalized source record waiting to be merged.
type StagedRecord struct {
	DatasetID         string             `json:"dataset_id"`
	Seq               int                `json:"seq"`
	ProductType       ProductType        `json:"product_type"`
	Key               NaturalKey         `json:"key"`
	EntityName        string             `json:"entity_name"`
	ProdCode          string             `json:"prod_code"`
	Description       string             `json:"description,omitempty"`
	Attributes        map[string]any     `json:"attributes,omitempty"`
	Dimension         *Dimension         `json:"dimension,omitempty"`
	ElectricalRatings []ElectricalRating `json:"electrical_ratings,omitempty"`
	Certifications    []CertificationRef `json:"certifications,omitempty"`
	SourceCountries   []string           `json:"source_countries,omitempty"`
	Firmware          *Firmware          `json:"firmware,omitempty"`
	TaxonomyVersion   string             `json:"taxonomy_version"`
	StagedAt          time.Time          `json:"staged_at"`
}

// Product returns the product row the record upserts.
func (r *StagedRecord) Product(entityID string) *Product {
	return &Product{
		EntityID:        entityID,
		ProductType:     r.ProductType,
		ModelNumber:     r.Key.ModelNumber,
		ProdCode:        r.ProdCode,
		Description:     r.Description,
		Attributes:      r.Attributes,
		TaxonomyVersion: r.TaxonomyVersion,
		DatasetID:       r.DatasetID,
	}
}

// RawRecord is one source row: taxonomy field name to raw value.
type RawRecord map[string]any

// Batch is one dataset's worth of raw records, known up front.
type Batch struct {
	DatasetID   string
	ProductType ProductType
	Records     []RawRecord
}
