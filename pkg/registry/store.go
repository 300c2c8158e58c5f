// Package registry defines the Entity Store the synchronizer writes to and
// its Postgres implementation.
package registry

import (
	"context"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

// Store is the normalized product registry.
//
// The Ensure methods are create-if-absent operations on shared rows. They run
// outside any record transaction and tolerate a concurrent creator winning
// the unique-constraint race by reading the winner's row back.
type Store interface {
	Ping(ctx context.Context) error

	EnsureEntity(ctx context.Context, entity *models.Entity) (*models.Entity, error)
	EnsureCertificationAgency(ctx context.Context, name string) (*models.CertificationAgency, error)
	EnsureCertification(ctx context.Context, cert *models.Certification) (*models.Certification, error)
	EnsureSourceCountry(ctx context.Context, code string) (*models.SourceCountry, error)

	GetChecksum(ctx context.Context, key models.NaturalKey) (*models.Checksum, error)
	GetProduct(ctx context.Context, key models.NaturalKey) (*ProductAggregate, error)
	DeleteProduct(ctx context.Context, key models.NaturalKey) (bool, error)

	// WithinTx runs fn in one transaction; it commits when fn returns nil
	// and rolls back otherwise.
	WithinTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error
}

// Writer is the per-record transactional surface.
type Writer interface {
	UpsertProduct(ctx context.Context, product *models.Product) (*models.UpsertResult, error)
	ReplaceDimension(ctx context.Context, productID string, dimension *models.Dimension) error
	ReplaceElectricalRatings(ctx context.Context, productID string, ratings []models.ElectricalRating) error
	ReplaceFirmware(ctx context.Context, productID string, firmware *models.Firmware) error
	ReplaceCertifications(ctx context.Context, productID string, certificationIDs []string) (models.AssociationDiff, error)
	ReplaceSourceCountries(ctx context.Context, productID string, countryIDs []string) (models.AssociationDiff, error)
	StoreChecksum(ctx context.Context, checksum *models.Checksum) error
}

// RunStore persists sync run reports.
type RunStore interface {
	SaveRun(ctx context.Context, run *models.SyncRun) error
	GetRun(ctx context.Context, id string) (*models.SyncRun, error)
	ListRuns(ctx context.Context, datasetID string, limit int) ([]models.SyncRun, error)
}

// ProductAggregate is a product with everything it owns or references.
type ProductAggregate struct {
	Entity            models.Entity             `json:"entity"`
	Product           models.Product            `json:"product"`
	Dimension         *models.Dimension         `json:"dimension,omitempty"`
	ElectricalRatings []models.ElectricalRating `json:"electrical_ratings"`
	Certifications    []models.Certification    `json:"certifications"`
	SourceCountries   []models.SourceCountry    `json:"source_countries"`
	Firmware          *models.Firmware          `json:"firmware,omitempty"`
	Checksum          *models.Checksum          `json:"checksum,omitempty"`
}
