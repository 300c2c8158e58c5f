package product

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/normalizers"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const productTable = "products"

var productColumns = []string{
	"id", "entity_id", "product_type", "model_number", "prod_code", "description",
	"attributes", "taxonomy_version", "dataset_id", "created_at", "updated_at",
}

// row is the products table shape; attributes live in a jsonb column.
type row struct {
	ID              string                         `db:"id"`
	EntityID        string                         `db:"entity_id"`
	ProductType     models.ProductType             `db:"product_type"`
	ModelNumber     string                         `db:"model_number"`
	ProdCode        string                         `db:"prod_code"`
	Description     string                         `db:"description"`
	Attributes      database.JSONB[map[string]any] `db:"attributes"`
	TaxonomyVersion string                         `db:"taxonomy_version"`
	DatasetID       string                         `db:"dataset_id"`
	CreatedAt       time.Time                      `db:"created_at"`
	UpdatedAt       time.Time                      `db:"updated_at"`
}

func (r row) toModel() *models.Product {
	return &models.Product{
		ID:              r.ID,
		EntityID:        r.EntityID,
		ProductType:     r.ProductType,
		ModelNumber:     r.ModelNumber,
		ProdCode:        r.ProdCode,
		Description:     r.Description,
		Attributes:      r.Attributes.GetValue(),
		TaxonomyVersion: r.TaxonomyVersion,
		DatasetID:       r.DatasetID,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
}

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or updates the product keyed by (entity_id, model_number).
// IsNew is derived from xmax, which is zero only for freshly inserted rows.
// A product keeps the prod_code it was first given; see allocateProdCode.
func (r *Repository) Upsert(ctx context.Context, product *models.Product) (*models.UpsertResult, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Upsert")
	defer span.End()

	prodCode, err := r.allocateProdCode(ctx, product)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	attributes := product.Attributes
	if attributes == nil {
		attributes = map[string]any{}
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(productTable)
	ib.Cols(productColumns...)
	ib.Values(
		uuid.New().String(), product.EntityID, product.ProductType, product.ModelNumber, prodCode,
		product.Description, database.NewJSONB(attributes), product.TaxonomyVersion, product.DatasetID, now, now,
	)
	ub := ib.OnConflict("entity_id", "model_number")
	ub.Set(
		ub.Assign("product_type", database.Excluded("product_type")),
		ub.Assign("description", database.Excluded("description")),
		ub.Assign("attributes", database.Excluded("attributes")),
		ub.Assign("taxonomy_version", database.Excluded("taxonomy_version")),
		ub.Assign("dataset_id", database.Excluded("dataset_id")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)
	ib.Returning("id", "prod_code", "(xmax = 0) AS inserted")

	query, args := ib.Build()
	var result struct {
		ID       string `db:"id"`
		ProdCode string `db:"prod_code"`
		Inserted bool   `db:"inserted"`
	}
	if err := database.Conn(ctx, r.db).GetContext(ctx, &result, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id":    product.EntityID,
			"model_number": product.ModelNumber,
			"prod_code":    prodCode,
		}).Error("Failed to upsert product")
		return nil, fmt.Errorf("failed to upsert product %s: %w", product.ModelNumber, err)
	}

	return &models.UpsertResult{ProductID: result.ID, IsNew: result.Inserted, ProdCode: result.ProdCode}, nil
}

// allocateProdCode returns the stored code of an existing product, or the
// first free suffix of product.ProdCode for a new one. The transaction-scoped
// advisory lock on the base code serializes allocations of the same base.
func (r *Repository) allocateProdCode(ctx context.Context, product *models.Product) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.allocateProdCode")
	defer span.End()

	q := database.Conn(ctx, r.db)
	base := product.ProdCode
	fail := func(err error) (string, error) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"entity_id":    product.EntityID,
			"model_number": product.ModelNumber,
			"prod_code":    base,
		}).Error("Failed to allocate product code")
		return "", fmt.Errorf("failed to allocate product code %s: %w", base, err)
	}

	if _, err := q.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", base); err != nil {
		return fail(err)
	}

	sb := database.NewSelectBuilder()
	sb.Select("prod_code")
	sb.From(productTable)
	sb.Where(
		sb.Equal("entity_id", product.EntityID),
		sb.Equal("model_number", product.ModelNumber),
	)
	query, args := sb.Build()
	var existing string
	err := q.GetContext(ctx, &existing, query, args...)
	if err == nil {
		return existing, nil
	}
	if !database.IsNoRows(err) {
		return fail(err)
	}

	// left() rather than LIKE: model codes contain underscores.
	prefix := base + "-"
	sb = database.NewSelectBuilder()
	sb.Select("prod_code")
	sb.From(productTable)
	sb.Where(sb.Or(
		sb.Equal("prod_code", base),
		sb.Equal(fmt.Sprintf("left(prod_code, %d)", utf8.RuneCountInString(prefix)), prefix),
	))
	query, args = sb.Build()
	var codes []string
	if err := q.SelectContext(ctx, &codes, query, args...); err != nil {
		return fail(err)
	}

	taken := make(map[string]bool, len(codes))
	for _, c := range codes {
		taken[c] = true
	}
	return normalizers.NextProdCode(base, func(code string) bool { return taken[code] }), nil
}

// GetByKey returns nil when the natural key has no product.
func (r *Repository) GetByKey(ctx context.Context, key models.NaturalKey) (*models.Product, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.GetByKey")
	defer span.End()

	sb := database.NewSelectBuilder()
	cols := make([]string, len(productColumns))
	for i, c := range productColumns {
		cols[i] = "p." + c
	}
	sb.Select(cols...)
	sb.From(productTable + " p")
	sb.Join("entities e", "e.id = p.entity_id")
	sb.Where(
		sb.Equal("e.external_id", key.EntityExternalID),
		sb.Equal("p.model_number", key.ModelNumber),
	)

	query, args := sb.Build()
	var found row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &found, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"natural_key": key.String(),
		}).Error("Failed to get product")
		return nil, fmt.Errorf("failed to get product %s: %w", key, err)
	}

	return found.toModel(), nil
}

// Delete hard-deletes a product. Owned rows go with it through cascades.
func (r *Repository) Delete(ctx context.Context, productID string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "product.Repository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(productTable)
	db.Where(db.Equal("id", productID))

	query, args := db.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
		}).Error("Failed to delete product")
		return false, fmt.Errorf("failed to delete product %s: %w", productID, err)
	}

	rows, _ := result.RowsAffected()
	return rows > 0, nil
}
