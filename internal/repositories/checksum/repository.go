package checksum

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const checksumTable = "checksums"

var checksumStruct = database.NewStruct(new(models.Checksum))

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

// GetByKey returns the stored fingerprint for a natural key, or nil when the
// product has never been imported.
func (r *Repository) GetByKey(ctx context.Context, key models.NaturalKey) (*models.Checksum, error) {
	ctx, span := tracing.StartSpan(ctx, "checksum.Repository.GetByKey")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("c.product_id", "c.fingerprint", "c.dataset_id", "c.updated_at")
	sb.From(checksumTable + " c")
	sb.Join("products p", "p.id = c.product_id")
	sb.Join("entities e", "e.id = p.entity_id")
	sb.Where(
		sb.Equal("e.external_id", key.EntityExternalID),
		sb.Equal("p.model_number", key.ModelNumber),
	)

	query, args := sb.Build()
	var checksum models.Checksum
	if err := database.Conn(ctx, r.db).GetContext(ctx, &checksum, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"natural_key": key.String(),
		}).Error("Failed to get checksum")
		return nil, fmt.Errorf("failed to get checksum for %s: %w", key, err)
	}

	return &checksum, nil
}

func (r *Repository) Store(ctx context.Context, checksum *models.Checksum) error {
	ctx, span := tracing.StartSpan(ctx, "checksum.Repository.Store")
	defer span.End()

	row := *checksum
	row.UpdatedAt = time.Now().UTC()

	ib := checksumStruct.InsertInto(checksumTable, &row)
	ub := ib.OnConflict("product_id")
	ub.Set(
		ub.Assign("fingerprint", database.Excluded("fingerprint")),
		ub.Assign("dataset_id", database.Excluded("dataset_id")),
		ub.Assign("updated_at", database.Excluded("updated_at")),
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": checksum.ProductID,
		}).Error("Failed to store checksum")
		return fmt.Errorf("failed to store checksum for product %s: %w", checksum.ProductID, err)
	}

	return nil
}

func (r *Repository) GetByProduct(ctx context.Context, productID string) (*models.Checksum, error) {
	ctx, span := tracing.StartSpan(ctx, "checksum.Repository.GetByProduct")
	defer span.End()

	sb := checksumStruct.SelectFrom(checksumTable)
	sb.Where(sb.Equal("product_id", productID))

	query, args := sb.Build()
	var checksum models.Checksum
	if err := database.Conn(ctx, r.db).GetContext(ctx, &checksum, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get checksum for product %s: %w", productID, err)
	}
	return &checksum, nil
}
