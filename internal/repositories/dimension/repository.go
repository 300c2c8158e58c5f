package dimension

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const dimensionTable = "dimensions"

var dimensionStruct = database.NewStruct(new(models.Dimension))

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

// Replace writes the product's single dimension row. A nil dimension stores
// a row with every measurement null.
func (r *Repository) Replace(ctx context.Context, productID string, dimension *models.Dimension) error {
	ctx, span := tracing.StartSpan(ctx, "dimension.Repository.Replace")
	defer span.End()

	row := models.Dimension{}
	if dimension != nil {
		row = *dimension
	}
	row.ProductID = productID

	ib := dimensionStruct.InsertInto(dimensionTable, &row)
	ub := ib.OnConflict("product_id")
	ub.Set(
		ub.Assign("length", database.Excluded("length")),
		ub.Assign("width", database.Excluded("width")),
		ub.Assign("depth", database.Excluded("depth")),
		ub.Assign("weight", database.Excluded("weight")),
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
		}).Error("Failed to replace dimension")
		return fmt.Errorf("failed to replace dimension for product %s: %w", productID, err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, productID string) (*models.Dimension, error) {
	ctx, span := tracing.StartSpan(ctx, "dimension.Repository.Get")
	defer span.End()

	sb := dimensionStruct.SelectFrom(dimensionTable)
	sb.Where(sb.Equal("product_id", productID))

	query, args := sb.Build()
	var dimension models.Dimension
	if err := database.Conn(ctx, r.db).GetContext(ctx, &dimension, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get dimension for product %s: %w", productID, err)
	}

	return &dimension, nil
}
