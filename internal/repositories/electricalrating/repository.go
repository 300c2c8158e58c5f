package electricalrating

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const ratingTable = "electrical_ratings"

var ratingStruct = database.NewStruct(new(models.ElectricalRating))

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

// Replace deletes the product's ratings and inserts ratings in their place.
func (r *Repository) Replace(ctx context.Context, productID string, ratings []models.ElectricalRating) error {
	ctx, span := tracing.StartSpan(ctx, "electricalrating.Repository.Replace")
	defer span.End()

	conn := database.Conn(ctx, r.db)

	db := database.NewDeleteBuilder()
	db.DeleteFrom(ratingTable)
	db.Where(db.Equal("product_id", productID))

	query, args := db.Build()
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
		}).Error("Failed to clear electrical ratings")
		return fmt.Errorf("failed to clear electrical ratings for product %s: %w", productID, err)
	}

	if len(ratings) == 0 {
		return nil
	}

	rows := make([]any, len(ratings))
	for i := range ratings {
		rating := ratings[i]
		rating.ID = uuid.New().String()
		rating.ProductID = productID
		rows[i] = &rating
	}

	ib := ratingStruct.InsertInto(ratingTable, rows...)
	query, args = ib.Build()
	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
			"count":      len(ratings),
		}).Error("Failed to insert electrical ratings")
		return fmt.Errorf("failed to insert electrical ratings for product %s: %w", productID, err)
	}

	return nil
}

func (r *Repository) ListByProduct(ctx context.Context, productID string) ([]models.ElectricalRating, error) {
	ctx, span := tracing.StartSpan(ctx, "electricalrating.Repository.ListByProduct")
	defer span.End()

	sb := ratingStruct.SelectFrom(ratingTable)
	sb.Where(sb.Equal("product_id", productID))
	sb.OrderBy("condition")

	query, args := sb.Build()
	var ratings []models.ElectricalRating
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &ratings, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list electrical ratings for product %s: %w", productID, err)
	}

	return ratings, nil
}
