package firmware

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const firmwareTable = "firmware"

var firmwareStruct = database.NewStruct(new(models.Firmware))

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

// Replace sets the product's firmware, or removes it when firmware is nil.
func (r *Repository) Replace(ctx context.Context, productID string, firmware *models.Firmware) error {
	ctx, span := tracing.StartSpan(ctx, "firmware.Repository.Replace")
	defer span.End()

	if firmware == nil {
		db := database.NewDeleteBuilder()
		db.DeleteFrom(firmwareTable)
		db.Where(db.Equal("product_id", productID))

		query, args := db.Build()
		if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to clear firmware for product %s: %w", productID, err)
		}
		return nil
	}

	row := *firmware
	row.ProductID = productID

	ib := firmwareStruct.InsertInto(firmwareTable, &row)
	ub := ib.OnConflict("product_id")
	ub.Set(
		ub.Assign("version", database.Excluded("version")),
		ub.Assign("revision", database.Excluded("revision")),
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
			"version":    firmware.Version,
		}).Error("Failed to replace firmware")
		return fmt.Errorf("failed to replace firmware for product %s: %w", productID, err)
	}

	return nil
}

func (r *Repository) Get(ctx context.Context, productID string) (*models.Firmware, error) {
	ctx, span := tracing.StartSpan(ctx, "firmware.Repository.Get")
	defer span.End()

	sb := firmwareStruct.SelectFrom(firmwareTable)
	sb.Where(sb.Equal("product_id", productID))

	query, args := sb.Build()
	var fw models.Firmware
	if err := database.Conn(ctx, r.db).GetContext(ctx, &fw, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get firmware for product %s: %w", productID, err)
	}

	return &fw, nil
}
