package sourcecountry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const countryTable = "source_countries"

var (
	countryStruct = database.NewStruct(new(models.SourceCountry))

	productCountries = database.Association{
		Table:    "product_source_countries",
		OwnerCol: "product_id",
		RefCol:   "source_country_id",
	}
)

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

// Ensure returns the country with ISO code, creating it when absent.
func (r *Repository) Ensure(ctx context.Context, code string) (*models.SourceCountry, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcecountry.Repository.Ensure")
	defer span.End()

	code = strings.ToUpper(code)
	row := models.SourceCountry{
		ID:        uuid.New().String(),
		Code:      code,
		CreatedAt: time.Now().UTC(),
	}

	ib := countryStruct.InsertInto(countryTable, &row)
	ib.OnConflictDoNothing()
	ib.Returning("id", "code", "created_at")

	query, args := ib.Build()
	var created models.SourceCountry
	err := database.Conn(ctx, r.db).GetContext(ctx, &created, query, args...)
	if err == nil {
		return &created, nil
	}
	if !database.IsNoRows(err) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"code": code,
		}).Error("Failed to create source country")
		return nil, fmt.Errorf("failed to create source country %s: %w", code, err)
	}

	sb := countryStruct.SelectFrom(countryTable)
	sb.Where(sb.Equal("code", code))

	query, args = sb.Build()
	var existing models.SourceCountry
	if err := database.Conn(ctx, r.db).GetContext(ctx, &existing, query, args...); err != nil {
		return nil, fmt.Errorf("failed to read back source country %s: %w", code, err)
	}
	return &existing, nil
}

func (r *Repository) ReplaceForProduct(ctx context.Context, productID string, countryIDs []string) (models.AssociationDiff, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcecountry.Repository.ReplaceForProduct")
	defer span.End()

	added, removed, err := productCountries.Replace(ctx, database.Conn(ctx, r.db), productID, countryIDs)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"product_id": productID,
		}).Error("Failed to replace product source countries")
		return models.AssociationDiff{}, err
	}
	return models.AssociationDiff{Added: added, Removed: removed}, nil
}

func (r *Repository) ListByProduct(ctx context.Context, productID string) ([]models.SourceCountry, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcecountry.Repository.ListByProduct")
	defer span.End()

	sb := countryStruct.SelectFrom(countryTable)
	sb.Join(productCountries.Table+" psc", "psc.source_country_id = "+countryTable+".id")
	sb.Where(sb.Equal("psc.product_id", productID))
	sb.OrderBy(countryTable + ".code")

	query, args := sb.Build()
	var countries []models.SourceCountry
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &countries, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list source countries for product %s: %w", productID, err)
	}
	return countries, nil
}
