package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const entityTable = "entities"

var entityStruct = database.NewStruct(new(models.Entity))

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

// Ensure returns the entity with entity.ExternalID, creating it when absent.
// A concurrent creator winning the insert is read back rather than reported.
func (r *Repository) Ensure(ctx context.Context, entity *models.Entity) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.Ensure")
	defer span.End()

	row := models.Entity{
		ID:         uuid.New().String(),
		ExternalID: entity.ExternalID,
		Name:       entity.Name,
		CreatedAt:  time.Now().UTC(),
	}

	ib := entityStruct.InsertInto(entityTable, &row)
	ib.OnConflictDoNothing()
	ib.Returning("id", "external_id", "name", "created_at")

	query, args := ib.Build()
	var created models.Entity
	err := database.Conn(ctx, r.db).GetContext(ctx, &created, query, args...)
	if err == nil {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"id":          created.ID,
			"external_id": created.ExternalID,
		}).Info("Created entity")
		return &created, nil
	}
	if !database.IsNoRows(err) {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_id": entity.ExternalID,
		}).Error("Failed to create entity")
		return nil, fmt.Errorf("failed to create entity %s: %w", entity.ExternalID, err)
	}

	existing, err := r.GetByExternalID(ctx, entity.ExternalID)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, fmt.Errorf("entity %s vanished after insert conflict", entity.ExternalID)
	}
	return existing, nil
}

// GetByExternalID returns nil when no entity has externalID.
func (r *Repository) GetByExternalID(ctx context.Context, externalID string) (*models.Entity, error) {
	ctx, span := tracing.StartSpan(ctx, "entity.Repository.GetByExternalID")
	defer span.End()

	sb := entityStruct.SelectFrom(entityTable)
	sb.Where(sb.Equal("external_id", externalID))

	query, args := sb.Build()
	var entity models.Entity
	if err := database.Conn(ctx, r.db).GetContext(ctx, &entity, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"external_id": externalID,
		}).Error("Failed to get entity")
		return nil, fmt.Errorf("failed to get entity %s: %w", externalID, err)
	}

	return &entity, nil
}
