package syncrun

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const syncRunTable = "sync_runs"

var runColumns = []string{"id", "dataset_id", "product_type", "status", "report", "started_at", "finished_at"}

type row struct {
	ID          string                        `db:"id"`
	DatasetID   string                        `db:"dataset_id"`
	ProductType string                        `db:"product_type"`
	Status      models.SyncRunStatus          `db:"status"`
	Report      database.JSONB[models.Report] `db:"report"`
	StartedAt   time.Time                     `db:"started_at"`
	FinishedAt  time.Time                     `db:"finished_at"`
}

func (r row) toModel() models.SyncRun {
	report := r.Report.GetValue()
	return models.SyncRun{
		ID:          r.ID,
		DatasetID:   r.DatasetID,
		ProductType: r.ProductType,
		Status:      r.Status,
		Report:      &report,
		StartedAt:   r.StartedAt,
		FinishedAt:  r.FinishedAt,
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

func (r *Repository) Save(ctx context.Context, run *models.SyncRun) error {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Save")
	defer span.End()

	var report models.Report
	if run.Report != nil {
		report = *run.Report
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(syncRunTable)
	ib.Cols(runColumns...)
	ib.Values(run.ID, run.DatasetID, run.ProductType, run.Status, database.NewJSONB(report), run.StartedAt, run.FinishedAt)
	ub := ib.OnConflict("id")
	ub.Set(
		ub.Assign("status", database.Excluded("status")),
		ub.Assign("report", database.Excluded("report")),
		ub.Assign("finished_at", database.Excluded("finished_at")),
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":     run.ID,
			"dataset_id": run.DatasetID,
		}).Error("Failed to save sync run")
		return fmt.Errorf("failed to save sync run %s: %w", run.ID, err)
	}

	return nil
}

// Get returns nil when no run has id.
func (r *Repository) Get(ctx context.Context, id string) (*models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.Get")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(syncRunTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var found row
	if err := database.Conn(ctx, r.db).GetContext(ctx, &found, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get sync run")
		return nil, fmt.Errorf("failed to get sync run %s: %w", id, err)
	}

	run := found.toModel()
	return &run, nil
}

// List returns the newest runs first. An empty datasetID lists every dataset.
func (r *Repository) List(ctx context.Context, datasetID string, limit int) ([]models.SyncRun, error) {
	ctx, span := tracing.StartSpan(ctx, "syncrun.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(runColumns...)
	sb.From(syncRunTable)
	if datasetID != "" {
		sb.Where(sb.Equal("dataset_id", datasetID))
	}
	sb.OrderBy("started_at").Desc()
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var rows []row
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sync runs")
		return nil, fmt.Errorf("failed to list sync runs: %w", err)
	}

	runs := make([]models.SyncRun, len(rows))
	for i, found := range rows {
		runs[i] = found.toModel()
	}
	return runs, nil
}
