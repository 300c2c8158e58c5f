// Package staging validates raw source records against the taxonomy catalog,
// normalizes them and holds them in a staging area until they are merged.
package staging

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/taxonomy"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// Result is what a load staged. Received counts every input record and
// equals Accepted + rejected + superseded.
type Result struct {
	DatasetID       string
	TaxonomyVersion string
	Received        int
	Accepted        int
	// Report carries the rejected and superseded details.
	Report  *models.Report
	Records []models.StagedRecord
}

type Loader struct {
	catalog taxonomy.Catalog
	area    Area
	logger  ectologger.Logger
	now     func() time.Time
}

func NewLoader(catalog taxonomy.Catalog, area Area, logger ectologger.Logger) *Loader {
	return &Loader{
		catalog: catalog,
		area:    area,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Load replaces the dataset's staging rows with the valid records of batch.
// Invalid records are reported, never staged. A later record with the same
// natural key replaces the earlier one, which is reported as superseded.
func (l *Loader) Load(ctx context.Context, batch models.Batch) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "staging.Loader.Load")
	defer span.End()

	if l.catalog == nil {
		return nil, syncerrors.NewCatalogUnavailableError(errors.New("no taxonomy catalog configured"))
	}
	pt, err := models.ParseProductType(string(batch.ProductType))
	if err != nil {
		return nil, syncerrors.Newf(syncerrors.KindValidation, "dataset %s has unknown product type %q", batch.DatasetID, batch.ProductType)
	}
	batch.ProductType = pt

	report := &models.Report{DatasetID: batch.DatasetID, ProductType: pt, TaxonomyVersion: l.catalog.Version()}
	validator := NewValidator(l.catalog, pt)
	stagedAt := l.now()

	byKey := map[models.NaturalKey]*models.StagedRecord{}
	for seq, raw := range batch.Records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rec, fieldErrs := l.prepare(validator, raw, pt)
		if len(fieldErrs) > 0 {
			key := ""
			if rec != nil {
				key = rec.Key.String()
			}
			report.AddDetail(models.RecordDetail{
				Seq:        seq,
				NaturalKey: key,
				Outcome:    models.OutcomeRejectedValidation,
				Kind:       syncerrors.KindValidation,
				Message:    "record failed taxonomy validation",
				Fields:     fieldErrs,
			})
			continue
		}

		rec.DatasetID = batch.DatasetID
		rec.Seq = seq
		rec.TaxonomyVersion = l.catalog.Version()
		rec.StagedAt = stagedAt

		if earlier, dup := byKey[rec.Key]; dup {
			dupErr := syncerrors.NewDuplicateKeyError(rec.Key.String(), seq)
			report.AddDetail(models.RecordDetail{
				Seq:        earlier.Seq,
				NaturalKey: rec.Key.String(),
				Outcome:    models.OutcomeSuperseded,
				Kind:       syncerrors.KindDuplicateKey,
				Message:    dupErr.Message,
			})
		}
		byKey[rec.Key] = rec
	}

	records := ectolinq.Values(byKey)
	sort.Slice(records, func(i, j int) bool { return records[i].Key.Less(records[j].Key) })

	if err := l.area.Clear(ctx, batch.DatasetID); err != nil {
		return nil, err
	}
	for _, rec := range records {
		if err := l.area.Put(ctx, rec); err != nil {
			return nil, err
		}
	}
	staged, err := l.area.List(ctx, batch.DatasetID)
	if err != nil {
		return nil, err
	}

	report.Received = len(batch.Records)
	report.Accepted = len(staged)

	l.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset_id":  batch.DatasetID,
		"received":    report.Received,
		"accepted":    report.Accepted,
		"rejected":    report.RejectedValidation,
		"superseded":  report.Superseded,
		"taxonomy":    l.catalog.Version(),
		"producttype": pt,
	}).Info("Staged dataset")

	return &Result{
		DatasetID:       batch.DatasetID,
		TaxonomyVersion: l.catalog.Version(),
		Received:        report.Received,
		Accepted:        report.Accepted,
		Report:          report,
		Records:         staged,
	}, nil
}

func (l *Loader) prepare(validator *Validator, raw models.RawRecord, pt models.ProductType) (*models.StagedRecord, []syncerrors.FieldError) {
	result := validator.Validate(raw)
	rec, errs := normalize(result.Values, pt)
	if !result.Valid {
		errs = append(result.Errors, errs...)
	}
	return rec, errs
}
