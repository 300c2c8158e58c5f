// Package synchronizer merges staged records into the registry, one
// transaction per record.
package synchronizer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/checksum"
	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/metrics"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const (
	DefaultTxTimeout = 30 * time.Second
	maxAttempts      = 2
)

// Emitter announces committed products. *events.Emitter is one.
type Emitter interface {
	EmitProductChanged(ctx context.Context, rec *models.StagedRecord, change models.ProductChange, fingerprint, runID string) error
}

type Options struct {
	// TxTimeout bounds each record transaction. Zero means DefaultTxTimeout.
	TxTimeout time.Duration
	// DryRun marks the report and suppresses events. The caller points the
	// synchronizer at a scratch store.
	DryRun  bool
	Emitter Emitter
}

type Synchronizer struct {
	store   registry.Store
	tracker *checksum.Tracker
	logger  ectologger.Logger
	opts    Options
	now     func() time.Time
}

func New(store registry.Store, logger ectologger.Logger, opts Options) *Synchronizer {
	if opts.TxTimeout <= 0 {
		opts.TxTimeout = DefaultTxTimeout
	}
	return &Synchronizer{
		store:   store,
		tracker: checksum.NewTracker(store),
		logger:  logger,
		opts:    opts,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run identifies one synchronization of a dataset.
type Run struct {
	ID        string
	DatasetID string
	Records   []models.StagedRecord
}

// Sync applies the staged records in natural-key order.
//
// Record-scoped failures are reported and the batch continues. A store
// outage fails the current record, aborts the batch and returns the error
// with the partial report.
// Cancellation is honored between records and returns ctx.Err() with the
// report of what was committed before it.
func (s *Synchronizer) Sync(ctx context.Context, run Run) (*models.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "synchronizer.Synchronizer.Sync")
	defer span.End()

	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	report := &models.Report{
		RunID:     run.ID,
		DatasetID: run.DatasetID,
		DryRun:    s.opts.DryRun,
		StartedAt: s.now(),
	}
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset_id": run.DatasetID,
		"run_id":     run.ID,
	})

	records := s.dedupe(run.Records, report)
	if len(records) > 0 {
		report.ProductType = records[0].ProductType
		report.TaxonomyVersion = records[0].TaxonomyVersion
	}

	var runErr error
	for i := range records {
		if err := ctx.Err(); err != nil {
			report.Canceled = true
			report.NotAttempted = len(records) - i
			runErr = err
			log.WithFields(map[string]any{"not_attempted": report.NotAttempted}).Warn("Sync canceled")
			break
		}

		rec := &records[i]
		if err := s.apply(ctx, run.ID, rec, report); err != nil {
			if errors.Is(err, context.Canceled) {
				report.Canceled = true
				report.NotAttempted = len(records) - i
				runErr = err
				log.WithFields(map[string]any{"not_attempted": report.NotAttempted}).Warn("Sync canceled")
				break
			}
			report.Aborted = true
			report.AbortReason = err.Error()
			report.NotAttempted = len(records) - i - 1
			runErr = err
			log.WithError(err).WithFields(map[string]any{
				"committed":     report.Committed(),
				"not_attempted": report.NotAttempted,
			}).Error("Sync aborted")
			break
		}
	}

	report.FinishedAt = s.now()
	log.WithFields(map[string]any{
		"created":            report.Created,
		"updated":            report.Updated,
		"skipped_unchanged":  report.SkippedUnchanged,
		"failed_transaction": report.FailedTransaction,
		"superseded":         report.Superseded,
		"dry_run":            report.DryRun,
	}).Info("Sync finished")

	return report, runErr
}

// dedupe orders records by natural key and keeps the last of any records
// sharing one. The loader already does this; Sync does not rely on it.
func (s *Synchronizer) dedupe(in []models.StagedRecord, report *models.Report) []models.StagedRecord {
	records := append([]models.StagedRecord(nil), in...)
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Key != records[j].Key {
			return records[i].Key.Less(records[j].Key)
		}
		return records[i].Seq < records[j].Seq
	})

	latest := make(map[models.NaturalKey]int, len(records))
	for _, rec := range records {
		latest[rec.Key] = rec.Seq
	}
	return ectolinq.Filter(records, func(rec models.StagedRecord) bool {
		last := latest[rec.Key]
		if rec.Seq == last {
			return true
		}
		dupErr := syncerrors.NewDuplicateKeyError(rec.Key.String(), last)
		report.AddDetail(models.RecordDetail{
			Seq:        rec.Seq,
			NaturalKey: rec.Key.String(),
			Outcome:    models.OutcomeSuperseded,
			Kind:       syncerrors.KindDuplicateKey,
			Message:    dupErr.Message,
		})
		return false
	})
}

// apply synchronizes one record. It returns an error only when the batch
// must stop; everything else lands in the report.
func (s *Synchronizer) apply(ctx context.Context, runID string, rec *models.StagedRecord, report *models.Report) error {
	ctx, span := tracing.StartSpan(ctx, "synchronizer.Synchronizer.apply")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"dataset_id":  rec.DatasetID,
		"natural_key": rec.Key.String(),
		"seq":         rec.Seq,
	})

	fail := func(err error, attempts int) error {
		if errors.Is(err, context.Canceled) {
			return err
		}
		kind := syncerrors.KindOf(err)
		if kind == "" {
			kind = syncerrors.KindTransaction
		}
		report.AddDetail(models.RecordDetail{
			Seq:        rec.Seq,
			NaturalKey: rec.Key.String(),
			Outcome:    models.OutcomeFailedTransaction,
			Kind:       kind,
			Message:    err.Error(),
			Attempts:   attempts,
		})
		metrics.RecordOutcome(rec.DatasetID, string(models.OutcomeFailedTransaction))
		log.WithError(err).WithField("attempts", attempts).Warn("Record not applied")
		if syncerrors.IsBatchFatal(err) {
			return err
		}
		return nil
	}

	fp := s.tracker.Compute(rec)
	stored, found, err := s.lookup(ctx, rec.Key)
	if err != nil {
		return fail(err, 0)
	}
	if found && s.tracker.Unchanged(stored, fp) {
		report.SkippedUnchanged++
		metrics.RecordOutcome(rec.DatasetID, string(models.OutcomeSkippedUnchanged))
		log.Debug("Record unchanged")
		return nil
	}

	var result *models.UpsertResult
	attempt := 0
	for {
		attempt++
		result, err = s.attempt(ctx, rec, fp)
		if err == nil {
			break
		}
		if syncerrors.IsRetryable(err) && attempt < maxAttempts {
			metrics.RecordRetry(rec.DatasetID, string(syncerrors.KindOf(err)))
			log.WithError(err).Info("Retrying record transaction")
			continue
		}
		return fail(err, attempt)
	}
	rec.ProdCode = result.ProdCode

	change := models.ProductChange{
		Seq:        rec.Seq,
		NaturalKey: rec.Key.String(),
		ProductID:  result.ProductID,
		ProdCode:   result.ProdCode,
		Outcome:    models.OutcomeUpdated,
	}
	if result.IsNew {
		change.Outcome = models.OutcomeCreated
	}
	report.AddChange(change)
	metrics.RecordOutcome(rec.DatasetID, string(change.Outcome))
	log.WithFields(map[string]any{"product_id": result.ProductID, "outcome": change.Outcome}).Debug("Record applied")

	if s.opts.Emitter != nil && !s.opts.DryRun {
		// the product is committed; a lost event is not a failed record
		if err := s.opts.Emitter.EmitProductChanged(ctx, rec, change, fp, runID); err != nil {
			log.WithError(err).Warn("Failed to publish product change")
		}
	}
	return nil
}

// lookup reads the stored fingerprint, bounded like a transaction.
func (s *Synchronizer) lookup(ctx context.Context, key models.NaturalKey) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	stored, found, err := s.tracker.Lookup(ctx, key)
	if err != nil {
		return "", false, timedOut(ctx, err)
	}
	return stored, found, nil
}

// attempt resolves the shared rows and runs the record transaction once.
// Both are repeated on retry, so a row deleted after the first attempt is
// created again.
func (s *Synchronizer) attempt(ctx context.Context, rec *models.StagedRecord, fp string) (*models.UpsertResult, error) {
	refs, err := s.resolveRefs(ctx, rec)
	if err != nil {
		return nil, err
	}

	// the transaction finishes even if the run is canceled meanwhile
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.TxTimeout)
	defer cancel()

	start := time.Now()
	var result *models.UpsertResult
	err = s.store.WithinTx(txCtx, func(ctx context.Context, w registry.Writer) error {
		var err error
		result, err = w.UpsertProduct(ctx, rec.Product(refs.entityID))
		if err != nil {
			return err
		}
		if err := w.ReplaceDimension(ctx, result.ProductID, rec.Dimension); err != nil {
			return err
		}
		if err := w.ReplaceElectricalRatings(ctx, result.ProductID, rec.ElectricalRatings); err != nil {
			return err
		}
		if _, err := w.ReplaceCertifications(ctx, result.ProductID, refs.certIDs); err != nil {
			return err
		}
		if _, err := w.ReplaceSourceCountries(ctx, result.ProductID, refs.countryIDs); err != nil {
			return err
		}
		if err := w.ReplaceFirmware(ctx, result.ProductID, rec.Firmware); err != nil {
			return err
		}
		return s.tracker.Store(ctx, w, result.ProductID, fp, rec.DatasetID)
	})
	metrics.RecordTransaction(rec.DatasetID, time.Since(start).Seconds())

	if err != nil {
		return nil, timedOut(txCtx, err)
	}
	return result, nil
}

// timedOut marks err as a transaction timeout when ctx's deadline passed.
func timedOut(ctx context.Context, err error) error {
	if syncerrors.Is(err, syncerrors.KindTransactionTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return syncerrors.NewTransactionTimeoutError(err)
	}
	return err
}

type refs struct {
	entityID   string
	certIDs    []string
	countryIDs []string
}

// resolveRefs creates-if-absent the entity and the shared rows the record
// cites, within TxTimeout, and returns their ids.
func (s *Synchronizer) resolveRefs(ctx context.Context, rec *models.StagedRecord) (*refs, error) {
	ctx, span := tracing.StartSpan(ctx, "synchronizer.Synchronizer.resolveRefs")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, s.opts.TxTimeout)
	defer cancel()

	entity, err := s.store.EnsureEntity(ctx, &models.Entity{ExternalID: rec.Key.EntityExternalID, Name: rec.EntityName})
	if err != nil {
		return nil, timedOut(ctx, err)
	}
	out := &refs{
		entityID:   entity.ID,
		certIDs:    make([]string, 0, len(rec.Certifications)),
		countryIDs: make([]string, 0, len(rec.SourceCountries)),
	}

	for _, ref := range rec.Certifications {
		agency, err := s.store.EnsureCertificationAgency(ctx, ref.AgencyName)
		if err != nil {
			return nil, timedOut(ctx, err)
		}
		cert, err := s.store.EnsureCertification(ctx, &models.Certification{
			AgencyID:          agency.ID,
			Standard:          ref.Standard,
			CertificateNumber: ref.CertificateNumber,
			IssuedOn:          ref.IssuedOn,
			ExpiresOn:         ref.ExpiresOn,
		})
		if err != nil {
			return nil, timedOut(ctx, err)
		}
		out.certIDs = append(out.certIDs, cert.ID)
	}

	for _, code := range rec.SourceCountries {
		country, err := s.store.EnsureSourceCountry(ctx, code)
		if err != nil {
			return nil, timedOut(ctx, err)
		}
		out.countryIDs = append(out.countryIDs, country.ID)
	}
	return out, nil
}
