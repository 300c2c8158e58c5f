// Package ingest runs a dataset through staging and synchronization and
// records the run.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	appctx "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/context"
	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/metrics"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/redis"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/staging"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/synchronizer"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

const DefaultLockTTL = 10 * time.Minute

// RunEmitter announces finished runs. *events.Emitter is one.
type RunEmitter interface {
	EmitSyncCompleted(ctx context.Context, report *models.Report) error
}

// Service processes one batch per Run call. Runs of different datasets may
// proceed concurrently; a configured locker serializes runs of one dataset
// across processes.
type Service struct {
	loader       *staging.Loader
	synchronizer *synchronizer.Synchronizer
	runs         registry.RunStore
	logger       ectologger.Logger

	locker  *redis.Locker
	lockTTL time.Duration
	emitter RunEmitter
	now     func() time.Time
}

type Option func(*Service)

// WithLocker holds a Redis lock on the dataset for the length of each run.
func WithLocker(locker *redis.Locker, ttl time.Duration) Option {
	return func(s *Service) {
		s.locker = locker
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithRunEmitter(emitter RunEmitter) Option {
	return func(s *Service) { s.emitter = emitter }
}

func NewService(loader *staging.Loader, sync *synchronizer.Synchronizer, runs registry.RunStore, logger ectologger.Logger, opts ...Option) *Service {
	s := &Service{
		loader:       loader,
		synchronizer: sync,
		runs:         runs,
		logger:       logger,
		lockTTL:      DefaultLockTTL,
		now:          func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run stages and synchronizes batch. The returned report is complete
// whenever it is non-nil, including for aborted and canceled runs, which
// also return the error that stopped them.
func (s *Service) Run(ctx context.Context, batch models.Batch) (*models.Report, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Service.Run")
	defer span.End()

	runID := uuid.New().String()
	startedAt := s.now()
	ctx = appctx.SetRunID(appctx.SetDatasetID(ctx, batch.DatasetID), runID)
	log := s.logger.WithContext(ctx).WithFields(appctx.LogFields(ctx))

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, batch.DatasetID, s.lockTTL)
		if errors.Is(err, redis.ErrLockNotAcquired) {
			metrics.RecordLockContention(batch.DatasetID)
			log.Warn("Dataset is locked by another run")
			return nil, syncerrors.Newf(syncerrors.KindLocked, "dataset %s is being synchronized by another run", batch.DatasetID)
		}
		if err != nil {
			return nil, syncerrors.NewStoreUnavailableError(fmt.Errorf("acquire dataset lock: %w", err))
		}

		keepAlive, stop := context.WithCancel(context.WithoutCancel(ctx))
		go lock.KeepAlive(keepAlive)
		defer func() {
			stop()
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				log.WithError(err).Warn("Failed to release dataset lock")
			}
		}()
	}

	loaded, err := s.loader.Load(ctx, batch)
	if err != nil {
		log.WithError(err).Error("Failed to stage dataset")
		return nil, err
	}
	metrics.SetStaged(batch.DatasetID, loaded.Accepted)

	report, syncErr := s.synchronizer.Sync(ctx, synchronizer.Run{
		ID:        runID,
		DatasetID: batch.DatasetID,
		Records:   loaded.Records,
	})
	if report == nil {
		return nil, syncErr
	}

	report.Merge(loaded.Report)
	report.Received = loaded.Received
	report.Accepted = loaded.Accepted
	report.ProductType = batch.ProductType
	report.TaxonomyVersion = loaded.TaxonomyVersion
	report.StartedAt = startedAt
	report.FinishedAt = s.now()
	sort.SliceStable(report.Details, func(i, j int) bool { return report.Details[i].Seq < report.Details[j].Seq })

	run := &models.SyncRun{
		ID:          runID,
		DatasetID:   batch.DatasetID,
		ProductType: string(batch.ProductType),
		Status:      models.StatusOf(report),
		Report:      report,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
	}
	// a canceled run is still recorded
	if err := s.runs.SaveRun(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Error("Failed to save sync run")
		if syncErr == nil {
			syncErr = err
		}
	}

	metrics.RecordRun(batch.DatasetID, string(run.Status), report.FinishedAt.Sub(report.StartedAt).Seconds())

	if s.emitter != nil && !report.DryRun {
		if err := s.emitter.EmitSyncCompleted(context.WithoutCancel(ctx), report); err != nil {
			log.WithError(err).Warn("Failed to publish sync summary")
		}
	}

	log.WithFields(map[string]any{
		"status":    run.Status,
		"received":  report.Received,
		"committed": report.Committed(),
	}).Info("Ingest run finished")

	return report, syncErr
}
