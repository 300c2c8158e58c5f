package registry

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/certification"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/checksum"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/dimension"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/electricalrating"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/entity"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/firmware"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/product"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/sourcecountry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/internal/repositories/syncrun"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

// PostgresStore is the Store backed by the registry schema in db/pg.
type PostgresStore struct {
	db     database.DB
	logger ectologger.Logger

	entities       *entity.Repository
	products       *product.Repository
	dimensions     *dimension.Repository
	ratings        *electricalrating.Repository
	firmware       *firmware.Repository
	certifications *certification.Repository
	countries      *sourcecountry.Repository
	checksums      *checksum.Repository
	runs           *syncrun.Repository
}

var (
	_ Store    = (*PostgresStore)(nil)
	_ RunStore = (*PostgresStore)(nil)
)

func NewPostgresStore(db database.DB, logger ectologger.Logger) *PostgresStore {
	return &PostgresStore{
		db:             db,
		logger:         logger,
		entities:       entity.NewRepository(db, logger),
		products:       product.NewRepository(db, logger),
		dimensions:     dimension.NewRepository(db, logger),
		ratings:        electricalrating.NewRepository(db, logger),
		firmware:       firmware.NewRepository(db, logger),
		certifications: certification.NewRepository(db, logger),
		countries:      sourcecountry.NewRepository(db, logger),
		checksums:      checksum.NewRepository(db, logger),
		runs:           syncrun.NewRepository(db, logger),
	}
}

// classify maps driver errors onto the sync error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var syncErr *syncerrors.SyncError
	if errors.As(err, &syncErr) {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case database.IsUnavailable(err):
		return syncerrors.NewStoreUnavailableError(err)
	case database.IsForeignKeyViolation(err):
		return syncerrors.NewReferentialIntegrityError(err)
	case database.IsTimeout(err):
		return syncerrors.NewTransactionTimeoutError(err)
	case database.IsUniqueViolation(err):
		return syncerrors.Wrap(syncerrors.KindTransaction, err, "unique constraint violated")
	}
	return syncerrors.Wrap(syncerrors.KindTransaction, err, "statement failed")
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return syncerrors.NewStoreUnavailableError(err)
	}
	return nil
}

func (s *PostgresStore) EnsureEntity(ctx context.Context, e *models.Entity) (*models.Entity, error) {
	found, err := s.entities.Ensure(ctx, e)
	return found, classify(err)
}

func (s *PostgresStore) EnsureCertificationAgency(ctx context.Context, name string) (*models.CertificationAgency, error) {
	found, err := s.certifications.EnsureAgency(ctx, name)
	return found, classify(err)
}

func (s *PostgresStore) EnsureCertification(ctx context.Context, cert *models.Certification) (*models.Certification, error) {
	found, err := s.certifications.Ensure(ctx, cert)
	return found, classify(err)
}

func (s *PostgresStore) EnsureSourceCountry(ctx context.Context, code string) (*models.SourceCountry, error) {
	found, err := s.countries.Ensure(ctx, code)
	return found, classify(err)
}

func (s *PostgresStore) GetChecksum(ctx context.Context, key models.NaturalKey) (*models.Checksum, error) {
	found, err := s.checksums.GetByKey(ctx, key)
	return found, classify(err)
}

func (s *PostgresStore) GetProduct(ctx context.Context, key models.NaturalKey) (*ProductAggregate, error) {
	ctx, span := tracing.StartSpan(ctx, "registry.PostgresStore.GetProduct")
	defer span.End()

	p, err := s.products.GetByKey(ctx, key)
	if err != nil || p == nil {
		return nil, classify(err)
	}
	e, err := s.entities.GetByExternalID(ctx, key.EntityExternalID)
	if err != nil {
		return nil, classify(err)
	}

	agg := &ProductAggregate{Product: *p}
	if e != nil {
		agg.Entity = *e
	}
	if agg.Dimension, err = s.dimensions.Get(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	if agg.ElectricalRatings, err = s.ratings.ListByProduct(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	if agg.Firmware, err = s.firmware.Get(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	if agg.Certifications, err = s.certifications.ListByProduct(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	if agg.SourceCountries, err = s.countries.ListByProduct(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	if agg.Checksum, err = s.checksums.GetByProduct(ctx, p.ID); err != nil {
		return nil, classify(err)
	}
	return agg, nil
}

func (s *PostgresStore) DeleteProduct(ctx context.Context, key models.NaturalKey) (bool, error) {
	var deleted bool
	err := s.WithinTx(ctx, func(ctx context.Context, _ Writer) error {
		p, err := s.products.GetByKey(ctx, key)
		if err != nil || p == nil {
			return err
		}
		deleted, err = s.products.Delete(ctx, p.ID)
		return err
	})
	return deleted, err
}

// WithinTx runs fn in a transaction carried by ctx; every repository call
// made with that ctx joins it.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, w Writer) error) error {
	ctx, span := tracing.StartSpan(ctx, "registry.PostgresStore.WithinTx")
	defer span.End()

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	defer tx.Rollback(ctx)

	if err := fn(ctx, &pgWriter{store: s}); err != nil {
		return classify(err)
	}

	return classify(tx.Commit(ctx))
}

func (s *PostgresStore) SaveRun(ctx context.Context, run *models.SyncRun) error {
	return classify(s.runs.Save(ctx, run))
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*models.SyncRun, error) {
	run, err := s.runs.Get(ctx, id)
	return run, classify(err)
}

func (s *PostgresStore) ListRuns(ctx context.Context, datasetID string, limit int) ([]models.SyncRun, error) {
	runs, err := s.runs.List(ctx, datasetID, limit)
	return runs, classify(err)
}

type pgWriter struct {
	store *PostgresStore
}

func (w *pgWriter) UpsertProduct(ctx context.Context, p *models.Product) (*models.UpsertResult, error) {
	return w.store.products.Upsert(ctx, p)
}

func (w *pgWriter) ReplaceDimension(ctx context.Context, productID string, d *models.Dimension) error {
	return w.store.dimensions.Replace(ctx, productID, d)
}

func (w *pgWriter) ReplaceElectricalRatings(ctx context.Context, productID string, ratings []models.ElectricalRating) error {
	return w.store.ratings.Replace(ctx, productID, ratings)
}

func (w *pgWriter) ReplaceFirmware(ctx context.Context, productID string, fw *models.Firmware) error {
	return w.store.firmware.Replace(ctx, productID, fw)
}

func (w *pgWriter) ReplaceCertifications(ctx context.Context, productID string, ids []string) (models.AssociationDiff, error) {
	return w.store.certifications.ReplaceForProduct(ctx, productID, ids)
}

func (w *pgWriter) ReplaceSourceCountries(ctx context.Context, productID string, ids []string) (models.AssociationDiff, error) {
	return w.store.countries.ReplaceForProduct(ctx, productID, ids)
}

func (w *pgWriter) StoreChecksum(ctx context.Context, c *models.Checksum) error {
	return w.store.checksums.Store(ctx, c)
}
