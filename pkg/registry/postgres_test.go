package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/Gobusters/ectologger"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

func setupMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db := database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), logger)
	return NewPostgresStore(db, logger), mock
}

func TestPostgresStore_EnsureEntity_ReadsBackOnConflict(t *testing.T) {
	store, mock := setupMockStore(t)
	created := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`INSERT INTO entities .* ON CONFLICT DO NOTHING RETURNING`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "created_at"}))
	mock.ExpectQuery(`SELECT .* FROM entities WHERE external_id = \$1`).
		WithArgs("ACME").
		WillReturnRows(sqlmock.NewRows([]string{"id", "external_id", "name", "created_at"}).
			AddRow("e-1", "ACME", "Acme Solar", created))

	entity, err := store.EnsureEntity(context.Background(), &models.Entity{ExternalID: "ACME", Name: "Acme Solar Inc"})
	require.NoError(t, err)
	assert.Equal(t, "e-1", entity.ID)
	assert.Equal(t, "Acme Solar", entity.Name)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTx_Commits(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock\(hashtext\(\$1\)\)`).
		WithArgs("ACME-X100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT prod_code FROM products WHERE entity_id = \$1 AND model_number = \$2`).
		WithArgs("e-1", "X100").
		WillReturnRows(sqlmock.NewRows([]string{"prod_code"}))
	mock.ExpectQuery(`SELECT prod_code FROM products WHERE \(prod_code = \$1 OR left\(prod_code, 10\) = \$2\)`).
		WithArgs("ACME-X100", "ACME-X100-").
		WillReturnRows(sqlmock.NewRows([]string{"prod_code"}).AddRow("ACME-X100"))
	mock.ExpectQuery(`INSERT INTO products .* ON CONFLICT \(entity_id, model_number\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "prod_code", "inserted"}).AddRow("p-1", "ACME-X100-2", true))
	mock.ExpectExec(`INSERT INTO dimensions .* ON CONFLICT \(product_id\) DO UPDATE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var result *models.UpsertResult
	err := store.WithinTx(context.Background(), func(ctx context.Context, w Writer) error {
		var err error
		result, err = w.UpsertProduct(ctx, &models.Product{
			EntityID:    "e-1",
			ProductType: models.ProductTypeModule,
			ModelNumber: "X100",
			ProdCode:    "ACME-X100",
		})
		if err != nil {
			return err
		}
		return w.ReplaceDimension(ctx, result.ProductID, nil)
	})
	require.NoError(t, err)
	assert.Equal(t, "p-1", result.ProductID)
	assert.True(t, result.IsNew)
	assert.Equal(t, "ACME-X100-2", result.ProdCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertProduct_KeepsStoredProdCode(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`SELECT pg_advisory_xact_lock`).
		WithArgs("ACME-X_100").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT prod_code FROM products WHERE entity_id = \$1 AND model_number = \$2`).
		WithArgs("e-1", "X.100").
		WillReturnRows(sqlmock.NewRows([]string{"prod_code"}).AddRow("ACME-X_100-2"))
	mock.ExpectQuery(`INSERT INTO products .* ON CONFLICT \(entity_id, model_number\) DO UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "prod_code", "inserted"}).AddRow("p-2", "ACME-X_100-2", false))
	mock.ExpectCommit()

	var result *models.UpsertResult
	err := store.WithinTx(context.Background(), func(ctx context.Context, w Writer) error {
		var err error
		result, err = w.UpsertProduct(ctx, &models.Product{
			EntityID:    "e-1",
			ProductType: models.ProductTypeModule,
			ModelNumber: "X.100",
			ProdCode:    "ACME-X_100",
		})
		return err
	})
	require.NoError(t, err)
	assert.False(t, result.IsNew)
	assert.Equal(t, "ACME-X_100-2", result.ProdCode)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTx_ClassifiesForeignKeyViolation(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT certification_id FROM product_certifications`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"certification_id"}))
	mock.ExpectExec(`INSERT INTO product_certifications`).
		WillReturnError(&pq.Error{Code: "23503", Message: "violates foreign key constraint"})
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(ctx context.Context, w Writer) error {
		_, err := w.ReplaceCertifications(ctx, "p-1", []string{"c-1"})
		return err
	})
	assert.True(t, syncerrors.Is(err, syncerrors.KindReferentialIntegrity), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTx_ReplaceCertificationsDiff(t *testing.T) {
	store, mock := setupMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT certification_id FROM product_certifications`).
		WithArgs("p-1").
		WillReturnRows(sqlmock.NewRows([]string{"certification_id"}).AddRow("c-1").AddRow("c-2"))
	mock.ExpectExec(`DELETE FROM product_certifications`).
		WithArgs("p-1", "c-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO product_certifications .* ON CONFLICT DO NOTHING`).
		WithArgs("p-1", "c-3").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var diff models.AssociationDiff
	err := store.WithinTx(context.Background(), func(ctx context.Context, w Writer) error {
		var err error
		diff, err = w.ReplaceCertifications(ctx, "p-1", []string{"c-2", "c-3"})
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"c-3"}, diff.Added)
	assert.Equal(t, []string{"c-1"}, diff.Removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_WithinTx_RollsBackOnCallbackError(t *testing.T) {
	store, mock := setupMockStore(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), func(context.Context, Writer) error {
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, syncerrors.KindTransaction, syncerrors.KindOf(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping_Unavailable(t *testing.T) {
	store, mock := setupMockStore(t)
	mock.ExpectPing().WillReturnError(errors.New("dial tcp: connection refused"))

	err := store.Ping(context.Background())
	assert.True(t, syncerrors.Is(err, syncerrors.KindStoreUnavailable))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want syncerrors.Kind
	}{
		{"unique violation", &pq.Error{Code: "23505"}, syncerrors.KindTransaction},
		{"foreign key violation", &pq.Error{Code: "23503"}, syncerrors.KindReferentialIntegrity},
		{"statement timeout", &pq.Error{Code: "57014"}, syncerrors.KindTransactionTimeout},
		{"deadline", context.DeadlineExceeded, syncerrors.KindTransactionTimeout},
		{"connection failure", &pq.Error{Code: "08006"}, syncerrors.KindStoreUnavailable},
		{"admin shutdown", &pq.Error{Code: "57P01"}, syncerrors.KindStoreUnavailable},
		{"already classified", syncerrors.NewValidationError(), syncerrors.KindValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, syncerrors.KindOf(classify(tt.err)))
		})
	}

	assert.NoError(t, classify(nil))
	assert.ErrorIs(t, classify(context.Canceled), context.Canceled)
	assert.Equal(t, syncerrors.Kind(""), syncerrors.KindOf(classify(context.Canceled)))
}
