//go:build integration

package registry

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/database"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
)

func startPostgres(t *testing.T) database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:15-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "user",
				"POSTGRES_PASSWORD": "password",
				"POSTGRES_DB":       "registry",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	db, err := database.Connect(ctx, database.ConnectionConfig{
		Host:     host,
		Port:     port.Port(),
		User:     "user",
		Password: "password",
		Name:     "registry",
		SSLMode:  "disable",
	}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	folder, err := filepath.Abs("../../db/pg")
	require.NoError(t, err)
	migrations := database.NewMigrationService(logger, &database.MigrationConfig{MigrationFolderPath: folder})
	require.NoError(t, migrations.MigratePostgres(db.SQLDB(), "registry"))

	return db
}

func TestPostgresStore_Integration(t *testing.T) {
	db := startPostgres(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := NewPostgresStore(db, logger)
	ctx := context.Background()

	entity, err := store.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme Solar"})
	require.NoError(t, err)
	again, err := store.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme"})
	require.NoError(t, err)
	assert.Equal(t, entity.ID, again.ID)

	agency, err := store.EnsureCertificationAgency(ctx, "UL")
	require.NoError(t, err)
	sameAgency, err := store.EnsureCertificationAgency(ctx, "ul")
	require.NoError(t, err)
	assert.Equal(t, agency.ID, sameAgency.ID)

	cert, err := store.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 61730"})
	require.NoError(t, err)
	sameCert, err := store.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 61730"})
	require.NoError(t, err)
	assert.Equal(t, cert.ID, sameCert.ID)

	country, err := store.EnsureSourceCountry(ctx, "us")
	require.NoError(t, err)
	assert.Equal(t, "US", country.Code)

	key := models.NaturalKey{EntityExternalID: "ACME", ModelNumber: "X100"}
	write := func(description string) *models.UpsertResult {
		var result *models.UpsertResult
		err := store.WithinTx(ctx, func(ctx context.Context, w Writer) error {
			var err error
			result, err = w.UpsertProduct(ctx, &models.Product{
				EntityID:        entity.ID,
				ProductType:     models.ProductTypeModule,
				ModelNumber:     "X100",
				ProdCode:        "ACME-X100",
				Description:     description,
				Attributes:      map[string]any{"CellsInSeries": 60},
				TaxonomyVersion: "v1",
				DatasetID:       "d1",
			})
			if err != nil {
				return err
			}
			if err := w.ReplaceDimension(ctx, result.ProductID, nil); err != nil {
				return err
			}
			if err := w.ReplaceElectricalRatings(ctx, result.ProductID, []models.ElectricalRating{{Condition: "STC"}}); err != nil {
				return err
			}
			if _, err := w.ReplaceCertifications(ctx, result.ProductID, []string{cert.ID}); err != nil {
				return err
			}
			if _, err := w.ReplaceSourceCountries(ctx, result.ProductID, []string{country.ID}); err != nil {
				return err
			}
			return w.StoreChecksum(ctx, &models.Checksum{ProductID: result.ProductID, Fingerprint: description, DatasetID: "d1"})
		})
		require.NoError(t, err)
		return result
	}

	first := write("first")
	assert.True(t, first.IsNew)
	second := write("second")
	assert.False(t, second.IsNew)
	assert.Equal(t, first.ProductID, second.ProductID)

	agg, err := store.GetProduct(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, "second", agg.Product.Description)
	assert.NotNil(t, agg.Dimension)
	assert.Len(t, agg.ElectricalRatings, 1)
	assert.Len(t, agg.Certifications, 1)
	assert.Len(t, agg.SourceCountries, 1)
	assert.Equal(t, "second", agg.Checksum.Fingerprint)

	deleted, err := store.DeleteProduct(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	cs, err := store.GetChecksum(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, cs)
}

// Two runs over different datasets resolve the same shared rows at once.
func TestPostgresStore_Integration_ConcurrentSharedRows(t *testing.T) {
	db := startPostgres(t)
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	store := NewPostgresStore(db, logger)
	ctx := context.Background()

	entity, err := store.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme Solar"})
	require.NoError(t, err)

	const workers = 8
	type resolved struct {
		agencyID, certID, countryID, prodCode string
		err                                   error
	}
	results := make([]resolved, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r := &results[i]
			agency, err := store.EnsureCertificationAgency(ctx, "UL")
			if err != nil {
				r.err = err
				return
			}
			cert, err := store.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 61730"})
			if err != nil {
				r.err = err
				return
			}
			country, err := store.EnsureSourceCountry(ctx, "US")
			if err != nil {
				r.err = err
				return
			}
			r.agencyID, r.certID, r.countryID = agency.ID, cert.ID, country.ID
			r.err = store.WithinTx(ctx, func(ctx context.Context, w Writer) error {
				res, err := w.UpsertProduct(ctx, &models.Product{
					EntityID:    entity.ID,
					ProductType: models.ProductTypeModule,
					ModelNumber: fmt.Sprintf("X-100/%d", i),
					ProdCode:    "ACME-X_100",
					DatasetID:   fmt.Sprintf("d%d", i%2),
				})
				if err != nil {
					return err
				}
				r.prodCode = res.ProdCode
				if _, err := w.ReplaceCertifications(ctx, res.ProductID, []string{cert.ID}); err != nil {
					return err
				}
				_, err = w.ReplaceSourceCountries(ctx, res.ProductID, []string{country.ID})
				return err
			})
		}(i)
	}
	wg.Wait()

	codes := map[string]bool{}
	for _, r := range results {
		require.NoError(t, r.err)
		assert.Equal(t, results[0].agencyID, r.agencyID)
		assert.Equal(t, results[0].certID, r.certID)
		assert.Equal(t, results[0].countryID, r.countryID)
		codes[r.prodCode] = true
	}
	assert.Len(t, codes, workers)
	assert.True(t, codes["ACME-X_100"])
	assert.True(t, codes[fmt.Sprintf("ACME-X_100-%d", workers)])

	count := func(table string) int {
		var n int
		require.NoError(t, database.Conn(ctx, db).GetContext(ctx, &n, "SELECT count(*) FROM "+table))
		return n
	}
	assert.Equal(t, 1, count("certification_agencies"))
	assert.Equal(t, 1, count("certifications"))
	assert.Equal(t, 1, count("source_countries"))
	assert.Equal(t, workers, count("products"))
}
