package memory

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
)

func seedProduct(t *testing.T, s *Store, model string) (*models.Entity, *models.UpsertResult) {
	t.Helper()
	ctx := context.Background()

	entity, err := s.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme Solar"})
	require.NoError(t, err)

	var result *models.UpsertResult
	err = s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		var err error
		result, err = w.UpsertProduct(ctx, &models.Product{
			EntityID:    entity.ID,
			ProductType: models.ProductTypeModule,
			ModelNumber: model,
			ProdCode:    "ACME-" + model,
		})
		if err != nil {
			return err
		}
		return w.ReplaceDimension(ctx, result.ProductID, nil)
	})
	require.NoError(t, err)
	return entity, result
}

func TestStore_EnsureEntity(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	first, err := s.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme Solar"})
	require.NoError(t, err)
	second, err := s.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme Solar Inc"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Acme Solar", second.Name)
	assert.Equal(t, 1, s.Stats().Entities)
}

func TestStore_EnsureCertification(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	agency, err := s.EnsureCertificationAgency(ctx, "UL")
	require.NoError(t, err)
	same, err := s.EnsureCertificationAgency(ctx, "ul")
	require.NoError(t, err)
	assert.Equal(t, agency.ID, same.ID)

	issued := time.Date(2021, 3, 4, 0, 0, 0, 0, time.UTC)
	a, err := s.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 1703", IssuedOn: &issued})
	require.NoError(t, err)
	b, err := s.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 1703", IssuedOn: &issued})
	require.NoError(t, err)
	c, err := s.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 1703"})
	require.NoError(t, err)

	assert.Equal(t, a.ID, b.ID)
	assert.NotEqual(t, a.ID, c.ID)

	_, err = s.EnsureCertification(ctx, &models.Certification{AgencyID: "missing", Standard: "IEC 61215"})
	assert.True(t, syncerrors.Is(err, syncerrors.KindReferentialIntegrity))
}

func TestStore_UpsertProduct(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entity, created := seedProduct(t, s, "X100")
	assert.True(t, created.IsNew)

	var updated *models.UpsertResult
	err := s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		var err error
		updated, err = w.UpsertProduct(ctx, &models.Product{
			EntityID:    entity.ID,
			ProductType: models.ProductTypeModule,
			ModelNumber: "X100",
			ProdCode:    "ACME-X100",
			Description: "updated",
		})
		return err
	})
	require.NoError(t, err)
	assert.False(t, updated.IsNew)
	assert.Equal(t, created.ProductID, updated.ProductID)

	agg, err := s.GetProduct(ctx, models.NaturalKey{EntityExternalID: "ACME", ModelNumber: "X100"})
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Equal(t, "updated", agg.Product.Description)
	assert.NotNil(t, agg.Dimension)
}

func TestStore_UpsertProduct_ProdCodeSuffix(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entity, first := seedProduct(t, s, "X100")
	assert.Equal(t, "ACME-X100", first.ProdCode)

	upsert := func(model string) *models.UpsertResult {
		var result *models.UpsertResult
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
			var err error
			result, err = w.UpsertProduct(ctx, &models.Product{
				EntityID:    entity.ID,
				ProductType: models.ProductTypeModule,
				ModelNumber: model,
				ProdCode:    "ACME-X100",
			})
			return err
		}))
		return result
	}

	assert.Equal(t, "ACME-X100-2", upsert("X-100").ProdCode)
	assert.Equal(t, "ACME-X100-3", upsert("X.100").ProdCode)

	// Existing products keep the code they were given.
	again := upsert("X-100")
	assert.False(t, again.IsNew)
	assert.Equal(t, "ACME-X100-2", again.ProdCode)
	assert.Equal(t, 3, s.Stats().Products)
}

func TestStore_WithinTx_Rollback(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entity, err := s.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme"})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		res, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: "X1", ProdCode: "ACME-X1"})
		require.NoError(t, err)
		require.NoError(t, w.ReplaceElectricalRatings(ctx, res.ProductID, []models.ElectricalRating{{Condition: "STC"}}))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stats := s.Stats()
	assert.Equal(t, 0, stats.Products)
	assert.Equal(t, 0, stats.Ratings)
	assert.Equal(t, 0, stats.Commits)
}

func TestStore_WithinTx_RollbackRestoresUpdates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entity, product := seedProduct(t, s, "X100")
	key := models.NaturalKey{EntityExternalID: "ACME", ModelNumber: "X100"}

	boom := errors.New("boom")
	err := s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		_, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: "X100", ProdCode: "ACME-X100", Description: "changed"})
		require.NoError(t, err)
		require.NoError(t, w.ReplaceFirmware(ctx, product.ProductID, &models.Firmware{Version: "2.0"}))
		res, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: "X-100", ProdCode: "ACME-X100"})
		require.NoError(t, err)
		assert.Equal(t, "ACME-X100-2", res.ProdCode)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	agg, err := s.GetProduct(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, agg)
	assert.Empty(t, agg.Product.Description)
	assert.Nil(t, agg.Firmware)
	assert.Equal(t, 1, s.Stats().Products)

	// The rolled back suffix is free again.
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		res, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: "X.100", ProdCode: "ACME-X100"})
		require.NoError(t, err)
		assert.Equal(t, "ACME-X100-2", res.ProdCode)
		return nil
	}))
}

func TestStore_WithinTx_CanceledContextRollsBack(t *testing.T) {
	s := NewStore()
	entity, err := s.EnsureEntity(context.Background(), &models.Entity{ExternalID: "ACME", Name: "Acme"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	err = s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		_, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: "X1", ProdCode: "ACME-X1"})
		cancel()
		return err
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, s.Stats().Products)
}

// A transaction touches only the rows it writes, so a large registry does
// not make each record's transaction slower.
func TestStore_WithinTx_LargeRegistry(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	entity, err := s.EnsureEntity(ctx, &models.Entity{ExternalID: "ACME", Name: "Acme"})
	require.NoError(t, err)

	const n = 5000
	for i := 0; i < n; i++ {
		model := fmt.Sprintf("M%d", i)
		require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
			res, err := w.UpsertProduct(ctx, &models.Product{EntityID: entity.ID, ModelNumber: model, ProdCode: "ACME-" + model})
			if err != nil {
				return err
			}
			return w.ReplaceDimension(ctx, res.ProductID, nil)
		}))
	}

	stats := s.Stats()
	assert.Equal(t, n, stats.Products)
	assert.Equal(t, n, stats.Commits)
}

func TestStore_ReplaceCertifications(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, product := seedProduct(t, s, "X100")

	agency, err := s.EnsureCertificationAgency(ctx, "UL")
	require.NoError(t, err)
	c1, err := s.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 1703"})
	require.NoError(t, err)
	c2, err := s.EnsureCertification(ctx, &models.Certification{AgencyID: agency.ID, Standard: "UL 61730"})
	require.NoError(t, err)

	replace := func(ids ...string) (models.AssociationDiff, error) {
		var diff models.AssociationDiff
		err := s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
			var err error
			diff, err = w.ReplaceCertifications(ctx, product.ProductID, ids)
			return err
		})
		return diff, err
	}

	diff, err := replace(c1.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c1.ID}, diff.Added)

	diff, err = replace(c2.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{c2.ID}, diff.Added)
	assert.Equal(t, []string{c1.ID}, diff.Removed)

	diff, err = replace(c2.ID)
	require.NoError(t, err)
	assert.False(t, diff.Changed())

	s.DeleteCertification(c1.ID)
	_, err = replace(c1.ID)
	assert.True(t, syncerrors.Is(err, syncerrors.KindReferentialIntegrity))

	// Shared rows outlive the association.
	assert.Equal(t, 1, s.Stats().Certifications)
}

func TestStore_Hook(t *testing.T) {
	calls := 0
	s := NewStore(WithHook(func(_ context.Context, op string) error {
		if op == OpReplaceElectricalRatings {
			calls++
			return syncerrors.NewStoreUnavailableError(errors.New("connection reset"))
		}
		return nil
	}))
	ctx := context.Background()
	_, product := seedProduct(t, s, "X100")

	err := s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		return w.ReplaceElectricalRatings(ctx, product.ProductID, []models.ElectricalRating{
			{Condition: "STC", PowerDC: decimal.NewNullDecimal(decimal.NewFromInt(400))},
		})
	})
	assert.True(t, syncerrors.Is(err, syncerrors.KindStoreUnavailable))
	assert.Equal(t, 1, calls)
}

func TestStore_DeleteProduct(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	_, product := seedProduct(t, s, "X100")
	key := models.NaturalKey{EntityExternalID: "ACME", ModelNumber: "X100"}

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, w registry.Writer) error {
		return w.StoreChecksum(ctx, &models.Checksum{ProductID: product.ProductID, Fingerprint: "abc", DatasetID: "d1"})
	}))
	cs, err := s.GetChecksum(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, cs)
	assert.Equal(t, "abc", cs.Fingerprint)

	deleted, err := s.DeleteProduct(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	cs, err = s.GetChecksum(ctx, key)
	require.NoError(t, err)
	assert.Nil(t, cs)

	deleted, err = s.DeleteProduct(ctx, key)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.Equal(t, 1, s.Stats().Entities)
}

func TestStore_Runs(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.SaveRun(ctx, &models.SyncRun{
			ID:        id,
			DatasetID: "cec-modules",
			Status:    models.SyncRunStatusCompleted,
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, s.SaveRun(ctx, &models.SyncRun{ID: "other", DatasetID: "cec-batteries", StartedAt: base}))

	runs, err := s.ListRuns(ctx, "cec-modules", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)

	run, err := s.GetRun(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, run)
}
