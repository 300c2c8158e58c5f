package syncrun

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry/memory"
)

func setup(t *testing.T) (*echo.Echo, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	e := echo.New()
	NewHandler(store).Register(e.Group("/api/v1/runs"))
	return e, store
}

func TestList(t *testing.T) {
	e, store := setup(t)
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	for i, ds := range []string{"cec-modules", "cec-batteries", "cec-modules"} {
		require.NoError(t, store.SaveRun(ctx, &models.SyncRun{
			ID:        ds + "-" + string(rune('a'+i)),
			DatasetID: ds,
			Status:    models.SyncRunStatusCompleted,
			Report:    &models.Report{DatasetID: ds},
			StartedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs?dataset_id=cec-modules", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 2)
	assert.Equal(t, "cec-modules-c", body.Items[0].ID)
	assert.Equal(t, "cec-modules-a", body.Items[1].ID)
}

func TestList_RejectsLimit(t *testing.T) {
	e, _ := setup(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=5000", nil), rec)
	err := NewHandler(memory.NewStore()).List(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, httperror.GetStatusCode(err))
}

func TestGet(t *testing.T) {
	e, store := setup(t)
	require.NoError(t, store.SaveRun(context.Background(), &models.SyncRun{
		ID:        "run-1",
		DatasetID: "cec-modules",
		Status:    models.SyncRunStatusAborted,
		Report:    &models.Report{DatasetID: "cec-modules", Aborted: true, AbortReason: "entity store is unavailable"},
	}))

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var run models.SyncRun
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, models.SyncRunStatusAborted, run.Status)
	assert.True(t, run.Report.Aborted)
}

func TestGet_NotFound(t *testing.T) {
	e, _ := setup(t)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues("missing")

	err := NewHandler(memory.NewStore()).Get(c)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}
