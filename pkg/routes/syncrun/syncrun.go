package syncrun

import (
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

var validate = validator.New()

type Handler struct {
	runs registry.RunStore
}

func NewHandler(runs registry.RunStore) *Handler {
	return &Handler{runs: runs}
}

// Register registers sync run routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("", h.List)
	g.GET("/:id", h.Get)
}

type ListQuery struct {
	DatasetID string `query:"dataset_id" validate:"omitempty,max=128"`
	Limit     int    `query:"limit" validate:"min=0,max=500"`
}

type ListResponse struct {
	Items []models.SyncRun `json:"items"`
}

// List returns the most recent runs, newest first
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "syncrun_handler.List")
	defer span.End()

	var q ListQuery
	if err := c.Bind(&q); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid query")
	}
	if err := validate.Struct(q); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if q.Limit == 0 {
		q.Limit = 20
	}

	runs, err := h.runs.ListRuns(ctx, q.DatasetID, q.Limit)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to list sync runs")
	}
	if runs == nil {
		runs = []models.SyncRun{}
	}

	return c.JSON(http.StatusOK, ListResponse{Items: runs})
}

// Get returns one run with its full report
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "syncrun_handler.Get")
	defer span.End()

	run, err := h.runs.GetRun(ctx, c.Param("id"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get sync run")
	}
	if run == nil {
		return httperror.NewHTTPError(http.StatusNotFound, "sync run not found")
	}

	return c.JSON(http.StatusOK, run)
}
