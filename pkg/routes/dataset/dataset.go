package dataset

import (
	"context"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	syncerrors "github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/errors"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

var validate = validator.New()

// Runner runs one batch. *ingest.Service is one.
type Runner interface {
	Run(ctx context.Context, batch models.Batch) (*models.Report, error)
}

type Handler struct {
	runner Runner
}

func NewHandler(runner Runner) *Handler {
	return &Handler{runner: runner}
}

// Register registers dataset routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/:dataset/sync", h.Sync)
}

type SyncRequest struct {
	ProductType string             `json:"product_type" validate:"required"`
	Records     []models.RawRecord `json:"records" validate:"required,max=100000"`
}

// Sync stages and synchronizes the posted records and returns the report.
// Aborted runs answer with the abort's status code and still carry the
// report of what was committed.
func (h *Handler) Sync(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "dataset_handler.Sync")
	defer span.End()

	datasetID := c.Param("dataset")
	if datasetID == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "dataset is required")
	}

	var req SyncRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	productType, err := models.ParseProductType(req.ProductType)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	report, err := h.runner.Run(ctx, models.Batch{
		DatasetID:   datasetID,
		ProductType: productType,
		Records:     req.Records,
	})
	if err == nil {
		return c.JSON(http.StatusOK, report)
	}

	var syncErr *syncerrors.SyncError
	if !errors.As(err, &syncErr) {
		return httperror.NewHTTPError(http.StatusInternalServerError, "sync failed")
	}
	if report == nil {
		return syncErr.ToHTTPError()
	}
	return c.JSON(httperror.GetStatusCode(syncErr.ToHTTPError()), report)
}
