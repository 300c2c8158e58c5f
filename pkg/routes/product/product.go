package product

import (
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/labstack/echo/v4"

	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/models"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/registry"
	"github.com/Open-Orange-Button/Orange-Button-ProductRegistry/pkg/tracing"
)

type Handler struct {
	store registry.Store
}

func NewHandler(store registry.Store) *Handler {
	return &Handler{store: store}
}

// Register registers product routes. Products are addressed by natural key.
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:entity/:model", h.Get)
	g.DELETE("/:entity/:model", h.Delete)
}

func naturalKey(c echo.Context) (models.NaturalKey, error) {
	key := models.NaturalKey{
		EntityExternalID: strings.ToUpper(strings.TrimSpace(c.Param("entity"))),
		ModelNumber:      strings.TrimSpace(c.Param("model")),
	}
	if key.EntityExternalID == "" || key.ModelNumber == "" {
		return key, httperror.NewHTTPError(http.StatusBadRequest, "entity and model are required")
	}
	return key, nil
}

// Get returns a product with its dimension, ratings, certifications,
// source countries, firmware and last applied fingerprint
func (h *Handler) Get(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "product_handler.Get")
	defer span.End()

	key, err := naturalKey(c)
	if err != nil {
		return err
	}

	agg, err := h.store.GetProduct(ctx, key)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to get product")
	}
	if agg == nil {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "product %s not found", key)
	}

	return c.JSON(http.StatusOK, agg)
}

// Delete removes a product and what it owns. Shared certification and
// country rows stay.
func (h *Handler) Delete(c echo.Context) error {
	ctx := c.Request().Context()
	ctx, span := tracing.StartSpan(ctx, "product_handler.Delete")
	defer span.End()

	key, err := naturalKey(c)
	if err != nil {
		return err
	}

	deleted, err := h.store.DeleteProduct(ctx, key)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete product")
	}
	if !deleted {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "product %s not found", key)
	}

	return c.NoContent(http.StatusNoContent)
}
