package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Music-Vine/conductor/internal/dto"
	"github.com/Music-Vine/conductor/internal/models"
	appErrors "github.com/Music-Vine/conductor/pkg/errors"
	"github.com/Music-Vine/conductor/pkg/response"
)

type assetService interface {
	List(ctx context.Context, query dto.AssetQuery) ([]models.Asset, int, error)
	Detail(ctx context.Context, id string) (*dto.AssetDetail, error)
	Transition(ctx context.Context, id string, req dto.TransitionRequest, actorID string) (*models.Asset, error)
}

// AssetHandler exposes asset workflow endpoints.
type AssetHandler struct {
	service assetService
}

// NewAssetHandler constructs the handler.
func NewAssetHandler(service assetService) *AssetHandler {
	return &AssetHandler{service: service}
}

// List godoc
// @Summary List assets
// @Tags Assets
// @Produce json
// @Param kind query string false "Asset kind"
// @Param state query string false "Workflow state"
// @Param search query string false "Title search"
// @Param limit query int false "Page size"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /assets [get]
func (h *AssetHandler) List(c *gin.Context) {
	var query dto.AssetQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid asset query"))
		return
	}
	assets, total, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assets, nil, map[string]any{
		"total":  total,
		"limit":  query.Limit,
		"offset": query.Offset,
	})
}

// Get godoc
// @Summary Get asset detail with available actions
// @Tags Assets
// @Produce json
// @Param id path string true "Asset ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /assets/{id} [get]
func (h *AssetHandler) Get(c *gin.Context) {
	detail, err := h.service.Detail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Transition godoc
// @Summary Apply a workflow action to an asset
// @Tags Assets
// @Accept json
// @Produce json
// @Param id path string true "Asset ID"
// @Param payload body dto.TransitionRequest true "Transition payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /assets/{id}/transitions [post]
func (h *AssetHandler) Transition(c *gin.Context) {
	var req dto.TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid transition payload"))
		return
	}
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	asset, err := h.service.Transition(c.Request.Context(), c.Param("id"), req, actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, asset, nil)
}
