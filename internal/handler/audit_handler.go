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

type auditService interface {
	List(ctx context.Context, query dto.BulkOperationQuery) ([]models.BulkOperation, error)
	Get(ctx context.Context, id string) (*models.BulkOperation, error)
}

// AuditHandler serves the bulk operation audit log.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// List godoc
// @Summary List bulk operation records
// @Tags Audit
// @Produce json
// @Param operationId query string false "Operation ID"
// @Param action query string false "Action"
// @Param actorId query string false "Actor ID"
// @Param resource query string false "asset or user"
// @Param limit query int false "Max records"
// @Success 200 {object} response.Envelope
// @Router /audit/bulk-operations [get]
func (h *AuditHandler) List(c *gin.Context) {
	var query dto.BulkOperationQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid audit query"))
		return
	}
	ops, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, ops, nil)
}

// Get godoc
// @Summary Get a bulk operation record
// @Tags Audit
// @Produce json
// @Param id path string true "Operation ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /audit/bulk-operations/{id} [get]
func (h *AuditHandler) Get(c *gin.Context) {
	op, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, op, nil)
}
