package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

type auditService interface {
	Query(ctx context.Context, actor models.Actor, query dto.AuditQuery) ([]models.AuditLog, error)
	Export(ctx context.Context, actor models.Actor, query dto.AuditQuery) (*dto.ExportFile, error)
}

// AuditHandler exposes the audit trail.
type AuditHandler struct {
	service auditService
}

// NewAuditHandler constructs the handler.
func NewAuditHandler(service auditService) *AuditHandler {
	return &AuditHandler{service: service}
}

// Query godoc
// @Summary Query the audit trail
// @Description Callers without audit authority only see their own entries.
// @Tags Audit
// @Produce json
// @Param action query string false "Audit action"
// @Param actor query string false "Actor substring"
// @Param documentId query string false "Document ID"
// @Param from query string false "RFC3339 lower bound"
// @Param to query string false "RFC3339 upper bound"
// @Param limit query int false "Max entries (default 50, max 500)"
// @Success 200 {object} response.Envelope
// @Router /audit-logs [get]
func (h *AuditHandler) Query(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid audit query"))
		return
	}
	logs, err := h.service.Query(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, logs, nil, map[string]interface{}{"count": len(logs)})
}

// Export godoc
// @Summary Export the audit trail
// @Tags Audit
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /audit-logs/export [get]
func (h *AuditHandler) Export(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.AuditQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid audit query"))
		return
	}
	file, err := h.service.Export(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Data)
}
