package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/middleware"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

type documentService interface {
	Create(ctx context.Context, actor models.Actor, req dto.CreateDocumentRequest) (*models.Document, error)
	Get(ctx context.Context, actor models.Actor, id string) (*models.Document, error)
	List(ctx context.Context, actor models.Actor, query dto.DocumentQuery) (*dto.DocumentListResult, error)
	Update(ctx context.Context, actor models.Actor, id string, req dto.UpdateDocumentRequest) (*models.Document, error)
	Delete(ctx context.Context, actor models.Actor, id string) error
	Submit(ctx context.Context, actor models.Actor, id string) (*dto.SubmissionResult, error)
	Withdraw(ctx context.Context, actor models.Actor, id string, req dto.WithdrawRequest) (*models.Document, error)
	Obsolete(ctx context.Context, actor models.Actor, id string, req dto.ObsoleteRequest) (*models.Document, error)
	Revise(ctx context.Context, actor models.Actor, id string, req dto.ReviseRequest) (*models.Document, error)
	Statistics(ctx context.Context, actor models.Actor) (*models.DocumentStatistics, bool, error)
	RecordPrint(ctx context.Context, actor models.Actor, id string) error
}

// DocumentHandler exposes the document lifecycle endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(service documentService) *DocumentHandler {
	return &DocumentHandler{service: service}
}

// Create godoc
// @Summary Create a draft document
// @Description Allocates the next document number for the prefix, department and year.
// @Tags Documents
// @Accept json
// @Produce json
// @Param payload body dto.CreateDocumentRequest true "Document payload"
// @Success 201 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /documents [post]
func (h *DocumentHandler) Create(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid document payload"))
		return
	}
	doc, err := h.service.Create(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List visible documents
// @Tags Documents
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Param level query int false "Governance level (1-4)"
// @Param departmentId query string false "Department ID"
// @Param documentType query string false "Document type"
// @Param search query string false "Title or number search"
// @Param mine query bool false "Only documents owned by the caller"
// @Param page query int false "Page number"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var query dto.DocumentQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, bindError(err, "invalid document query"))
		return
	}
	result, err := h.service.List(c.Request.Context(), actor, query)
	if err != nil {
		response.Error(c, err)
		return
	}
	pagination := result.Pagination
	response.JSON(c, http.StatusOK, result.Documents, &pagination)
}

// Statistics godoc
// @Summary Statistics over visible documents
// @Tags Documents
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /documents/stats [get]
func (h *DocumentHandler) Statistics(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	start := time.Now()
	stats, cached, err := h.service.Statistics(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cached)
	response.JSON(c, http.StatusOK, stats, nil, responseMeta(c, start))
}

// Get godoc
// @Summary Get a document
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	doc, err := h.service.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Update godoc
// @Summary Update a document
// @Description Content and version may only change while the document is a draft.
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.UpdateDocumentRequest true "Fields to change"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id} [patch]
func (h *DocumentHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.UpdateDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid document payload"))
		return
	}
	doc, err := h.service.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Delete godoc
// @Summary Delete a draft without history
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Submit godoc
// @Summary Submit a draft for approval
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /documents/{id}/submit [post]
func (h *DocumentHandler) Submit(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	result, err := h.service.Submit(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Withdraw godoc
// @Summary Withdraw a pending document back to draft
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.WithdrawRequest false "Reason"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/withdraw [post]
func (h *DocumentHandler) Withdraw(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.WithdrawRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid withdraw payload"))
			return
		}
	}
	doc, err := h.service.Withdraw(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Obsolete godoc
// @Summary Mark an approved document obsolete
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.ObsoleteRequest true "Reason and optional successor"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/obsolete [post]
func (h *DocumentHandler) Obsolete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ObsoleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid obsolete payload"))
		return
	}
	doc, err := h.service.Obsolete(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil)
}

// Revise godoc
// @Summary Open a draft revision of an approved document
// @Tags Documents
// @Accept json
// @Produce json
// @Param id path string true "Predecessor document ID"
// @Param payload body dto.ReviseRequest true "Revision payload"
// @Success 201 {object} response.Envelope
// @Router /documents/{id}/revisions [post]
func (h *DocumentHandler) Revise(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.ReviseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid revision payload"))
		return
	}
	doc, err := h.service.Revise(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// Print godoc
// @Summary Record that a document was printed
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Router /documents/{id}/print [post]
func (h *DocumentHandler) Print(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.RecordPrint(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
