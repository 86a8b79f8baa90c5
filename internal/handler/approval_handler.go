package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/middleware"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

type approvalService interface {
	RecordDecision(ctx context.Context, actor models.Actor, documentID string, req dto.DecisionRequest) (*dto.DecisionResult, error)
	ListApprovals(ctx context.Context, actor models.Actor, documentID string) ([]models.ApprovalRequest, error)
	ListPending(ctx context.Context, actor models.Actor) ([]models.ApprovalRequest, error)
}

// ApprovalHandler exposes approval decisions and slot listings.
type ApprovalHandler struct {
	service approvalService
}

// NewApprovalHandler constructs the handler.
func NewApprovalHandler(service approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: service}
}

// Decide godoc
// @Summary Record an approval decision
// @Description Approves or rejects the caller's slot in the current round.
// @Tags Approvals
// @Accept json
// @Produce json
// @Param id path string true "Document ID"
// @Param payload body dto.DecisionRequest true "Decision"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /documents/{id}/decision [post]
func (h *ApprovalHandler) Decide(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid decision payload"))
		return
	}
	result, err := h.service.RecordDecision(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "transitioned", result.Transitioned)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// ListForDocument godoc
// @Summary List approval slots of a document
// @Tags Approvals
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/approvals [get]
func (h *ApprovalHandler) ListForDocument(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	slots, err := h.service.ListApprovals(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}

// Pending godoc
// @Summary List the caller's open approval slots
// @Tags Approvals
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /approvals/pending [get]
func (h *ApprovalHandler) Pending(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	slots, err := h.service.ListPending(c.Request.Context(), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
