package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

type sequenceService interface {
	Next(ctx context.Context, actor models.Actor, req dto.NextNumberRequest) (*dto.NextNumberResponse, error)
}

// SequenceHandler exposes standalone number allocation.
type SequenceHandler struct {
	service sequenceService
}

// NewSequenceHandler constructs the handler.
func NewSequenceHandler(service sequenceService) *SequenceHandler {
	return &SequenceHandler{service: service}
}

// Next godoc
// @Summary Allocate the next document number
// @Description Numbers are gap-free per prefix, department and year. A 503 is retryable.
// @Tags Sequences
// @Produce json
// @Param prefix query string true "Document prefix"
// @Param department query string true "Department code"
// @Param year query int false "Year (defaults to current)"
// @Success 200 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /sequences/next [get]
func (h *SequenceHandler) Next(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.NextNumberRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, bindError(err, "invalid sequence request"))
		return
	}
	allocated, err := h.service.Next(c.Request.Context(), actor, req)
	if err != nil {
		if appErrors.Retryable(err) {
			c.Header("Retry-After", "1")
		}
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, allocated, nil)
}
