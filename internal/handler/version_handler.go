package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/pkg/response"
	"github.com/noah-isme/arc-docs-api/pkg/storage"
)

type versionService interface {
	ListVersions(ctx context.Context, actor models.Actor, documentID string) ([]models.DocumentVersion, error)
	DownloadVersion(ctx context.Context, actor models.Actor, documentID, version string) (*models.VersionDownload, error)
	ResolveDownload(token string) (storage.Grant, error)
}

// VersionHandler exposes version history and signed downloads.
type VersionHandler struct {
	service versionService
}

// NewVersionHandler constructs the handler.
func NewVersionHandler(service versionService) *VersionHandler {
	return &VersionHandler{service: service}
}

// List godoc
// @Summary List the version history of a document
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Router /documents/{id}/versions [get]
func (h *VersionHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	versions, err := h.service.ListVersions(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, versions, nil)
}

// Download godoc
// @Summary Issue a signed download link for a version
// @Tags Versions
// @Produce json
// @Param id path string true "Document ID"
// @Param version path string true "Version label"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /documents/{id}/versions/{version}/download [get]
func (h *VersionHandler) Download(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	link, err := h.service.DownloadVersion(c.Request.Context(), actor, c.Param("id"), c.Param("version"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

type downloadGrant struct {
	DocumentID       string `json:"documentId"`
	Version          string `json:"version"`
	ContentReference string `json:"contentReference"`
	ExpiresAt        string `json:"expiresAt"`
}

// Resolve godoc
// @Summary Resolve a signed download token
// @Description Public endpoint; the token itself is the credential.
// @Tags Versions
// @Produce json
// @Param token path string true "Signed token"
// @Success 200 {object} response.Envelope
// @Failure 401 {object} response.Envelope
// @Router /downloads/{token} [get]
func (h *VersionHandler) Resolve(c *gin.Context) {
	grant, err := h.service.ResolveDownload(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, downloadGrant{
		DocumentID:       grant.DocumentID,
		Version:          grant.Version,
		ContentReference: grant.ContentReference,
		ExpiresAt:        grant.ExpiresAt.UTC().Format(time.RFC3339),
	}, nil)
}
