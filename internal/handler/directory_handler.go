package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/pkg/response"
)

type directoryService interface {
	ListDepartments(ctx context.Context) ([]models.Department, error)
	GetDepartment(ctx context.Context, id string) (*models.Department, error)
	CreateDepartment(ctx context.Context, actor models.Actor, req dto.CreateDepartmentRequest) (*models.Department, error)
	AssignRole(ctx context.Context, actor models.Actor, req dto.AssignRoleRequest) (*models.RoleAssignment, error)
	RevokeRole(ctx context.Context, actor models.Actor, assignmentID string) error
	ListAssignments(ctx context.Context, actor models.Actor, userID string) ([]models.RoleAssignment, error)
}

// DirectoryHandler exposes departments and role assignments.
type DirectoryHandler struct {
	service directoryService
}

// NewDirectoryHandler constructs the handler.
func NewDirectoryHandler(service directoryService) *DirectoryHandler {
	return &DirectoryHandler{service: service}
}

// ListDepartments godoc
// @Summary List departments
// @Tags Directory
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /departments [get]
func (h *DirectoryHandler) ListDepartments(c *gin.Context) {
	departments, err := h.service.ListDepartments(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, departments, nil)
}

// GetDepartment godoc
// @Summary Get a department
// @Tags Directory
// @Produce json
// @Param id path string true "Department ID"
// @Success 200 {object} response.Envelope
// @Router /departments/{id} [get]
func (h *DirectoryHandler) GetDepartment(c *gin.Context) {
	department, err := h.service.GetDepartment(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, department, nil)
}

// CreateDepartment godoc
// @Summary Register a department
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.CreateDepartmentRequest true "Department"
// @Success 201 {object} response.Envelope
// @Router /departments [post]
func (h *DirectoryHandler) CreateDepartment(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.CreateDepartmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid department payload"))
		return
	}
	department, err := h.service.CreateDepartment(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, department)
}

// ListUserRoles godoc
// @Summary List a user's role assignments
// @Tags Directory
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /users/{id}/roles [get]
func (h *DirectoryHandler) ListUserRoles(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	assignments, err := h.service.ListAssignments(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assignments, nil)
}

// AssignRole godoc
// @Summary Grant a role
// @Tags Directory
// @Accept json
// @Produce json
// @Param payload body dto.AssignRoleRequest true "Assignment"
// @Success 201 {object} response.Envelope
// @Router /roles [post]
func (h *DirectoryHandler) AssignRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	var req dto.AssignRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindError(err, "invalid role assignment payload"))
		return
	}
	assignment, err := h.service.AssignRole(c.Request.Context(), actor, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, assignment)
}

// RevokeRole godoc
// @Summary Revoke a role assignment
// @Tags Directory
// @Param id path string true "Assignment ID"
// @Success 204
// @Router /roles/{id} [delete]
func (h *DirectoryHandler) RevokeRole(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		return
	}
	if err := h.service.RevokeRole(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
