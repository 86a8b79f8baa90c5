package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/arc-docs-api/internal/access"
	"github.com/noah-isme/arc-docs-api/internal/dto"
	"github.com/noah-isme/arc-docs-api/internal/models"
	"github.com/noah-isme/arc-docs-api/internal/repository"
	appErrors "github.com/noah-isme/arc-docs-api/pkg/errors"
)

type departmentStore interface {
	List(ctx context.Context) ([]models.Department, error)
	FindByID(ctx context.Context, id string) (*models.Department, error)
	FindByCode(ctx context.Context, code string) (*models.Department, error)
	Create(ctx context.Context, exec sqlx.ExtContext, department *models.Department) error
}

type roleStore interface {
	ListByUser(ctx context.Context, userID string) ([]models.RoleAssignment, error)
	ListByRoles(ctx context.Context, exec sqlx.ExtContext, roles []models.Role) ([]models.RoleAssignment, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RoleAssignment, error)
	Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.RoleAssignment) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type auditRecorder interface {
	Log(ctx context.Context, exec sqlx.ExtContext, entry AuditEntry) error
}

// DirectoryService manages departments and role assignments, and resolves
// authenticated actors into authorization subjects.
type DirectoryService struct {
	db          txProvider
	departments departmentStore
	roles       roleStore
	audit       auditRecorder
	cache       *CacheService
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewDirectoryService builds a DirectoryService.
func NewDirectoryService(db txProvider, departments departmentStore, roles roleStore, audit auditRecorder, cache *CacheService, validate *validator.Validate, logger *zap.Logger) *DirectoryService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{db: db, departments: departments, roles: roles, audit: audit, cache: cache, validator: validate, logger: logger}
}

// SetAuditRecorder attaches the audit trail after construction; the audit
// service itself resolves subjects through the directory.
func (s *DirectoryService) SetAuditRecorder(audit auditRecorder) {
	s.audit = audit
}

// Resolve loads the actor's assignments. Role claims on the token can only
// narrow what the directory grants.
func (s *DirectoryService) Resolve(ctx context.Context, actor models.Actor) (models.Subject, error) {
	if actor.UserID == "" {
		return models.Subject{}, appErrors.ErrUnauthorized
	}
	assignments, err := s.roles.ListByUser(ctx, actor.UserID)
	if err != nil {
		return models.Subject{}, internalError(err, "failed to load role assignments")
	}
	return access.NewSubject(actor, assignments), nil
}

// ListDepartments returns every department ordered by code.
func (s *DirectoryService) ListDepartments(ctx context.Context) ([]models.Department, error) {
	departments, err := s.departments.List(ctx)
	if err != nil {
		return nil, internalError(err, "failed to list departments")
	}
	return departments, nil
}

// GetDepartment fetches one department.
func (s *DirectoryService) GetDepartment(ctx context.Context, id string) (*models.Department, error) {
	department, err := s.departments.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "department not found")
		}
		return nil, internalError(err, "failed to load department")
	}
	return department, nil
}

// CreateDepartment registers a department. Codes are stored upper-cased.
func (s *DirectoryService) CreateDepartment(ctx context.Context, actor models.Actor, req dto.CreateDepartmentRequest) (*models.Department, error) {
	if err := s.requireDirectoryAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid department payload")
	}
	department := &models.Department{
		Code: strings.ToUpper(strings.TrimSpace(req.Code)),
		Name: strings.TrimSpace(req.Name),
	}
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.departments.Create(ctx, tx, department); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.WithField(appErrors.ErrConflict, "code", "department code already exists")
			}
			return internalError(err, "failed to create department")
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			ActorID: actor.UserID,
			Action:  models.AuditActionDepartmentCreate,
			Metadata: map[string]interface{}{
				"departmentId": department.ID,
				"code":         department.Code,
				"name":         department.Name,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("department created", zap.String("code", department.Code), zap.String("actor", actor.UserID))
	return department, nil
}

// AssignRole grants a role, optionally scoped to a department.
func (s *DirectoryService) AssignRole(ctx context.Context, actor models.Actor, req dto.AssignRoleRequest) (*models.RoleAssignment, error) {
	if err := s.requireDirectoryAdmin(ctx, actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid role assignment payload")
	}
	role, ok := models.ParseRole(req.Role)
	if !ok {
		return nil, appErrors.WithField(appErrors.ErrValidation, "role", "unknown role")
	}
	if req.DepartmentID != nil {
		if _, err := s.GetDepartment(ctx, *req.DepartmentID); err != nil {
			return nil, err
		}
	}

	assignment := &models.RoleAssignment{
		UserID:       strings.TrimSpace(req.UserID),
		Role:         role,
		DepartmentID: req.DepartmentID,
	}
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.roles.Create(ctx, tx, assignment); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return appErrors.ErrDuplicateAssignment
			}
			return internalError(err, "failed to assign role")
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			ActorID: actor.UserID,
			Action:  models.AuditActionRoleAssign,
			Metadata: map[string]interface{}{
				"assignmentId": assignment.ID,
				"userId":       assignment.UserID,
				"role":         assignment.Role,
				"departmentId": assignment.DepartmentID,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.invalidateUserStats(ctx, assignment.UserID)
	s.logger.Info("role assigned", zap.String("user", assignment.UserID), zap.String("role", string(role)), zap.String("actor", actor.UserID))
	return assignment, nil
}

// RevokeRole removes an assignment.
func (s *DirectoryService) RevokeRole(ctx context.Context, actor models.Actor, assignmentID string) error {
	if err := s.requireDirectoryAdmin(ctx, actor); err != nil {
		return err
	}
	var assignment *models.RoleAssignment
	err := inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		assignment, err = s.roles.FindByID(ctx, tx, assignmentID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "role assignment not found")
			}
			return internalError(err, "failed to load role assignment")
		}
		if err := s.roles.Delete(ctx, tx, assignmentID); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return appErrors.Clone(appErrors.ErrNotFound, "role assignment not found")
			}
			return internalError(err, "failed to revoke role")
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			ActorID: actor.UserID,
			Action:  models.AuditActionRoleRevoke,
			Metadata: map[string]interface{}{
				"assignmentId": assignment.ID,
				"userId":       assignment.UserID,
				"role":         assignment.Role,
				"departmentId": assignment.DepartmentID,
			},
		})
	})
	if err != nil {
		return err
	}
	s.invalidateUserStats(ctx, assignment.UserID)
	s.logger.Info("role revoked", zap.String("user", assignment.UserID), zap.String("role", string(assignment.Role)), zap.String("actor", actor.UserID))
	return nil
}

// BootstrapAdmin grants userID the global admin role unless it already holds
// it. Safe to call on every start.
func (s *DirectoryService) BootstrapAdmin(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return appErrors.WithField(appErrors.ErrValidation, "userId", "bootstrap admin user id is required")
	}
	assignments, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return internalError(err, "failed to load role assignments")
	}
	for _, a := range assignments {
		if a.Role == models.RoleAdmin && a.DepartmentID == nil {
			return nil
		}
	}

	assignment := &models.RoleAssignment{UserID: userID, Role: models.RoleAdmin}
	created := true
	err = inTx(ctx, s.db, func(tx *sqlx.Tx) error {
		if err := s.roles.Create(ctx, tx, assignment); err != nil {
			// another instance won the race
			if errors.Is(err, repository.ErrDuplicate) {
				created = false
				return nil
			}
			return internalError(err, "failed to bootstrap admin")
		}
		return s.audit.Log(ctx, tx, AuditEntry{
			ActorID: models.SystemActorID,
			Action:  models.AuditActionRoleAssign,
			Metadata: map[string]interface{}{
				"assignmentId": assignment.ID,
				"userId":       assignment.UserID,
				"role":         assignment.Role,
				"bootstrap":    true,
			},
		})
	})
	if err != nil {
		return err
	}
	if created {
		s.invalidateUserStats(ctx, userID)
		s.logger.Info("bootstrap admin granted", zap.String("user", userID))
	}
	return nil
}

// ListAssignments returns a user's assignments; callers may list their own,
// directory administrators anyone's.
func (s *DirectoryService) ListAssignments(ctx context.Context, actor models.Actor, userID string) ([]models.RoleAssignment, error) {
	if actor.UserID != userID {
		if err := s.requireDirectoryAdmin(ctx, actor); err != nil {
			return nil, err
		}
	}
	assignments, err := s.roles.ListByUser(ctx, userID)
	if err != nil {
		return nil, internalError(err, "failed to list role assignments")
	}
	return assignments, nil
}

// invalidateUserStats drops the cached scoped statistics of a user whose
// roles changed.
func (s *DirectoryService) invalidateUserStats(ctx context.Context, userID string) {
	s.cache.Invalidate(ctx, userStatsPattern(userID))
}

func (s *DirectoryService) requireDirectoryAdmin(ctx context.Context, actor models.Actor) error {
	subject, err := s.Resolve(ctx, actor)
	if err != nil {
		return err
	}
	if !access.CanManageDirectory(subject) {
		return appErrors.ErrNotAuthorized
	}
	return nil
}
