package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/arc-docs-api/internal/models"
)

// RoleRepository persists role assignments (the authoritative source of
// department scope).
type RoleRepository struct {
	db *sqlx.DB
}

// NewRoleRepository constructs the repository.
func NewRoleRepository(db *sqlx.DB) *RoleRepository {
	return &RoleRepository{db: db}
}

func (r *RoleRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

const roleColumns = `id, user_id, role, department_id, created_at`

// ListByUser returns assignments held by userID.
func (r *RoleRepository) ListByUser(ctx context.Context, userID string) ([]models.RoleAssignment, error) {
	const query = `SELECT ` + roleColumns + ` FROM user_roles WHERE user_id = $1 ORDER BY created_at ASC`
	var assignments []models.RoleAssignment
	if err := r.db.SelectContext(ctx, &assignments, query, userID); err != nil {
		return nil, fmt.Errorf("list role assignments: %w", err)
	}
	return assignments, nil
}

// ListByRoles returns every assignment carrying one of roles. Used to resolve
// approver sets inside the submission transaction.
func (r *RoleRepository) ListByRoles(ctx context.Context, exec sqlx.ExtContext, roles []models.Role) ([]models.RoleAssignment, error) {
	if len(roles) == 0 {
		return nil, nil
	}
	values := make([]string, len(roles))
	for i, role := range roles {
		values[i] = string(role)
	}
	const query = `SELECT ` + roleColumns + ` FROM user_roles WHERE role = ANY($1) ORDER BY user_id ASC, created_at ASC`
	var assignments []models.RoleAssignment
	if err := sqlx.SelectContext(ctx, r.exec(exec), &assignments, query, pq.Array(values)); err != nil {
		return nil, fmt.Errorf("list role assignments by role: %w", err)
	}
	return assignments, nil
}

// FindByID loads one assignment; sql.ErrNoRows when missing.
func (r *RoleRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.RoleAssignment, error) {
	const query = `SELECT ` + roleColumns + ` FROM user_roles WHERE id = $1`
	var assignment models.RoleAssignment
	if err := sqlx.GetContext(ctx, r.exec(exec), &assignment, query, id); err != nil {
		return nil, translate("find role assignment", err)
	}
	return &assignment, nil
}

// Create inserts an assignment. Duplicates (same user, role and department,
// including the global NULL department) yield ErrDuplicate.
func (r *RoleRepository) Create(ctx context.Context, exec sqlx.ExtContext, assignment *models.RoleAssignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	if assignment.CreatedAt.IsZero() {
		assignment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO user_roles (id, user_id, role, department_id, created_at)
VALUES (:id, :user_id, :role, :department_id, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, assignment); err != nil {
		return translate("insert role assignment", err)
	}
	return nil
}

// Delete removes an assignment; sql.ErrNoRows when it does not exist.
func (r *RoleRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	const query = `DELETE FROM user_roles WHERE id = $1`
	result, err := r.exec(exec).ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("delete role assignment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("role assignment rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
