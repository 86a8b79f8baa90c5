package models

import "time"

// Department is an organisational unit; rows are reference data and never updated.
type Department struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// RoleAssignment grants a role to a user, optionally scoped to one department.
type RoleAssignment struct {
	ID           string    `db:"id" json:"id"`
	UserID       string    `db:"user_id" json:"userId"`
	Role         Role      `db:"role" json:"role"`
	DepartmentID *string   `db:"department_id" json:"departmentId,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// InDepartment reports whether the assignment is scoped to departmentID.
func (a RoleAssignment) InDepartment(departmentID string) bool {
	return a.DepartmentID != nil && *a.DepartmentID == departmentID
}
