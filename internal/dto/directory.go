package dto

// CreateDepartmentRequest registers a department.
type CreateDepartmentRequest struct {
	Code string `json:"code" validate:"required,alphanum,max=16"`
	Name string `json:"name" validate:"required,max=255"`
}

// AssignRoleRequest grants a role, optionally scoped to a department.
type AssignRoleRequest struct {
	UserID       string  `json:"userId" validate:"required,max=128"`
	Role         string  `json:"role" validate:"required"`
	DepartmentID *string `json:"departmentId" validate:"omitempty,uuid"`
}
