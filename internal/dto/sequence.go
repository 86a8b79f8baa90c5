package dto

// NextNumberRequest allocates the next document number for a bucket.
type NextNumberRequest struct {
	Prefix         string `form:"prefix" validate:"required,alphanum,max=16"`
	DepartmentCode string `form:"department" validate:"required,alphanum,max=16"`
	Year           int    `form:"year" validate:"omitempty,min=2000,max=9999"`
}

// NextNumberResponse is the allocated number and its bucket.
type NextNumberResponse struct {
	DocumentNumber string `json:"documentNumber"`
	Prefix         string `json:"prefix"`
	DepartmentCode string `json:"departmentCode"`
	Year           int    `json:"year"`
	Sequence       int    `json:"sequence"`
}
